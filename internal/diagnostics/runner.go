// Package diagnostics executes independent named health probes and
// reports pass/fail results with timing. Probes never abort a run: an
// error, panic, or timeout becomes a failed result.
package diagnostics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckFunc is a single probe. A nil return means pass.
type CheckFunc func(ctx context.Context) error

// Probe is a registered named check
type Probe struct {
	Name  string
	Check CheckFunc
}

// Result is the outcome of one probe execution
type Result struct {
	Name      string        `json:"name"`
	Passed    bool          `json:"passed"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Runner executes registered probes concurrently with a bounded
// per-probe timeout. Results come back in registration order.
type Runner struct {
	logger  *zap.Logger
	timeout time.Duration
	probes  []Probe
	mu      sync.RWMutex
}

// NewRunner creates a runner with the given per-probe timeout
func NewRunner(logger *zap.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Runner{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a probe. Registration order defines result order.
func (r *Runner) Register(name string, check CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = append(r.probes, Probe{Name: name, Check: check})
}

// Names returns the registered probe names in registration order
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.probes))
	for i, p := range r.probes {
		names[i] = p.Name
	}
	return names
}

// RunAll executes every registered probe concurrently and waits for all
// of them. The returned slice is ordered by registration, not by
// completion.
func (r *Runner) RunAll(ctx context.Context) []Result {
	r.mu.RLock()
	probes := make([]Probe, len(r.probes))
	copy(probes, r.probes)
	r.mu.RUnlock()

	results := make([]Result, len(probes))

	var wg sync.WaitGroup
	for i, probe := range probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			results[i] = r.runOne(ctx, p)
		}(i, probe)
	}
	wg.Wait()

	for _, result := range results {
		if result.Passed {
			r.logger.Debug("Diagnostic passed",
				zap.String("name", result.Name),
				zap.Duration("duration", result.Duration),
			)
		} else {
			r.logger.Warn("Diagnostic failed",
				zap.String("name", result.Name),
				zap.Duration("duration", result.Duration),
				zap.String("error", result.Error),
			)
		}
	}

	return results
}

// runOne executes a single probe under the configured timeout. A probe
// that outlives its deadline is reported as failed immediately; the
// stray goroutine is abandoned rather than awaited.
func (r *Runner) runOne(ctx context.Context, probe Probe) Result {
	start := time.Now()
	result := Result{
		Name:      probe.Name,
		Timestamp: start,
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runGuarded(probeCtx, probe.Check)
	}()

	select {
	case err := <-errCh:
		result.Duration = time.Since(start)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Passed = true
		}
	case <-probeCtx.Done():
		result.Duration = time.Since(start)
		result.Error = fmt.Sprintf("probe timed out after %v", r.timeout)
	}

	return result
}

// runGuarded converts a probe panic into an error
func runGuarded(ctx context.Context, check CheckFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("probe panicked: %v", rec)
		}
	}()
	return check(ctx)
}
