// Package engine drives the auto-repair cycle: run diagnostics, select
// repairs from the static mapping and the rule engine, execute them
// best-effort, and verify by re-running diagnostics.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shizukutanaka/Kaifuku/internal/config"
	"github.com/shizukutanaka/Kaifuku/internal/diagnostics"
	"github.com/shizukutanaka/Kaifuku/internal/health"
	"github.com/shizukutanaka/Kaifuku/internal/learning"
	"github.com/shizukutanaka/Kaifuku/internal/repair"
	"github.com/shizukutanaka/Kaifuku/internal/rules"
)

var (
	// ErrCycleInProgress is returned when a repair cycle is requested
	// while another is still running.
	ErrCycleInProgress = errors.New("auto-repair cycle already in progress")

	// ErrAlreadyRunning is returned by Start on a running engine
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrNotRunning is returned by Stop on a stopped engine
	ErrNotRunning = errors.New("engine not running")
)

// Deps are the collaborating subsystems the engine orchestrates.
// Store is optional; without it learning state is session-only.
type Deps struct {
	Monitor   *health.Monitor
	Runner    *diagnostics.Runner
	Catalog   *repair.Catalog
	Mapper    *repair.Mapper
	Rules     *rules.Engine
	Optimizer *rules.Engine
	Learner   *learning.Learner
	Store     *learning.Store
}

// Stats are monotonic engine counters
type Stats struct {
	CyclesTotal   uint64
	RepairsTotal  uint64
	RepairsFailed uint64
}

// Engine is the auto-repair orchestrator. A single scheduler goroutine
// drives three tiers: the fast health-and-repair cycle, the medium
// optimization pass, and the slow learning retune.
type Engine struct {
	logger *zap.Logger
	cfg    config.MonitorConfig
	deps   Deps

	running     atomic.Bool
	cycleActive atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	cyclesTotal   atomic.Uint64
	repairsTotal  atomic.Uint64
	repairsFailed atomic.Uint64

	mu        sync.RWMutex
	phase     Phase
	fixLog    []AutoFix
	issues    *issueTracker
	lastCycle *CycleReport
}

// New creates an engine over the given subsystems
func New(logger *zap.Logger, cfg config.MonitorConfig, deps Deps) *Engine {
	return &Engine{
		logger: logger,
		cfg:    cfg,
		deps:   deps,
		phase:  PhaseIdle,
		issues: newIssueTracker(),
	}
}

// Start restores persisted learning state and launches the scheduler
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if e.deps.Store != nil {
		metrics, found, err := e.deps.Store.LoadMetrics(ctx)
		if err != nil {
			e.logger.Warn("Failed to load learning state, starting fresh", zap.Error(err))
		} else if found {
			e.deps.Learner.Restore(metrics)
			e.logger.Info("Learning state restored",
				zap.Int("total_fixes", metrics.TotalFixes),
				zap.Float64("success_rate", metrics.SuccessRate),
			)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go e.schedulerLoop(runCtx)

	e.logger.Info("Auto-repair engine started",
		zap.Duration("check_interval", e.cfg.CheckInterval),
		zap.Duration("optimize_interval", e.cfg.OptimizeInterval),
		zap.Duration("learn_interval", e.cfg.LearnInterval),
	)
	return nil
}

// Stop halts the scheduler and persists learning state
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}

	e.cancel()
	e.wg.Wait()

	if e.deps.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.deps.Store.SaveMetrics(ctx, e.deps.Learner.Snapshot()); err != nil {
			e.logger.Warn("Failed to persist learning state", zap.Error(err))
		}
	}

	e.logger.Info("Auto-repair engine stopped")
	return nil
}

// IsMonitoringActive reports whether the scheduler is running
func (e *Engine) IsMonitoringActive() bool {
	return e.running.Load()
}

// Stats returns the engine's monotonic counters
func (e *Engine) Stats() Stats {
	return Stats{
		CyclesTotal:   e.cyclesTotal.Load(),
		RepairsTotal:  e.repairsTotal.Load(),
		RepairsFailed: e.repairsFailed.Load(),
	}
}

// schedulerLoop is the single goroutine driving all three tiers.
// Running them off one loop means tiers can never overlap each other.
func (e *Engine) schedulerLoop(ctx context.Context) {
	defer e.wg.Done()

	checkTicker := time.NewTicker(e.cfg.CheckInterval)
	defer checkTicker.Stop()
	optimizeTicker := time.NewTicker(e.cfg.OptimizeInterval)
	defer optimizeTicker.Stop()
	learnTicker := time.NewTicker(e.cfg.LearnInterval)
	defer learnTicker.Stop()

	// Repairs are not safely preemptible. Stop ends the loop via ctx but
	// an in-flight pass always runs its probes and hooks to completion.
	passCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-checkTicker.C:
			if _, err := e.AutoRepair(passCtx); err != nil && !errors.Is(err, ErrCycleInProgress) {
				e.logger.Error("Scheduled repair cycle failed", zap.Error(err))
			}
		case <-optimizeTicker.C:
			e.optimizePass(passCtx)
		case <-learnTicker.C:
			e.learnPass(passCtx)
		}
	}
}

// AutoRepair runs one full cycle: diagnostics, repair selection,
// execution, verification. Overlapping invocations are rejected with
// ErrCycleInProgress. An orchestration fault aborts the cycle and is
// reported, never propagated as a panic.
func (e *Engine) AutoRepair(ctx context.Context) (CycleReport, error) {
	if !e.cycleActive.CompareAndSwap(false, true) {
		return CycleReport{}, ErrCycleInProgress
	}
	defer e.cycleActive.Store(false)

	report := e.runCycle(ctx)

	e.cyclesTotal.Add(1)
	e.mu.Lock()
	e.lastCycle = &report
	e.mu.Unlock()

	return report, nil
}

func (e *Engine) runCycle(ctx context.Context) (report CycleReport) {
	report = CycleReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}

	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("Repair cycle fault", zap.Any("panic", rec))
			report.Fault = "orchestration fault, cycle aborted"
		}
		e.setPhase(PhaseIdle)
		report.CompletedAt = time.Now()
		e.observeIssues()
		e.markFixAttempts(report.Fixes)
	}()

	e.setPhase(PhaseRunningDiagnostics)
	results := e.deps.Runner.RunAll(ctx)
	report.DiagnosticsRun = len(results)

	for _, result := range results {
		if !result.Passed {
			report.Failures = append(report.Failures, result.Name)
		}
	}

	// All clear: nothing to select, nothing to verify
	if len(report.Failures) == 0 {
		report.Verified = true
		report.Success = true
		return report
	}

	e.setPhase(PhaseSelectingRepairs)
	candidates := e.selectRepairs(report.Failures)

	e.setPhase(PhaseExecutingRepairs)
	for _, cand := range candidates {
		fix := e.executeRepair(ctx, cand)
		report.Fixes = append(report.Fixes, fix)
	}

	for _, fix := range report.Fixes {
		if fix.Success {
			report.RepairsApplied++
		} else {
			report.RepairsFailed++
		}
	}

	e.setPhase(PhaseVerifying)
	verification := e.deps.Runner.RunAll(ctx)
	for _, result := range verification {
		if !result.Passed {
			report.FailuresAfter = append(report.FailuresAfter, result.Name)
		}
	}
	report.Verified = len(report.FailuresAfter) == 0
	report.Success = len(report.FailuresAfter) < len(report.Failures)

	e.logger.Info("Repair cycle completed",
		zap.String("cycle", report.ID),
		zap.Int("failures", len(report.Failures)),
		zap.Int("fixes", len(report.Fixes)),
		zap.Int("failures_after", len(report.FailuresAfter)),
		zap.Bool("verified", report.Verified),
	)

	return report
}

// candidate is one selected repair with its provenance
type candidate struct {
	repair     string
	trigger    string
	ruleID     string
	confidence float64
}

// selectRepairs merges the static diagnostic mapping with the rule
// engine's top picks, deduplicating by repair name. Mapped repairs come
// first; rule throttling caps the rule-sourced additions.
func (e *Engine) selectRepairs(failures []string) []candidate {
	var candidates []candidate
	seen := make(map[string]bool)

	for _, diagnostic := range failures {
		for _, name := range e.deps.Mapper.RepairsFor(diagnostic) {
			if seen[name] {
				continue
			}
			seen[name] = true
			candidates = append(candidates, candidate{
				repair:     name,
				trigger:    diagnostic,
				confidence: mapperConfidence,
			})
		}
	}

	snapshot := e.deps.Monitor.Snapshot()
	for _, rule := range e.deps.Rules.SelectTop(snapshot, e.cfg.MaxRulesPerCycle) {
		if seen[rule.Action] {
			continue
		}
		seen[rule.Action] = true
		candidates = append(candidates, candidate{
			repair:     rule.Action,
			trigger:    rule.ID,
			ruleID:     rule.ID,
			confidence: e.deps.Rules.EffectiveConfidence(rule),
		})
	}

	return candidates
}

// executeRepair applies one candidate and records the outcome in the
// fix log, the learner, and (for rule-sourced repairs) the rule
// weights. Repairs are independent: one failing never stops the next.
func (e *Engine) executeRepair(ctx context.Context, cand candidate) AutoFix {
	category, description := "", ""
	if action, ok := e.deps.Catalog.Get(cand.repair); ok {
		category = action.Category
		description = action.Description
	}

	start := time.Now()
	success := e.deps.Catalog.Apply(ctx, cand.repair)

	fix := AutoFix{
		ID:          uuid.NewString(),
		Timestamp:   start,
		Trigger:     cand.trigger,
		Repair:      cand.repair,
		Category:    category,
		Description: description,
		Confidence:  cand.confidence,
		Success:     success,
		Duration:    time.Since(start),
	}

	e.repairsTotal.Add(1)
	if !success {
		e.repairsFailed.Add(1)
	}

	e.deps.Learner.RecordFix(category, cand.trigger, success)
	if cand.ruleID != "" {
		fix.Weight = e.deps.Rules.RecordOutcome(cand.ruleID, success)
	}

	e.appendFix(fix)
	return fix
}

// RunDiagnostics executes all probes on demand without entering a
// repair cycle.
func (e *Engine) RunDiagnostics(ctx context.Context) []diagnostics.Result {
	return e.deps.Runner.RunAll(ctx)
}

// ApplyFix executes one named repair on demand and records it like an
// automatic fix, attributed to a manual trigger.
func (e *Engine) ApplyFix(ctx context.Context, name string) AutoFix {
	category, description := "", ""
	if action, ok := e.deps.Catalog.Get(name); ok {
		category = action.Category
		description = action.Description
	}

	start := time.Now()
	success := e.deps.Catalog.Apply(ctx, name)

	fix := AutoFix{
		ID:          uuid.NewString(),
		Timestamp:   start,
		Trigger:     "manual",
		Repair:      name,
		Category:    category,
		Description: description,
		Confidence:  1,
		Success:     success,
		Duration:    time.Since(start),
	}

	e.repairsTotal.Add(1)
	if !success {
		e.repairsFailed.Add(1)
	}
	e.deps.Learner.RecordFix(category, "manual", success)
	e.appendFix(fix)

	return fix
}

// GetSystemHealth assembles the full detached state view
func (e *Engine) GetSystemHealth() SystemHealth {
	components := e.deps.Monitor.Snapshot()
	overall := e.deps.Monitor.Overall()

	e.mu.RLock()
	defer e.mu.RUnlock()

	fixLog := make([]AutoFix, len(e.fixLog))
	copy(fixLog, e.fixLog)

	var lastCycle *CycleReport
	if e.lastCycle != nil {
		c := *e.lastCycle
		c.Failures = append([]string(nil), e.lastCycle.Failures...)
		c.FailuresAfter = append([]string(nil), e.lastCycle.FailuresAfter...)
		c.Fixes = append([]AutoFix(nil), e.lastCycle.Fixes...)
		lastCycle = &c
	}

	return SystemHealth{
		Overall:    overall,
		Components: components,
		Issues:     e.issues.list(),
		FixLog:     fixLog,
		Learning:   e.deps.Learner.Snapshot(),
		Phase:      e.phase.String(),
		Active:     e.running.Load(),
		LastCycle:  lastCycle,
		Timestamp:  time.Now(),
	}
}

// optimizePass evaluates the conservative optimization rules. It shares
// the cycle guard with AutoRepair so the two never interleave repairs.
func (e *Engine) optimizePass(ctx context.Context) {
	if !e.cycleActive.CompareAndSwap(false, true) {
		return
	}
	defer e.cycleActive.Store(false)

	snapshot := e.deps.Monitor.Snapshot()
	selected := e.deps.Optimizer.SelectTop(snapshot, e.cfg.MaxRulesPerCycle)
	if len(selected) == 0 {
		return
	}

	e.logger.Info("Optimization pass", zap.Int("rules", len(selected)))
	var fixes []AutoFix
	for _, rule := range selected {
		category, description := "", ""
		if action, ok := e.deps.Catalog.Get(rule.Action); ok {
			category = action.Category
			description = action.Description
		}

		start := time.Now()
		success := e.deps.Catalog.Apply(ctx, rule.Action)

		e.repairsTotal.Add(1)
		if !success {
			e.repairsFailed.Add(1)
		}
		e.deps.Learner.RecordFix(category, rule.ID, success)
		weight := e.deps.Optimizer.RecordOutcome(rule.ID, success)

		fix := AutoFix{
			ID:          uuid.NewString(),
			Timestamp:   start,
			Trigger:     rule.ID,
			Repair:      rule.Action,
			Category:    category,
			Description: description,
			Confidence:  e.deps.Optimizer.EffectiveConfidence(rule),
			Weight:      weight,
			Success:     success,
			Duration:    time.Since(start),
		}
		e.appendFix(fix)
		fixes = append(fixes, fix)
	}
	e.observeIssues()
	e.markFixAttempts(fixes)
}

// learnPass retunes adaptive thresholds and persists the learning state
func (e *Engine) learnPass(ctx context.Context) {
	changed := e.deps.Learner.Retune()
	if len(changed) > 0 {
		e.logger.Info("Learning pass retuned thresholds", zap.Int("changed", len(changed)))
	}

	if e.deps.Store != nil {
		if err := e.deps.Store.SaveMetrics(ctx, e.deps.Learner.Snapshot()); err != nil {
			e.logger.Warn("Failed to persist learning state", zap.Error(err))
		}
	}
}

func (e *Engine) setPhase(phase Phase) {
	e.mu.Lock()
	e.phase = phase
	e.mu.Unlock()
	e.logger.Debug("Cycle phase", zap.String("phase", phase.String()))
}

func (e *Engine) appendFix(fix AutoFix) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.fixLog = append(e.fixLog, fix)
	if max := e.cfg.FixHistorySize; max > 0 && len(e.fixLog) > max {
		e.fixLog = e.fixLog[len(e.fixLog)-max:]
	}
}

func (e *Engine) observeIssues() {
	snapshot := e.deps.Monitor.Snapshot()
	e.mu.Lock()
	e.issues.observe(snapshot, time.Now())
	e.mu.Unlock()
}

func (e *Engine) markFixAttempts(fixes []AutoFix) {
	if len(fixes) == 0 {
		return
	}
	categories := make(map[string]bool, len(fixes))
	for _, fix := range fixes {
		categories[fix.Category] = true
	}
	e.mu.Lock()
	e.issues.markFixAttempts(categories)
	e.mu.Unlock()
}
