// Package learning accumulates repair outcome history and adapts the
// numeric thresholds the diagnostics and rules consume. It never
// triggers repairs itself.
package learning

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Threshold names
const (
	ThresholdMemoryPercent = "memory_used_percent"
	ThresholdCPUPercent    = "cpu_used_percent"
	ThresholdDiskPercent   = "disk_used_percent"
	ThresholdWarningScore  = "warning_score"
)

// Metrics is the serializable learning state persisted across
// monitoring sessions.
type Metrics struct {
	TotalFixes      int                `json:"total_fixes"`
	SuccessfulFixes int                `json:"successful_fixes"`
	SuccessRate     float64            `json:"success_rate"`
	PatternCounts   map[string]int     `json:"pattern_counts"`
	Thresholds      map[string]float64 `json:"thresholds"`
}

// Outcome is one repair attempt as seen by the learner
type Outcome struct {
	Category   string
	PatternKey string
	Success    bool
	Timestamp  time.Time
}

// recentWindow bounds the outcome history used for retuning
const recentWindow = 200

// thresholdBounds keeps adaptation inside sane limits
type thresholdBounds struct {
	def, min, max float64
}

var bounds = map[string]thresholdBounds{
	ThresholdMemoryPercent: {def: 85, min: 70, max: 95},
	ThresholdCPUPercent:    {def: 90, min: 75, max: 98},
	ThresholdDiskPercent:   {def: 90, min: 80, max: 98},
	ThresholdWarningScore:  {def: 70, min: 50, max: 85},
}

// categoryThreshold maps a repair category to the threshold its
// outcomes retune. Categories without a threshold only feed pattern
// counts.
var categoryThreshold = map[string]string{
	"memory":   ThresholdMemoryPercent,
	"workload": ThresholdCPUPercent,
	"storage":  ThresholdDiskPercent,
}

// Learner owns the metrics and the adaptive thresholds
type Learner struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	metrics Metrics
	recent  []Outcome
}

// NewLearner creates a learner with default thresholds
func NewLearner(logger *zap.Logger) *Learner {
	thresholds := make(map[string]float64, len(bounds))
	for name, b := range bounds {
		thresholds[name] = b.def
	}

	return &Learner{
		logger: logger,
		metrics: Metrics{
			PatternCounts: make(map[string]int),
			Thresholds:    thresholds,
		},
	}
}

// Threshold returns the current adaptive value for a named threshold,
// falling back to the default for unknown names.
func (l *Learner) Threshold(name string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if v, ok := l.metrics.Thresholds[name]; ok {
		return v
	}
	if b, ok := bounds[name]; ok {
		return b.def
	}
	return 0
}

// ThresholdFunc returns a getter bound to a named threshold, suitable
// for handing to diagnostics so retunes apply on the next probe run.
func (l *Learner) ThresholdFunc(name string) func() float64 {
	return func() float64 { return l.Threshold(name) }
}

// RecordFix folds one repair outcome into the metrics
func (l *Learner) RecordFix(category, patternKey string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.metrics.TotalFixes++
	if success {
		l.metrics.SuccessfulFixes++
	}
	l.metrics.SuccessRate = float64(l.metrics.SuccessfulFixes) / float64(l.metrics.TotalFixes)

	if patternKey != "" {
		l.metrics.PatternCounts[patternKey]++
	}

	l.recent = append(l.recent, Outcome{
		Category:   category,
		PatternKey: patternKey,
		Success:    success,
		Timestamp:  time.Now(),
	})
	if len(l.recent) > recentWindow {
		l.recent = l.recent[len(l.recent)-recentWindow:]
	}
}

// Retune recomputes adaptive thresholds from recent outcome history.
// A category whose repairs keep failing at the current threshold is
// churning: the threshold moves up so the trigger fires later. A
// category whose repairs almost always succeed earns a slightly
// earlier trigger.
func (l *Learner) Retune() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	byCategory := make(map[string][]float64)
	for _, o := range l.recent {
		v := 0.0
		if o.Success {
			v = 1.0
		}
		byCategory[o.Category] = append(byCategory[o.Category], v)
	}

	changed := make(map[string]float64)
	for category, outcomes := range byCategory {
		name, ok := categoryThreshold[category]
		if !ok || len(outcomes) < 5 {
			continue
		}

		rate := stat.Mean(outcomes, nil)
		b := bounds[name]
		current := l.metrics.Thresholds[name]
		next := current

		switch {
		case rate < 0.4:
			next = current + 2
		case rate > 0.8:
			next = current - 1
		}

		if next < b.min {
			next = b.min
		} else if next > b.max {
			next = b.max
		}

		if next != current {
			l.metrics.Thresholds[name] = next
			changed[name] = next
			l.logger.Info("Adaptive threshold retuned",
				zap.String("threshold", name),
				zap.String("category", category),
				zap.Float64("success_rate", rate),
				zap.Float64("from", current),
				zap.Float64("to", next),
			)
		}
	}

	return changed
}

// Snapshot returns a detached copy of the metrics
func (l *Learner) Snapshot() Metrics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return copyMetrics(l.metrics)
}

// Restore replaces the learning state, typically from the persistence
// store at startup. Unknown thresholds are dropped; missing ones get
// defaults.
func (l *Learner) Restore(m Metrics) {
	l.mu.Lock()
	defer l.mu.Unlock()

	restored := copyMetrics(m)
	if restored.PatternCounts == nil {
		restored.PatternCounts = make(map[string]int)
	}
	if restored.Thresholds == nil {
		restored.Thresholds = make(map[string]float64)
	}
	for name := range restored.Thresholds {
		if _, ok := bounds[name]; !ok {
			delete(restored.Thresholds, name)
		}
	}
	for name, b := range bounds {
		if _, ok := restored.Thresholds[name]; !ok {
			restored.Thresholds[name] = b.def
		}
	}

	l.metrics = restored
}

func copyMetrics(m Metrics) Metrics {
	out := m
	out.PatternCounts = make(map[string]int, len(m.PatternCounts))
	for k, v := range m.PatternCounts {
		out.PatternCounts[k] = v
	}
	out.Thresholds = make(map[string]float64, len(m.Thresholds))
	for k, v := range m.Thresholds {
		out.Thresholds[k] = v
	}
	return out
}
