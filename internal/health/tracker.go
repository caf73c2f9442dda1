package health

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// trendWindow is the number of samples on each side of the trend
// comparison. Fewer than 2*trendWindow samples reads as stable.
const trendWindow = 3

// Status is a point-in-time view of one component's health. History and
// Metrics are copies; callers may mutate them freely.
type Status struct {
	Component   Component          `json:"component"`
	State       State              `json:"state"`
	Performance float64            `json:"performance"`
	Trend       Trend              `json:"trend"`
	History     []float64          `json:"history"`
	Metrics     map[string]float64 `json:"metrics"`
	LastCheck   time.Time          `json:"last_check"`
}

// Tracker maintains the rolling performance history for one component.
// It is not safe for concurrent use; the Monitor serializes access.
type Tracker struct {
	component Component
	score     float64
	history   []float64
	cap       int
	metrics   map[string]float64
	lastCheck time.Time
}

// NewTracker creates a tracker with the given history capacity
func NewTracker(component Component, historyCap int) *Tracker {
	if historyCap < 2*trendWindow {
		historyCap = 2 * trendWindow
	}
	return &Tracker{
		component: component,
		score:     100,
		history:   make([]float64, 0, historyCap),
		cap:       historyCap,
		metrics:   make(map[string]float64),
	}
}

// Update records a new performance sample. Scores outside [0,100] are
// clamped. Update never fails.
func (t *Tracker) Update(score float64, metrics map[string]float64, now time.Time) {
	score = clamp(score, 0, 100)

	t.score = score
	t.history = append(t.history, score)
	if len(t.history) > t.cap {
		t.history = t.history[len(t.history)-t.cap:]
	}

	for k, v := range metrics {
		t.metrics[k] = v
	}
	t.lastCheck = now
}

// State derives the discrete state from the latest score
func (t *Tracker) State() State {
	return DeriveState(t.score)
}

// Trend compares the mean of the most recent samples against the mean
// of the samples preceding them
func (t *Tracker) Trend() Trend {
	if len(t.history) < 2*trendWindow {
		return TrendStable
	}

	recent := t.history[len(t.history)-trendWindow:]
	previous := t.history[len(t.history)-2*trendWindow : len(t.history)-trendWindow]

	recentMean := stat.Mean(recent, nil)
	previousMean := stat.Mean(previous, nil)

	const epsilon = 1.0
	switch {
	case recentMean > previousMean+epsilon:
		return TrendImproving
	case recentMean < previousMean-epsilon:
		return TrendDegrading
	default:
		return TrendStable
	}
}

// Performance returns the latest clamped score
func (t *Tracker) Performance() float64 {
	return t.score
}

// Status returns a detached copy of the tracker's current view
func (t *Tracker) Status() Status {
	history := make([]float64, len(t.history))
	copy(history, t.history)

	metrics := make(map[string]float64, len(t.metrics))
	for k, v := range t.metrics {
		metrics[k] = v
	}

	return Status{
		Component:   t.component,
		State:       t.State(),
		Performance: t.score,
		Trend:       t.Trend(),
		History:     history,
		Metrics:     metrics,
		LastCheck:   t.lastCheck,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
