package health

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Monitor owns one tracker per component and aggregates them into an
// overall system state. It is the only writer of component health;
// readers always receive detached copies.
type Monitor struct {
	logger   *zap.Logger
	trackers map[Component]*Tracker
	mu       sync.RWMutex
}

// NewMonitor creates a monitor with a tracker for every component
func NewMonitor(logger *zap.Logger, historyCap int) *Monitor {
	trackers := make(map[Component]*Tracker, len(Components()))
	for _, c := range Components() {
		trackers[c] = NewTracker(c, historyCap)
	}

	return &Monitor{
		logger:   logger,
		trackers: trackers,
	}
}

// UpdateComponent records a new performance sample for a component.
// Unknown components are ignored with a warning; the update path never
// fails.
func (m *Monitor) UpdateComponent(component Component, score float64, metrics map[string]float64) {
	if !component.Valid() {
		m.logger.Warn("Ignoring update for unknown component",
			zap.String("component", string(component)),
		)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tracker := m.trackers[component]
	previous := tracker.State()
	tracker.Update(score, metrics, time.Now())
	current := tracker.State()

	if current != previous {
		m.logger.Info("Component state changed",
			zap.String("component", string(component)),
			zap.String("from", previous.String()),
			zap.String("to", current.String()),
			zap.Float64("performance", tracker.Performance()),
		)
	}
}

// Status returns a detached status for one component
func (m *Monitor) Status(component Component) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tracker, ok := m.trackers[component]
	if !ok {
		return Status{}, false
	}
	return tracker.Status(), true
}

// Snapshot returns detached statuses for all components
func (m *Monitor) Snapshot() map[Component]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[Component]Status, len(m.trackers))
	for c, tracker := range m.trackers {
		snapshot[c] = tracker.Status()
	}
	return snapshot
}

// Overall aggregates component states: the worst state sets the level,
// and the mean performance across components decides the boundary cases.
// A single degraded component in an otherwise strong fleet reads as
// good; a fleet-wide slump at the same worst state reads one level
// lower.
func (m *Monitor) Overall() Overall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	worst := StateHealthy
	scores := make([]float64, 0, len(m.trackers))
	for _, tracker := range m.trackers {
		if s := tracker.State(); s > worst {
			worst = s
		}
		scores = append(scores, tracker.Performance())
	}

	mean := stat.Mean(scores, nil)

	switch worst {
	case StateHealthy:
		return OverallExcellent
	case StateDegraded:
		if mean >= 75 {
			return OverallGood
		}
		return OverallWarning
	case StateFailing:
		if mean >= 50 {
			return OverallWarning
		}
		return OverallCritical
	default:
		return OverallCritical
	}
}
