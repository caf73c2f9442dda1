package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shizukutanaka/Kaifuku/internal/health"
	"github.com/shizukutanaka/Kaifuku/internal/repair"
)

// Issue severities
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Issue is a detected component problem. Recurrence counts how many
// consecutive detection passes have seen the same pattern, so a problem
// that keeps coming back reads differently from a fresh one.
type Issue struct {
	ID          string           `json:"id"`
	Component   health.Component `json:"component"`
	Severity    string           `json:"severity"`
	PatternKey  string           `json:"pattern_key"`
	Description string           `json:"description"`
	AutoFixable bool             `json:"auto_fixable"`
	FixApplied  bool             `json:"fix_applied"`
	Recurrence  int              `json:"recurrence"`
	FirstSeen   time.Time        `json:"first_seen"`
	LastSeen    time.Time        `json:"last_seen"`
}

// severityFor grades an unhealthy component: a merely degraded
// component is low unless it is still sliding, failing is high, and
// offline is critical.
func severityFor(status health.Status) string {
	switch status.State {
	case health.StateDegraded:
		if status.Trend == health.TrendDegrading {
			return SeverityMedium
		}
		return SeverityLow
	case health.StateFailing:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// componentCategory links a component to the repair category that
// addresses it, for AutoFixable and FixApplied bookkeeping.
var componentCategory = map[health.Component]string{
	health.ComponentRendering:    repair.CategoryRendering,
	health.ComponentBackend:      repair.CategoryConnection,
	health.ComponentModelAlpha:   repair.CategoryModel,
	health.ComponentModelBeta:    repair.CategoryModel,
	health.ComponentTransport:    repair.CategoryConnection,
	health.ComponentUI:           repair.CategoryUI,
	health.ComponentMemory:       repair.CategoryMemory,
	health.ComponentNetwork:      repair.CategoryNetwork,
	health.ComponentDependencies: repair.CategoryConnection,
}

// issueTracker maintains open issues keyed by pattern across detection
// passes. Not safe for concurrent use; the engine serializes access.
type issueTracker struct {
	open map[string]*Issue
}

func newIssueTracker() *issueTracker {
	return &issueTracker{open: make(map[string]*Issue)}
}

// observe reconciles open issues against the current snapshot. A
// component below healthy opens or refreshes an issue; a component back
// at healthy closes its issues.
func (t *issueTracker) observe(snapshot map[health.Component]health.Status, now time.Time) {
	seen := make(map[string]bool)

	for component, status := range snapshot {
		if status.State == health.StateHealthy {
			continue
		}

		key := fmt.Sprintf("%s:%s", component, status.State)
		seen[key] = true

		if existing, ok := t.open[key]; ok {
			existing.Recurrence++
			existing.LastSeen = now
			existing.Severity = severityFor(status)
			continue
		}

		_, fixable := componentCategory[component]
		t.open[key] = &Issue{
			ID:         uuid.NewString(),
			Component:  component,
			Severity:   severityFor(status),
			PatternKey: key,
			Description: fmt.Sprintf("%s is %s (performance %.1f, trend %s)",
				component, status.State, status.Performance, status.Trend),
			AutoFixable: fixable,
			Recurrence:  1,
			FirstSeen:   now,
			LastSeen:    now,
		}
	}

	for key := range t.open {
		if !seen[key] {
			delete(t.open, key)
		}
	}
}

// markFixAttempts flags open issues whose repair category was just
// exercised by an executed fix.
func (t *issueTracker) markFixAttempts(categories map[string]bool) {
	for _, issue := range t.open {
		if categories[componentCategory[issue.Component]] {
			issue.FixApplied = true
		}
	}
}

// list returns detached copies of the open issues, oldest first
func (t *issueTracker) list() []Issue {
	issues := make([]Issue, 0, len(t.open))
	for _, issue := range t.open {
		issues = append(issues, *issue)
	}
	sort.Slice(issues, func(i, j int) bool {
		return issues[i].FirstSeen.Before(issues[j].FirstSeen)
	})
	return issues
}
