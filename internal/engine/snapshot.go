package engine

import (
	"time"

	"github.com/shizukutanaka/Kaifuku/internal/health"
	"github.com/shizukutanaka/Kaifuku/internal/learning"
)

// Phase is the orchestrator's position in the repair cycle
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunningDiagnostics
	PhaseSelectingRepairs
	PhaseExecutingRepairs
	PhaseVerifying
)

// String implements fmt.Stringer
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunningDiagnostics:
		return "running_diagnostics"
	case PhaseSelectingRepairs:
		return "selecting_repairs"
	case PhaseExecutingRepairs:
		return "executing_repairs"
	case PhaseVerifying:
		return "verifying"
	default:
		return "unknown"
	}
}

// mapperConfidence is the fixed confidence attributed to repairs
// selected through the static diagnostic mapping.
const mapperConfidence = 0.9

// AutoFix is one recorded repair attempt. Confidence comes from the
// selecting rule, or a fixed value for mapped and manual repairs.
// Weight is the rule's learning weight after this outcome; zero for
// non-rule repairs.
type AutoFix struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	Trigger     string        `json:"trigger"`
	Repair      string        `json:"repair"`
	Category    string        `json:"category"`
	Description string        `json:"description,omitempty"`
	Confidence  float64       `json:"confidence"`
	Weight      float64       `json:"weight,omitempty"`
	Success     bool          `json:"success"`
	Duration    time.Duration `json:"duration"`
}

// CycleReport summarizes one auto-repair cycle. Success means the
// failure count strictly decreased; Verified means every diagnostic
// passed on the re-run.
type CycleReport struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	DiagnosticsRun int       `json:"diagnostics_run"`
	Failures       []string  `json:"failures,omitempty"`
	Fixes          []AutoFix `json:"fixes,omitempty"`
	RepairsApplied int       `json:"repairs_applied"`
	RepairsFailed  int       `json:"repairs_failed"`
	FailuresAfter  []string  `json:"failures_after,omitempty"`
	Success        bool      `json:"success"`
	Verified       bool      `json:"verified"`
	Fault          string    `json:"fault,omitempty"`
}

// SystemHealth is the full externally visible state. Every field is a
// detached copy; callers may mutate it freely.
type SystemHealth struct {
	Overall    health.Overall                    `json:"overall"`
	Components map[health.Component]health.Status `json:"components"`
	Issues     []Issue                           `json:"issues"`
	FixLog     []AutoFix                         `json:"fix_log"`
	Learning   learning.Metrics                  `json:"learning"`
	Phase      string                            `json:"phase"`
	Active     bool                              `json:"active"`
	LastCycle  *CycleReport                      `json:"last_cycle,omitempty"`
	Timestamp  time.Time                         `json:"timestamp"`
}
