// Package health tracks per-component performance history and derives
// discrete health state and trend for the dashboard subsystems.
package health

import (
	"encoding/json"
	"fmt"
)

// Component identifies one monitored dashboard subsystem. The set is
// closed; the Monitor rejects anything else.
type Component string

const (
	ComponentRendering    Component = "rendering"
	ComponentBackend      Component = "backend"
	ComponentModelAlpha   Component = "model-a"
	ComponentModelBeta    Component = "model-b"
	ComponentTransport    Component = "transport"
	ComponentUI           Component = "ui"
	ComponentMemory       Component = "memory"
	ComponentNetwork      Component = "network"
	ComponentDependencies Component = "dependencies"
)

// Components returns all monitored components in stable order
func Components() []Component {
	return []Component{
		ComponentRendering,
		ComponentBackend,
		ComponentModelAlpha,
		ComponentModelBeta,
		ComponentTransport,
		ComponentUI,
		ComponentMemory,
		ComponentNetwork,
		ComponentDependencies,
	}
}

// Valid reports whether c belongs to the closed component set
func (c Component) Valid() bool {
	switch c {
	case ComponentRendering, ComponentBackend, ComponentModelAlpha,
		ComponentModelBeta, ComponentTransport, ComponentUI,
		ComponentMemory, ComponentNetwork, ComponentDependencies:
		return true
	}
	return false
}

// State is the discrete health state of a component
type State int

const (
	StateHealthy State = iota
	StateDegraded
	StateFailing
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateFailing:
		return "failing"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state by name so API consumers see
// "degraded" rather than an ordinal.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "healthy":
		*s = StateHealthy
	case "degraded":
		*s = StateDegraded
	case "failing":
		*s = StateFailing
	case "offline":
		*s = StateOffline
	default:
		return fmt.Errorf("unknown health state %q", name)
	}
	return nil
}

// DeriveState maps a performance score onto a discrete state.
// Bands: >80 healthy, >60 degraded, >30 failing, else offline.
func DeriveState(score float64) State {
	switch {
	case score > 80:
		return StateHealthy
	case score > 60:
		return StateDegraded
	case score > 30:
		return StateFailing
	default:
		return StateOffline
	}
}

// Trend describes the recent direction of a component's performance
type Trend int

const (
	TrendStable Trend = iota
	TrendImproving
	TrendDegrading
)

func (t Trend) String() string {
	switch t {
	case TrendImproving:
		return "improving"
	case TrendDegrading:
		return "degrading"
	default:
		return "stable"
	}
}

func (t Trend) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Trend) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "stable":
		*t = TrendStable
	case "improving":
		*t = TrendImproving
	case "degrading":
		*t = TrendDegrading
	default:
		return fmt.Errorf("unknown trend %q", name)
	}
	return nil
}

// Overall is the aggregate health of the whole system
type Overall int

const (
	OverallExcellent Overall = iota
	OverallGood
	OverallWarning
	OverallCritical
)

func (o Overall) String() string {
	switch o {
	case OverallExcellent:
		return "excellent"
	case OverallGood:
		return "good"
	case OverallWarning:
		return "warning"
	case OverallCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func (o Overall) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Overall) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "excellent":
		*o = OverallExcellent
	case "good":
		*o = OverallGood
	case "warning":
		*o = OverallWarning
	case "critical":
		*o = OverallCritical
	default:
		return fmt.Errorf("unknown overall health %q", name)
	}
	return nil
}
