package rules

import (
	"github.com/shizukutanaka/Kaifuku/internal/health"
	"github.com/shizukutanaka/Kaifuku/internal/repair"
)

func componentState(snapshot Snapshot, c health.Component) health.State {
	return snapshot[c].State
}

func componentTrend(snapshot Snapshot, c health.Component) health.Trend {
	return snapshot[c].Trend
}

// DefaultRules is the primary pattern-repair table evaluated every
// fast-tier cycle.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "memory-pressure",
			Description: "Memory component failing or offline",
			Category:    repair.CategoryMemory,
			Action:      repair.ActionOptimizeMemory,
			Confidence:  0.9,
			Condition: func(s Snapshot) bool {
				return componentState(s, health.ComponentMemory) >= health.StateFailing
			},
		},
		{
			ID:          "memory-degrading",
			Description: "Memory degraded with a worsening trend",
			Category:    repair.CategoryMemory,
			Action:      repair.ActionClearCache,
			Confidence:  0.7,
			Condition: func(s Snapshot) bool {
				return componentState(s, health.ComponentMemory) == health.StateDegraded &&
					componentTrend(s, health.ComponentMemory) == health.TrendDegrading
			},
		},
		{
			ID:          "backend-unreachable",
			Description: "Backend connection failing or offline",
			Category:    repair.CategoryConnection,
			Action:      repair.ActionReconnectBackend,
			Confidence:  0.85,
			Condition: func(s Snapshot) bool {
				return componentState(s, health.ComponentBackend) >= health.StateFailing
			},
		},
		{
			ID:          "transport-stalled",
			Description: "Conversational transport failing",
			Category:    repair.CategoryConnection,
			Action:      repair.ActionReopenTransport,
			Confidence:  0.8,
			Condition: func(s Snapshot) bool {
				return componentState(s, health.ComponentTransport) >= health.StateFailing
			},
		},
		{
			ID:          "model-a-down",
			Description: "Primary inference model unavailable",
			Category:    repair.CategoryModel,
			Action:      repair.ActionReloadModelAlpha,
			Confidence:  0.8,
			Condition: func(s Snapshot) bool {
				return componentState(s, health.ComponentModelAlpha) >= health.StateFailing
			},
		},
		{
			ID:          "model-b-down",
			Description: "Secondary inference model unavailable",
			Category:    repair.CategoryModel,
			Action:      repair.ActionReloadModelBeta,
			Confidence:  0.75,
			Condition: func(s Snapshot) bool {
				return componentState(s, health.ComponentModelBeta) >= health.StateFailing
			},
		},
		{
			ID:          "network-flapping",
			Description: "Network reachability failing",
			Category:    repair.CategoryNetwork,
			Action:      repair.ActionResetNetwork,
			Confidence:  0.75,
			Condition: func(s Snapshot) bool {
				return componentState(s, health.ComponentNetwork) >= health.StateFailing
			},
		},
		{
			ID:          "render-slump",
			Description: "Rendering performance sliding",
			Category:    repair.CategoryRendering,
			Action:      repair.ActionRestartRenderer,
			Confidence:  0.6,
			Condition: func(s Snapshot) bool {
				return componentState(s, health.ComponentRendering) >= health.StateDegraded &&
					componentTrend(s, health.ComponentRendering) == health.TrendDegrading
			},
		},
		{
			ID:          "ui-sluggish",
			Description: "UI responsiveness degraded",
			Category:    repair.CategoryUI,
			Action:      repair.ActionRefreshUI,
			Confidence:  0.65,
			Condition: func(s Snapshot) bool {
				return componentState(s, health.ComponentUI) >= health.StateDegraded
			},
		},
		{
			ID:          "dependency-outage",
			Description: "Third-party dependencies failing",
			Category:    repair.CategoryConnection,
			Action:      repair.ActionReinitDependencies,
			Confidence:  0.7,
			Condition: func(s Snapshot) bool {
				return componentState(s, health.ComponentDependencies) >= health.StateFailing
			},
		},
	}
}

// OptimizationRules is the conservative variant evaluated on the
// medium tier. Same engine, different table: lower confidences and
// load-shedding actions instead of component restarts.
func OptimizationRules() []Rule {
	return []Rule{
		{
			ID:          "broad-degradation",
			Description: "Three or more components below healthy",
			Category:    repair.CategoryWorkload,
			Action:      repair.ActionThrottleWorkload,
			Confidence:  0.5,
			Condition: func(s Snapshot) bool {
				degraded := 0
				for _, status := range s {
					if status.State >= health.StateDegraded {
						degraded++
					}
				}
				return degraded >= 3
			},
		},
		{
			ID:          "memory-churn",
			Description: "Memory merely degraded; shed caches before it worsens",
			Category:    repair.CategoryMemory,
			Action:      repair.ActionClearCache,
			Confidence:  0.45,
			Condition: func(s Snapshot) bool {
				return componentState(s, health.ComponentMemory) == health.StateDegraded
			},
		},
		{
			ID:          "storage-hygiene",
			Description: "Sustained memory decline often tracks local data growth",
			Category:    repair.CategoryStorage,
			Action:      repair.ActionCleanupStorage,
			Confidence:  0.4,
			Condition: func(s Snapshot) bool {
				return componentTrend(s, health.ComponentMemory) == health.TrendDegrading
			},
		},
	}
}
