package repair

import (
	"context"
	"runtime"
	"runtime/debug"
)

// Repair action names
const (
	ActionOptimizeMemory     = "optimize_memory"
	ActionClearCache         = "clear_cache"
	ActionRestartRenderer    = "restart_renderer"
	ActionReconnectBackend   = "reconnect_backend"
	ActionReloadModelAlpha   = "reload_model_a"
	ActionReloadModelBeta    = "reload_model_b"
	ActionReopenTransport    = "reopen_transport"
	ActionRefreshUI          = "refresh_ui"
	ActionResetNetwork       = "reset_network"
	ActionReinitDependencies = "reinit_dependencies"
	ActionThrottleWorkload   = "throttle_workload"
	ActionCleanupStorage     = "cleanup_storage"
)

// Repair categories, used for learning aggregation
const (
	CategoryMemory     = "memory"
	CategoryRendering  = "rendering"
	CategoryConnection = "connection"
	CategoryModel      = "model"
	CategoryUI         = "ui"
	CategoryNetwork    = "network"
	CategoryStorage    = "storage"
	CategoryWorkload   = "workload"
)

// Hooks carries the environment-specific remediation callbacks supplied
// by the embedding application. Any nil hook degrades to a no-op
// success: the action contract (idempotent, bounded, reported) holds
// even when the environment wires nothing in.
type Hooks struct {
	RestartRenderer    func(ctx context.Context) error
	ReconnectBackend   func(ctx context.Context) error
	ReloadModel        func(ctx context.Context, model string) error
	ReopenTransport    func(ctx context.Context) error
	RefreshUI          func(ctx context.Context) error
	ResetNetwork       func(ctx context.Context) error
	ReinitDependencies func(ctx context.Context) error
	ThrottleWorkload   func(ctx context.Context) error
	CleanupStorage     func(ctx context.Context) error
	ClearCache         func(ctx context.Context) error
}

// RegisterDefaults populates the catalog with the standard repair set
func RegisterDefaults(catalog *Catalog, hooks Hooks) {
	catalog.Register(Action{
		Name:        ActionOptimizeMemory,
		Category:    CategoryMemory,
		Description: "Force garbage collection and return freed memory to the OS",
		Run: func(ctx context.Context) error {
			runtime.GC()
			debug.FreeOSMemory()
			return nil
		},
	})

	catalog.Register(Action{
		Name:        ActionClearCache,
		Category:    CategoryMemory,
		Description: "Drop cached snapshot responses",
		Run:         hookOrNoop(hooks.ClearCache),
	})

	catalog.Register(Action{
		Name:        ActionRestartRenderer,
		Category:    CategoryRendering,
		Description: "Restart the rendering layer",
		Run:         hookOrNoop(hooks.RestartRenderer),
	})

	catalog.Register(Action{
		Name:        ActionReconnectBackend,
		Category:    CategoryConnection,
		Description: "Re-establish the backend connection",
		Run:         hookOrNoop(hooks.ReconnectBackend),
	})

	catalog.Register(Action{
		Name:        ActionReloadModelAlpha,
		Category:    CategoryModel,
		Description: "Reload the primary inference model",
		Run:         modelHook(hooks.ReloadModel, "model-a"),
	})

	catalog.Register(Action{
		Name:        ActionReloadModelBeta,
		Category:    CategoryModel,
		Description: "Reload the secondary inference model",
		Run:         modelHook(hooks.ReloadModel, "model-b"),
	})

	catalog.Register(Action{
		Name:        ActionReopenTransport,
		Category:    CategoryConnection,
		Description: "Reopen the conversational transport",
		Run:         hookOrNoop(hooks.ReopenTransport),
	})

	catalog.Register(Action{
		Name:        ActionRefreshUI,
		Category:    CategoryUI,
		Description: "Refresh the dashboard UI state",
		Run:         hookOrNoop(hooks.RefreshUI),
	})

	catalog.Register(Action{
		Name:        ActionResetNetwork,
		Category:    CategoryNetwork,
		Description: "Reset pooled network connections",
		Run:         hookOrNoop(hooks.ResetNetwork),
	})

	catalog.Register(Action{
		Name:        ActionReinitDependencies,
		Category:    CategoryConnection,
		Description: "Reinitialize third-party dependency clients",
		Run:         hookOrNoop(hooks.ReinitDependencies),
	})

	catalog.Register(Action{
		Name:        ActionThrottleWorkload,
		Category:    CategoryWorkload,
		Description: "Reduce background workload concurrency",
		Run:         hookOrNoop(hooks.ThrottleWorkload),
	})

	catalog.Register(Action{
		Name:        ActionCleanupStorage,
		Category:    CategoryStorage,
		Description: "Remove expired local data",
		Run:         hookOrNoop(hooks.CleanupStorage),
	})
}

func hookOrNoop(hook func(ctx context.Context) error) func(ctx context.Context) error {
	if hook == nil {
		return func(ctx context.Context) error { return nil }
	}
	return hook
}

func modelHook(hook func(ctx context.Context, model string) error, model string) func(ctx context.Context) error {
	if hook == nil {
		return func(ctx context.Context) error { return nil }
	}
	return func(ctx context.Context) error {
		return hook(ctx, model)
	}
}
