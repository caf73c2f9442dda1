// Package app wires the subsystems into a runnable application:
// health monitor, diagnostics, repair catalog, rule engines, learning,
// snapshot cache, auto-repair engine, and the API server.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shizukutanaka/Kaifuku/internal/api"
	"github.com/shizukutanaka/Kaifuku/internal/cache"
	"github.com/shizukutanaka/Kaifuku/internal/config"
	"github.com/shizukutanaka/Kaifuku/internal/diagnostics"
	"github.com/shizukutanaka/Kaifuku/internal/engine"
	"github.com/shizukutanaka/Kaifuku/internal/health"
	"github.com/shizukutanaka/Kaifuku/internal/learning"
	"github.com/shizukutanaka/Kaifuku/internal/repair"
	"github.com/shizukutanaka/Kaifuku/internal/rules"
)

// goroutineLimit is the diagnostic ceiling before the goroutine probe
// reports a leak.
const goroutineLimit = 10000

// App owns the lifecycle of every subsystem
type App struct {
	logger *zap.Logger
	cfg    *config.Config

	monitor   *health.Monitor
	engine    *engine.Engine
	server    *api.Server
	snapCache *cache.SnapshotCache
	store     *learning.Store
	watcher   *config.Watcher
}

// New builds the application graph from configuration. Hooks supplies
// the environment-specific repair callbacks; zero value is valid.
func New(logger *zap.Logger, cfg *config.Config, hooks repair.Hooks) (*App, error) {
	a := &App{logger: logger, cfg: cfg}

	a.monitor = health.NewMonitor(logger, cfg.Monitor.HistorySize)
	learner := learning.NewLearner(logger)

	if cfg.Learning.Enabled {
		store, err := learning.NewStore(logger, cfg.Learning.DBPath)
		if err != nil {
			return nil, fmt.Errorf("learning store: %w", err)
		}
		a.store = store
	}

	if cfg.Cache.Enabled {
		snapCache, err := cache.New(logger, cache.Options{
			TTL:    cfg.Cache.TTL,
			Shards: cfg.Cache.Shards,
			SizeMB: cfg.Cache.SizeMB,
		})
		if err != nil {
			return nil, fmt.Errorf("snapshot cache: %w", err)
		}
		a.snapCache = snapCache

		if hooks.ClearCache == nil {
			hooks.ClearCache = func(ctx context.Context) error {
				return a.snapCache.Reset()
			}
		}
	}

	catalog := repair.NewCatalog(logger)
	repair.RegisterDefaults(catalog, hooks)

	runner := diagnostics.NewRunner(logger, cfg.Monitor.ProbeTimeout)
	a.registerProbes(runner, learner)

	a.engine = engine.New(logger, cfg.Monitor, engine.Deps{
		Monitor:   a.monitor,
		Runner:    runner,
		Catalog:   catalog,
		Mapper:    repair.NewMapper(),
		Rules:     rules.NewEngine(logger, rules.DefaultRules()),
		Optimizer: rules.NewEngine(logger, rules.OptimizationRules()),
		Learner:   learner,
		Store:     a.store,
	})

	if cfg.API.Enabled {
		a.server = api.NewServer(logger, cfg.API, a.engine, a.snapCache)
	}

	return a, nil
}

// registerProbes wires the diagnostic suite: one probe per tracked
// component plus the system-level resource probes with adaptive
// thresholds. The memory component gets both: a tracker probe under
// memory_state_check and the system RAM probe under memory_check.
func (a *App) registerProbes(runner *diagnostics.Runner, learner *learning.Learner) {
	componentChecks := []struct {
		name      string
		component health.Component
	}{
		{diagnostics.CheckRendering, health.ComponentRendering},
		{diagnostics.CheckBackend, health.ComponentBackend},
		{diagnostics.CheckModelAlpha, health.ComponentModelAlpha},
		{diagnostics.CheckModelBeta, health.ComponentModelBeta},
		{diagnostics.CheckTransport, health.ComponentTransport},
		{diagnostics.CheckUI, health.ComponentUI},
		{diagnostics.CheckMemoryState, health.ComponentMemory},
		{diagnostics.CheckNetwork, health.ComponentNetwork},
		{diagnostics.CheckDependencies, health.ComponentDependencies},
	}
	for _, c := range componentChecks {
		runner.Register(c.name, diagnostics.ComponentProbe(a.monitor, c.component))
	}

	runner.Register(diagnostics.CheckMemory,
		diagnostics.MemoryProbe(learner.ThresholdFunc(learning.ThresholdMemoryPercent)))
	runner.Register(diagnostics.CheckCPU,
		diagnostics.CPUProbe(learner.ThresholdFunc(learning.ThresholdCPUPercent)))
	runner.Register(diagnostics.CheckDisk,
		diagnostics.DiskProbe(a.cfg.DataDir, learner.ThresholdFunc(learning.ThresholdDiskPercent)))
	runner.Register(diagnostics.CheckGoroutines, diagnostics.GoroutineProbe(goroutineLimit))
}

// Start launches the engine and, when enabled, the API server and the
// configuration watcher.
func (a *App) Start(ctx context.Context, configPath string) error {
	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if a.server != nil {
		a.server.Start()
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(a.logger, configPath)
		if err != nil {
			a.logger.Warn("Config watcher unavailable", zap.Error(err))
		} else {
			a.watcher = watcher
			if err := watcher.Start(a.onConfigChange); err != nil {
				a.logger.Warn("Config watcher failed to start", zap.Error(err))
				a.watcher = nil
			}
		}
	}

	return nil
}

// onConfigChange applies the reloadable subset of configuration.
// Interval and structural changes require a restart and are only
// logged.
func (a *App) onConfigChange(cfg *config.Config) {
	a.logger.Info("Configuration changed",
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("check_interval", cfg.Monitor.CheckInterval),
	)
	if cfg.Monitor.CheckInterval != a.cfg.Monitor.CheckInterval {
		a.logger.Warn("Interval changes take effect after restart")
	}
	a.cfg = cfg
}

// Engine exposes the auto-repair engine for embedding callers
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Monitor exposes the health monitor so the embedding application can
// feed component performance samples.
func (a *App) Monitor() *health.Monitor {
	return a.monitor
}

// Stop shuts everything down in reverse start order
func (a *App) Stop() {
	if a.watcher != nil {
		a.watcher.Stop()
	}

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.server.Stop(ctx); err != nil {
			a.logger.Error("API server shutdown error", zap.Error(err))
		}
	}

	if err := a.engine.Stop(); err != nil && err != engine.ErrNotRunning {
		a.logger.Error("Engine shutdown error", zap.Error(err))
	}

	if a.snapCache != nil {
		a.snapCache.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Learning store close error", zap.Error(err))
		}
	}

	a.logger.Info("Kaifuku stopped")
}
