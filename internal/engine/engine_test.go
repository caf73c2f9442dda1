package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shizukutanaka/Kaifuku/internal/config"
	"github.com/shizukutanaka/Kaifuku/internal/diagnostics"
	"github.com/shizukutanaka/Kaifuku/internal/health"
	"github.com/shizukutanaka/Kaifuku/internal/learning"
	"github.com/shizukutanaka/Kaifuku/internal/repair"
	"github.com/shizukutanaka/Kaifuku/internal/rules"
)

// quietConfig keeps the scheduler tiers from firing during tests
func quietConfig() config.MonitorConfig {
	return config.MonitorConfig{
		CheckInterval:    time.Hour,
		OptimizeInterval: time.Hour,
		LearnInterval:    time.Hour,
		HistorySize:      10,
		ProbeTimeout:     2 * time.Second,
		MaxRulesPerCycle: 2,
		FixHistorySize:   50,
	}
}

type rig struct {
	engine  *Engine
	monitor *health.Monitor
	runner  *diagnostics.Runner
	catalog *repair.Catalog
	learner *learning.Learner
}

func newRig(t *testing.T, cfg config.MonitorConfig, hooks repair.Hooks, ruleSet []rules.Rule) *rig {
	t.Helper()
	logger := zaptest.NewLogger(t)

	monitor := health.NewMonitor(logger, cfg.HistorySize)
	runner := diagnostics.NewRunner(logger, cfg.ProbeTimeout)
	catalog := repair.NewCatalog(logger)
	repair.RegisterDefaults(catalog, hooks)
	learner := learning.NewLearner(logger)

	eng := New(logger, cfg, Deps{
		Monitor:   monitor,
		Runner:    runner,
		Catalog:   catalog,
		Mapper:    repair.NewMapper(),
		Rules:     rules.NewEngine(logger, ruleSet),
		Optimizer: rules.NewEngine(logger, rules.OptimizationRules()),
		Learner:   learner,
	})

	return &rig{engine: eng, monitor: monitor, runner: runner, catalog: catalog, learner: learner}
}

func registerComponentProbes(r *rig) {
	r.runner.Register(diagnostics.CheckMemoryState, diagnostics.ComponentProbe(r.monitor, health.ComponentMemory))
	r.runner.Register(diagnostics.CheckBackend, diagnostics.ComponentProbe(r.monitor, health.ComponentBackend))
	r.runner.Register(diagnostics.CheckNetwork, diagnostics.ComponentProbe(r.monitor, health.ComponentNetwork))
}

func TestEngine_HealthySystemShortCircuits(t *testing.T) {
	var repairCalls atomic.Int32
	hooks := repair.Hooks{
		ClearCache: func(ctx context.Context) error {
			repairCalls.Add(1)
			return nil
		},
		ReconnectBackend: func(ctx context.Context) error {
			repairCalls.Add(1)
			return nil
		},
	}

	r := newRig(t, quietConfig(), hooks, nil)
	registerComponentProbes(r)

	report, err := r.engine.AutoRepair(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Verified)
	assert.Empty(t, report.Failures)
	assert.Empty(t, report.Fixes)
	assert.Equal(t, int32(0), repairCalls.Load())
	assert.Equal(t, "idle", r.engine.GetSystemHealth().Phase)
}

func TestEngine_CycleGuardRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	r := newRig(t, quietConfig(), repair.Hooks{}, nil)
	r.runner.Register("slow_check", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan CycleReport, 1)
	go func() {
		report, _ := r.engine.AutoRepair(context.Background())
		done <- report
	}()

	<-started
	_, err := r.engine.AutoRepair(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(release)
	report := <-done
	assert.True(t, report.Verified)
}

func TestEngine_RepairsAreBestEffort(t *testing.T) {
	hooks := repair.Hooks{
		ReconnectBackend: func(ctx context.Context) error {
			return errors.New("backend still down")
		},
	}

	r := newRig(t, quietConfig(), hooks, nil)
	registerComponentProbes(r)

	// Backend and network both failing; the backend repair errors but
	// the network repair must still run.
	for i := 0; i < 3; i++ {
		r.monitor.UpdateComponent(health.ComponentBackend, 20, nil)
		r.monitor.UpdateComponent(health.ComponentNetwork, 40, nil)
	}

	report, err := r.engine.AutoRepair(context.Background())
	require.NoError(t, err)

	byRepair := make(map[string]bool)
	for _, fix := range report.Fixes {
		byRepair[fix.Repair] = fix.Success
	}

	require.Contains(t, byRepair, repair.ActionReconnectBackend)
	require.Contains(t, byRepair, repair.ActionResetNetwork)
	assert.False(t, byRepair[repair.ActionReconnectBackend])
	assert.True(t, byRepair[repair.ActionResetNetwork])
}

func TestEngine_RuleSelectionThrottled(t *testing.T) {
	var fired atomic.Int32
	count := func(ctx context.Context) error {
		fired.Add(1)
		return nil
	}

	// Five always-true rules, each bound to a distinct action
	ruleSet := []rules.Rule{
		{ID: "r1", Action: "noop_1", Confidence: 0.9, Condition: func(rules.Snapshot) bool { return true }},
		{ID: "r2", Action: "noop_2", Confidence: 0.8, Condition: func(rules.Snapshot) bool { return true }},
		{ID: "r3", Action: "noop_3", Confidence: 0.7, Condition: func(rules.Snapshot) bool { return true }},
		{ID: "r4", Action: "noop_4", Confidence: 0.6, Condition: func(rules.Snapshot) bool { return true }},
		{ID: "r5", Action: "noop_5", Confidence: 0.5, Condition: func(rules.Snapshot) bool { return true }},
	}

	r := newRig(t, quietConfig(), repair.Hooks{}, ruleSet)
	for _, name := range []string{"noop_1", "noop_2", "noop_3", "noop_4", "noop_5"} {
		r.catalog.Register(repair.Action{Name: name, Category: "test", Run: count})
	}

	// A failing diagnostic with no static mapping forces selection to
	// rely on the rule engine alone.
	r.runner.Register("unmapped_check", func(ctx context.Context) error {
		return errors.New("always failing")
	})

	report, err := r.engine.AutoRepair(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), fired.Load())
	require.Len(t, report.Fixes, 2)
	assert.Equal(t, "noop_1", report.Fixes[0].Repair)
	assert.Equal(t, "noop_2", report.Fixes[1].Repair)
}

func TestEngine_FixLogBounded(t *testing.T) {
	cfg := quietConfig()
	cfg.FixHistorySize = 5

	r := newRig(t, cfg, repair.Hooks{}, nil)

	for i := 0; i < 12; i++ {
		r.engine.ApplyFix(context.Background(), repair.ActionRefreshUI)
	}

	fixLog := r.engine.GetSystemHealth().FixLog
	assert.Len(t, fixLog, 5)
}

func TestEngine_SystemHealthDetached(t *testing.T) {
	r := newRig(t, quietConfig(), repair.Hooks{}, nil)
	r.engine.ApplyFix(context.Background(), repair.ActionRefreshUI)

	view := r.engine.GetSystemHealth()
	view.Components[health.ComponentMemory] = health.Status{Performance: -1}
	view.FixLog[0].Repair = "tampered"
	view.Learning.PatternCounts["bogus"] = 99

	fresh := r.engine.GetSystemHealth()
	assert.Equal(t, 100.0, fresh.Components[health.ComponentMemory].Performance)
	assert.Equal(t, repair.ActionRefreshUI, fresh.FixLog[0].Repair)
	assert.NotContains(t, fresh.Learning.PatternCounts, "bogus")
}

func TestEngine_MemoryDeclineRepairedAndVerified(t *testing.T) {
	r := newRig(t, quietConfig(), repair.Hooks{}, nil)
	// Repairing memory restores the component in this scenario
	hooks := repair.Hooks{
		ClearCache: func(ctx context.Context) error {
			r.monitor.UpdateComponent(health.ComponentMemory, 95, nil)
			return nil
		},
	}
	repair.RegisterDefaults(r.catalog, hooks)
	registerComponentProbes(r)

	for _, score := range []float64{95, 90, 85, 55, 50, 45} {
		r.monitor.UpdateComponent(health.ComponentMemory, score, nil)
	}
	status, _ := r.monitor.Status(health.ComponentMemory)
	require.Equal(t, health.StateFailing, status.State)
	require.Equal(t, health.TrendDegrading, status.Trend)

	report, err := r.engine.AutoRepair(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report.Failures, diagnostics.CheckMemoryState)
	assert.True(t, report.Verified)

	// Component recovered, so no open issues remain
	assert.Empty(t, r.engine.GetSystemHealth().Issues)
}

func TestEngine_IssueRecurrenceAcrossCycles(t *testing.T) {
	r := newRig(t, quietConfig(), repair.Hooks{}, nil)
	registerComponentProbes(r)

	for i := 0; i < 3; i++ {
		r.monitor.UpdateComponent(health.ComponentNetwork, 40, nil)
	}

	_, err := r.engine.AutoRepair(context.Background())
	require.NoError(t, err)
	issues := r.engine.GetSystemHealth().Issues
	require.Len(t, issues, 1)
	first := issues[0]
	assert.Equal(t, health.ComponentNetwork, first.Component)
	assert.Equal(t, SeverityHigh, first.Severity)

	_, err = r.engine.AutoRepair(context.Background())
	require.NoError(t, err)
	issues = r.engine.GetSystemHealth().Issues
	require.Len(t, issues, 1)
	assert.Equal(t, first.ID, issues[0].ID)
	assert.Greater(t, issues[0].Recurrence, first.Recurrence)
}

func TestEngine_OrchestrationFaultReported(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := quietConfig()
	monitor := health.NewMonitor(logger, cfg.HistorySize)
	runner := diagnostics.NewRunner(logger, cfg.ProbeTimeout)
	runner.Register("failing_check", func(ctx context.Context) error {
		return errors.New("boom")
	})

	// Nil mapper makes repair selection itself fault
	eng := New(logger, cfg, Deps{
		Monitor:   monitor,
		Runner:    runner,
		Catalog:   repair.NewCatalog(logger),
		Rules:     rules.NewEngine(logger, nil),
		Optimizer: rules.NewEngine(logger, nil),
		Learner:   learning.NewLearner(logger),
	})

	report, err := eng.AutoRepair(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.Fault)
	assert.Equal(t, "idle", eng.GetSystemHealth().Phase)

	// The guard released: a later cycle is accepted
	_, err = eng.AutoRepair(context.Background())
	assert.NoError(t, err)
}

func TestEngine_StartStopLifecycle(t *testing.T) {
	r := newRig(t, quietConfig(), repair.Hooks{}, nil)

	assert.False(t, r.engine.IsMonitoringActive())
	require.NoError(t, r.engine.Start(context.Background()))
	assert.True(t, r.engine.IsMonitoringActive())
	assert.ErrorIs(t, r.engine.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, r.engine.Stop())
	assert.False(t, r.engine.IsMonitoringActive())
	assert.ErrorIs(t, r.engine.Stop(), ErrNotRunning)
}

func TestEngine_StopWaitsForInFlightRepair(t *testing.T) {
	cfg := quietConfig()
	cfg.CheckInterval = 20 * time.Millisecond

	// The hook records whether shutdown cancelled its context. It is
	// only read after Stop returns, which waits out the scheduler.
	var hookErr error
	var started sync.Once
	startedCh := make(chan struct{})
	hooks := repair.Hooks{
		ResetNetwork: func(ctx context.Context) error {
			started.Do(func() { close(startedCh) })
			select {
			case <-ctx.Done():
			case <-time.After(200 * time.Millisecond):
			}
			hookErr = ctx.Err()
			return hookErr
		},
	}

	r := newRig(t, cfg, hooks, nil)
	registerComponentProbes(r)
	for i := 0; i < 3; i++ {
		r.monitor.UpdateComponent(health.ComponentNetwork, 40, nil)
	}

	require.NoError(t, r.engine.Start(context.Background()))
	<-startedCh
	require.NoError(t, r.engine.Stop())

	assert.NoError(t, hookErr)

	var succeeded bool
	for _, fix := range r.engine.GetSystemHealth().FixLog {
		if fix.Repair == repair.ActionResetNetwork && fix.Success {
			succeeded = true
		}
	}
	assert.True(t, succeeded, "in-flight repair should complete through shutdown")
}

func TestEngine_LearningPersistsAcrossSessions(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := quietConfig()
	dbPath := filepath.Join(t.TempDir(), "learning.db")

	store, err := learning.NewStore(logger, dbPath)
	require.NoError(t, err)

	newEngine := func(store *learning.Store) (*Engine, *learning.Learner) {
		learner := learning.NewLearner(logger)
		catalog := repair.NewCatalog(logger)
		repair.RegisterDefaults(catalog, repair.Hooks{})
		eng := New(logger, cfg, Deps{
			Monitor:   health.NewMonitor(logger, cfg.HistorySize),
			Runner:    diagnostics.NewRunner(logger, cfg.ProbeTimeout),
			Catalog:   catalog,
			Mapper:    repair.NewMapper(),
			Rules:     rules.NewEngine(logger, nil),
			Optimizer: rules.NewEngine(logger, nil),
			Learner:   learner,
			Store:     store,
		})
		return eng, learner
	}

	first, _ := newEngine(store)
	require.NoError(t, first.Start(context.Background()))
	first.ApplyFix(context.Background(), repair.ActionOptimizeMemory)
	first.ApplyFix(context.Background(), repair.ActionClearCache)
	require.NoError(t, first.Stop())
	require.NoError(t, store.Close())

	store2, err := learning.NewStore(logger, dbPath)
	require.NoError(t, err)
	defer store2.Close()

	second, learner := newEngine(store2)
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop()

	m := learner.Snapshot()
	assert.Equal(t, 2, m.TotalFixes)
	assert.Equal(t, 2, m.SuccessfulFixes)
}

func TestEngine_ManualFixRecorded(t *testing.T) {
	r := newRig(t, quietConfig(), repair.Hooks{}, nil)

	fix := r.engine.ApplyFix(context.Background(), repair.ActionOptimizeMemory)

	assert.True(t, fix.Success)
	assert.Equal(t, "manual", fix.Trigger)
	assert.Equal(t, repair.CategoryMemory, fix.Category)
	assert.NotEmpty(t, fix.ID)

	assert.Equal(t, 1, r.learner.Snapshot().TotalFixes)

	stats := r.engine.Stats()
	assert.Equal(t, uint64(1), stats.RepairsTotal)
	assert.Equal(t, uint64(0), stats.RepairsFailed)
}
