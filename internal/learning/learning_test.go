package learning

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLearner_Defaults(t *testing.T) {
	l := NewLearner(zaptest.NewLogger(t))

	assert.Equal(t, 85.0, l.Threshold(ThresholdMemoryPercent))
	assert.Equal(t, 90.0, l.Threshold(ThresholdCPUPercent))
	assert.Equal(t, 0.0, l.Threshold("no_such_threshold"))

	m := l.Snapshot()
	assert.Zero(t, m.TotalFixes)
	assert.Empty(t, m.PatternCounts)
}

func TestLearner_RecordFixUpdatesRates(t *testing.T) {
	l := NewLearner(zaptest.NewLogger(t))

	l.RecordFix("memory", "memory:failing", true)
	l.RecordFix("memory", "memory:failing", true)
	l.RecordFix("memory", "memory:failing", false)
	l.RecordFix("network", "network:offline", true)

	m := l.Snapshot()
	assert.Equal(t, 4, m.TotalFixes)
	assert.Equal(t, 3, m.SuccessfulFixes)
	assert.InDelta(t, 0.75, m.SuccessRate, 1e-9)
	assert.Equal(t, 3, m.PatternCounts["memory:failing"])
	assert.Equal(t, 1, m.PatternCounts["network:offline"])
}

func TestLearner_RetuneRelaxesChurningThreshold(t *testing.T) {
	l := NewLearner(zaptest.NewLogger(t))

	// Memory repairs keep failing: threshold should move up
	for i := 0; i < 10; i++ {
		l.RecordFix("memory", "memory:failing", false)
	}

	changed := l.Retune()
	require.Contains(t, changed, ThresholdMemoryPercent)
	assert.Equal(t, 87.0, l.Threshold(ThresholdMemoryPercent))
}

func TestLearner_RetuneTightensReliableThreshold(t *testing.T) {
	l := NewLearner(zaptest.NewLogger(t))

	for i := 0; i < 10; i++ {
		l.RecordFix("storage", "storage:degraded", true)
	}

	changed := l.Retune()
	require.Contains(t, changed, ThresholdDiskPercent)
	assert.Equal(t, 89.0, l.Threshold(ThresholdDiskPercent))
}

func TestLearner_RetuneIgnoresSparseAndUnmappedCategories(t *testing.T) {
	l := NewLearner(zaptest.NewLogger(t))

	// Too few outcomes to act on
	l.RecordFix("memory", "memory:failing", false)
	l.RecordFix("memory", "memory:failing", false)

	// Category with no threshold attached
	for i := 0; i < 10; i++ {
		l.RecordFix("rendering", "rendering:failing", false)
	}

	assert.Empty(t, l.Retune())
	assert.Equal(t, 85.0, l.Threshold(ThresholdMemoryPercent))
}

func TestLearner_RetuneRespectsBounds(t *testing.T) {
	l := NewLearner(zaptest.NewLogger(t))

	for i := 0; i < 10; i++ {
		l.RecordFix("memory", "memory:failing", false)
	}
	for i := 0; i < 20; i++ {
		l.Retune()
	}

	assert.LessOrEqual(t, l.Threshold(ThresholdMemoryPercent), 95.0)
}

func TestLearner_RestoreFillsMissingAndDropsUnknown(t *testing.T) {
	l := NewLearner(zaptest.NewLogger(t))

	l.Restore(Metrics{
		TotalFixes:      7,
		SuccessfulFixes: 5,
		SuccessRate:     5.0 / 7.0,
		Thresholds: map[string]float64{
			ThresholdMemoryPercent: 88,
			"bogus_threshold":      123,
		},
	})

	assert.Equal(t, 88.0, l.Threshold(ThresholdMemoryPercent))
	assert.Equal(t, 90.0, l.Threshold(ThresholdCPUPercent))

	m := l.Snapshot()
	assert.Equal(t, 7, m.TotalFixes)
	_, ok := m.Thresholds["bogus_threshold"]
	assert.False(t, ok)
	assert.NotNil(t, m.PatternCounts)
}

func TestLearner_ThresholdFuncSeesRetunes(t *testing.T) {
	l := NewLearner(zaptest.NewLogger(t))
	getter := l.ThresholdFunc(ThresholdMemoryPercent)

	assert.Equal(t, 85.0, getter())

	for i := 0; i < 10; i++ {
		l.RecordFix("memory", "memory:failing", false)
	}
	l.Retune()

	assert.Equal(t, 87.0, getter())
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learning.db")
	store, err := NewStore(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	_, found, err := store.LoadMetrics(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	saved := Metrics{
		TotalFixes:      12,
		SuccessfulFixes: 9,
		SuccessRate:     0.75,
		PatternCounts:   map[string]int{"memory:failing": 4},
		Thresholds:      map[string]float64{ThresholdMemoryPercent: 87},
	}
	require.NoError(t, store.SaveMetrics(ctx, saved))

	loaded, found, err := store.LoadMetrics(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, saved, loaded)
}

func TestStore_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learning.db")
	store, err := NewStore(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveMetrics(ctx, Metrics{TotalFixes: 1}))
	require.NoError(t, store.SaveMetrics(ctx, Metrics{TotalFixes: 2}))

	loaded, found, err := store.LoadMetrics(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, loaded.TotalFixes)
}
