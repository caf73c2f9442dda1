package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sample struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func TestSnapshotCache_SetGet(t *testing.T) {
	c, err := New(zaptest.NewLogger(t), Options{TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("system", sample{Name: "memory", Score: 92.5}))

	var got sample
	require.NoError(t, c.Get("system", &got))
	assert.Equal(t, sample{Name: "memory", Score: 92.5}, got)
}

func TestSnapshotCache_MissOnAbsentKey(t *testing.T) {
	c, err := New(zaptest.NewLogger(t), Options{TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	var got sample
	assert.ErrorIs(t, c.Get("nothing", &got), ErrMiss)
}

func TestSnapshotCache_ResetDropsEverything(t *testing.T) {
	c, err := New(zaptest.NewLogger(t), Options{TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("a", sample{Name: "a"}))
	require.NoError(t, c.Set("b", sample{Name: "b"}))
	require.Equal(t, 2, c.Len())

	require.NoError(t, c.Reset())
	assert.Zero(t, c.Len())

	var got sample
	assert.ErrorIs(t, c.Get("a", &got), ErrMiss)
}

func TestSnapshotCache_SizingOptions(t *testing.T) {
	c, err := New(zaptest.NewLogger(t), Options{TTL: time.Minute, Shards: 4, SizeMB: 1})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("system", sample{Name: "memory", Score: 92.5}))

	var got sample
	require.NoError(t, c.Get("system", &got))
	assert.Equal(t, 92.5, got.Score)
}

func TestSnapshotCache_RejectsNonPowerOfTwoShards(t *testing.T) {
	_, err := New(zaptest.NewLogger(t), Options{TTL: time.Minute, Shards: 6})
	assert.Error(t, err)
}

func TestSnapshotCache_Overwrite(t *testing.T) {
	c, err := New(zaptest.NewLogger(t), Options{TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("system", sample{Score: 10}))
	require.NoError(t, c.Set("system", sample{Score: 20}))

	var got sample
	require.NoError(t, c.Get("system", &got))
	assert.Equal(t, 20.0, got.Score)
}
