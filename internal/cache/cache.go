// Package cache provides a short-lived in-memory cache for health
// snapshots served over the API. The clear_cache repair drops it
// wholesale, so entries must always be reconstructible.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"
)

// ErrMiss is returned when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// SnapshotCache caches JSON-encoded snapshots with a fixed TTL
type SnapshotCache struct {
	logger *zap.Logger
	store  *bigcache.BigCache
}

// Options sizes the cache. Zero values fall back to bigcache defaults.
type Options struct {
	TTL    time.Duration
	Shards int
	SizeMB int
}

// New creates a snapshot cache whose entries expire after opts.TTL
func New(logger *zap.Logger, opts Options) (*SnapshotCache, error) {
	cfg := bigcache.DefaultConfig(opts.TTL)
	cfg.CleanWindow = opts.TTL
	cfg.Verbose = false
	if opts.Shards > 0 {
		if opts.Shards&(opts.Shards-1) != 0 {
			return nil, fmt.Errorf("cache shards must be a power of two, got %d", opts.Shards)
		}
		cfg.Shards = opts.Shards
	}
	if opts.SizeMB > 0 {
		cfg.HardMaxCacheSize = opts.SizeMB
	}

	store, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("init snapshot cache: %w", err)
	}

	return &SnapshotCache{logger: logger, store: store}, nil
}

// Set stores a value under key, JSON-encoded
func (c *SnapshotCache) Set(key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return c.store.Set(key, payload)
}

// Get decodes the cached value for key into out
func (c *SnapshotCache) Get(key string, out any) error {
	payload, err := c.store.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("read cache entry %s: %w", key, err)
	}
	return json.Unmarshal(payload, out)
}

// Reset drops every entry. Wired to the clear_cache repair.
func (c *SnapshotCache) Reset() error {
	if err := c.store.Reset(); err != nil {
		return fmt.Errorf("reset snapshot cache: %w", err)
	}
	c.logger.Info("Snapshot cache cleared")
	return nil
}

// Len reports the number of live entries
func (c *SnapshotCache) Len() int {
	return c.store.Len()
}

// Close releases the cache
func (c *SnapshotCache) Close() error {
	return c.store.Close()
}
