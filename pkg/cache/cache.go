// Package cache implements the Cache & Dedup Layer (C3): a Redis-backed
// dedup index keyed by reproducible hash, a strategy-aware cache keyed by
// scene/operation/purpose, and a stampede lock protecting cache fills.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Strategy selects how a cache key is scoped.
type Strategy string

const (
	StrategyOnce           Strategy = "once"
	StrategyPerPlaythrough Strategy = "per_playthrough"
	StrategyPerPlayer      Strategy = "per_player"
	StrategyAlways         Strategy = "always"
)

// ttlFor returns the cache TTL for a strategy, or 0 for StrategyAlways
// (which disables caching entirely).
func ttlFor(strategy Strategy) time.Duration {
	switch strategy {
	case StrategyOnce:
		return 365 * 24 * time.Hour
	case StrategyPerPlaythrough:
		return 90 * 24 * time.Hour
	case StrategyPerPlayer:
		return 180 * 24 * time.Hour
	default:
		return 0
	}
}

const (
	dedupTTL   = 90 * 24 * time.Hour
	lockTTL    = 30 * time.Second
	statsHits  = "generation:stats:cache_hits_24h"
	statsMiss  = "generation:stats:cache_misses_24h"
	statsTotal = "generation:stats:total_cached"
)

// KeyParams identifies a strategy-aware cache entry.
type KeyParams struct {
	Operation     string
	Purpose       string
	FromSceneID   string
	ToSceneID     string
	Strategy      Strategy
	PlaythroughID string
	UserID        string
	Version       int
}

// CacheKey builds the pipe-delimited cache key for a generation lookup.
// Returns "" for StrategyAlways, which disables caching entirely.
func CacheKey(p KeyParams) string {
	if p.Strategy == StrategyAlways {
		return ""
	}

	var seed string
	switch p.Strategy {
	case StrategyPerPlaythrough:
		seed = "pt:" + p.PlaythroughID
	case StrategyPerPlayer:
		seed = "player:" + p.UserID
	}

	version := p.Version
	if version == 0 {
		version = 1
	}

	return fmt.Sprintf("generation:%s|%s|%s|%s|%s|%s|v%d",
		p.Operation, p.Purpose, p.FromSceneID, p.ToSceneID, p.Strategy, seed, version)
}

// DedupKey builds the dedup index key for a reproducible hash.
func DedupKey(reproducibleHash string) string {
	return "generation:hash:" + reproducibleHash
}

// Cache wraps Redis with the dedup/cache/lock operations used by the
// Creation Service (C4), which also invalidates entries that point at FAILED
// generations when it looks them up.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a Cache backed by the given Redis client.
func New(rdb *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{rdb: rdb, logger: logger}
}

// LookupDedup returns the generation id stored under the reproducible hash,
// or "" if no entry exists.
func (c *Cache) LookupDedup(ctx context.Context, reproducibleHash string) (string, error) {
	id, err := c.rdb.Get(ctx, DedupKey(reproducibleHash)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("dedup lookup: %w", err)
	}
	return id, nil
}

// StoreDedup records a generation id under its reproducible hash with the
// 90-day dedup TTL.
func (c *Cache) StoreDedup(ctx context.Context, reproducibleHash, generationID string) error {
	if err := c.rdb.Set(ctx, DedupKey(reproducibleHash), generationID, dedupTTL).Err(); err != nil {
		return fmt.Errorf("storing dedup entry: %w", err)
	}
	return nil
}

// InvalidateDedup removes a dedup entry, used when the cached generation
// turned out to be FAILED.
func (c *Cache) InvalidateDedup(ctx context.Context, reproducibleHash string) error {
	return c.rdb.Del(ctx, DedupKey(reproducibleHash)).Err()
}

// LookupCache returns the generation id stored under a strategy-aware cache
// key, or "" if no entry exists or the strategy disables caching.
func (c *Cache) LookupCache(ctx context.Context, p KeyParams) (string, error) {
	key := CacheKey(p)
	if key == "" {
		return "", nil
	}

	id, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		c.incrStat(ctx, statsMiss)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache lookup: %w", err)
	}
	c.incrStat(ctx, statsHits)
	return id, nil
}

// StoreCache records a generation id under the strategy-aware cache key
// with the strategy's TTL. A no-op for StrategyAlways.
func (c *Cache) StoreCache(ctx context.Context, p KeyParams, generationID string) error {
	key := CacheKey(p)
	if key == "" {
		return nil
	}

	ttl := ttlFor(p.Strategy)
	if err := c.rdb.Set(ctx, key, generationID, ttl).Err(); err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}
	c.incrStat(ctx, statsTotal)
	return nil
}

// InvalidateCache removes a strategy-aware cache entry, used when the
// cached generation turned out to be FAILED.
func (c *Cache) InvalidateCache(ctx context.Context, p KeyParams) error {
	key := CacheKey(p)
	if key == "" {
		return nil
	}
	return c.rdb.Del(ctx, key).Err()
}

// AcquireLock attempts to take the stampede lock for a cache key with a
// fixed 30s TTL. Returns false if another worker already holds it.
func (c *Cache) AcquireLock(ctx context.Context, cacheKey string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, cacheKey+":lock", "1", lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring stampede lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock releases the stampede lock for a cache key.
func (c *Cache) ReleaseLock(ctx context.Context, cacheKey string) error {
	return c.rdb.Del(ctx, cacheKey+":lock").Err()
}

// Stats is a point-in-time snapshot of the cache statistics counters.
type Stats struct {
	CacheHits24h   int64
	CacheMisses24h int64
	TotalCached    int64
}

// Stats returns the current values of the cache statistics counters.
// Daily rollover of the 24h counters is handled by an external cron, not
// by this package.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	vals, err := c.rdb.MGet(ctx, statsHits, statsMiss, statsTotal).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("reading cache stats: %w", err)
	}

	return Stats{
		CacheHits24h:   parseStatInt(vals[0]),
		CacheMisses24h: parseStatInt(vals[1]),
		TotalCached:    parseStatInt(vals[2]),
	}, nil
}

func (c *Cache) incrStat(ctx context.Context, key string) {
	if err := c.rdb.Incr(ctx, key).Err(); err != nil {
		c.logger.Warn("incrementing cache stat", "key", key, "error", err)
	}
}

func parseStatInt(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
