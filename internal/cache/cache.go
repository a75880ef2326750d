// Package cache provides result caching for the interpretation pipeline.
// Identical spirometry inputs always produce identical interpretations, so
// completed results can be reused across requests. A two-tier design keeps
// hot results in process memory and shares warm results through Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/internal/monitoring"
)

// Config represents interpretation cache configuration
type Config struct {
	// RedisURL enables the distributed tier when set. An empty URL runs
	// the cache memory-only.
	RedisURL string `json:"redis_url"`
	// TTL applies to both tiers
	TTL time.Duration `json:"ttl"`
	// MemorySize is the entry capacity of the in-memory tier
	MemorySize int `json:"memory_size"`
}

// Stats represents cache performance statistics
type Stats struct {
	MemoryHits    int64     `json:"memory_hits"`
	MemoryMisses  int64     `json:"memory_misses"`
	RedisHits     int64     `json:"redis_hits"`
	RedisMisses   int64     `json:"redis_misses"`
	TotalRequests int64     `json:"total_requests"`
	LastReset     time.Time `json:"last_reset"`
}

// InterpretationCache caches completed interpretations keyed by their
// engine inputs.
//
// Tier 1 is an in-memory expirable LRU (hot data). Tier 2 is Redis (warm
// data shared across instances), guarded by a circuit breaker so a Redis
// outage degrades to memory-only operation instead of failing requests.
type InterpretationCache struct {
	memory  *expirable.LRU[string, *domain.Interpretation]
	redis   *RedisCache
	metrics *monitoring.Metrics
	logger  *logrus.Logger

	stats   Stats
	statsMu sync.RWMutex
}

// NewInterpretationCache creates a new interpretation cache. The metrics
// collector may be nil.
func NewInterpretationCache(config Config, metrics *monitoring.Metrics, logger *logrus.Logger) (*InterpretationCache, error) {
	if config.TTL == 0 {
		config.TTL = 15 * time.Minute
	}
	if config.MemorySize == 0 {
		config.MemorySize = 1000
	}

	memory := expirable.NewLRU[string, *domain.Interpretation](config.MemorySize, nil, config.TTL)

	var redisCache *RedisCache
	if config.RedisURL != "" {
		var err error
		redisCache, err = NewRedisCache(config.RedisURL, config.TTL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis cache tier: %w", err)
		}
	}

	return &InterpretationCache{
		memory:  memory,
		redis:   redisCache,
		metrics: metrics,
		logger:  logger,
		stats: Stats{
			LastReset: time.Now(),
		},
	}, nil
}

// Key derives the cache key from the engine inputs only. PatientID and
// TestDate never influence the interpretation, so records differing only
// in metadata share a key. Struct encoding keeps field order stable.
func Key(record *domain.TestRecord) (string, error) {
	keyInput := struct {
		Demographics domain.Demographics `json:"demographics"`
		Results      domain.PFTResults   `json:"pft_results"`
	}{record.Demographics, record.PFTResults}

	data, err := json.Marshal(keyInput)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key input: %w", err)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("interpretation:%x", hash), nil
}

// Get returns the cached interpretation for a record, trying the memory
// tier first and falling back to Redis.
func (c *InterpretationCache) Get(ctx context.Context, record *domain.TestRecord) (*domain.Interpretation, bool) {
	key, err := Key(record)
	if err != nil {
		return nil, false
	}

	c.incrementStat(func(s *Stats) { s.TotalRequests++ })

	// Tier 1: memory
	if interpretation, ok := c.memory.Get(key); ok {
		c.incrementStat(func(s *Stats) { s.MemoryHits++ })
		c.recordHit()
		c.logger.WithFields(logrus.Fields{
			"cache_key":  key,
			"cache_tier": "memory",
		}).Debug("Cache hit in memory")
		return interpretation, true
	}
	c.incrementStat(func(s *Stats) { s.MemoryMisses++ })

	// Tier 2: Redis
	if c.redis != nil {
		interpretation, found, err := c.redis.Get(ctx, key)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"cache_key": key,
				"error":     err,
			}).Warn("Redis cache read failed")
		}
		if found {
			c.incrementStat(func(s *Stats) { s.RedisHits++ })
			c.recordHit()
			c.logger.WithFields(logrus.Fields{
				"cache_key":  key,
				"cache_tier": "redis",
			}).Debug("Cache hit in Redis")

			// Populate memory cache for next time
			c.memory.Add(key, interpretation)
			return interpretation, true
		}
		c.incrementStat(func(s *Stats) { s.RedisMisses++ })
	}

	c.recordMiss()
	return nil, false
}

// Set caches an interpretation in both tiers. Redis failures are logged
// but never fail the request.
func (c *InterpretationCache) Set(ctx context.Context, record *domain.TestRecord, interpretation *domain.Interpretation) {
	key, err := Key(record)
	if err != nil {
		return
	}

	c.memory.Add(key, interpretation)

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, interpretation); err != nil {
			c.logger.WithFields(logrus.Fields{
				"cache_key": key,
				"error":     err,
			}).Warn("Failed to cache interpretation in Redis")
		}
	}
}

// Invalidate removes the cached interpretation for a record from both
// tiers.
func (c *InterpretationCache) Invalidate(ctx context.Context, record *domain.TestRecord) error {
	key, err := Key(record)
	if err != nil {
		return err
	}

	c.memory.Remove(key)

	if c.redis != nil {
		if err := c.redis.Del(ctx, key); err != nil {
			return fmt.Errorf("failed to invalidate Redis cache entry: %w", err)
		}
	}
	return nil
}

// Stats returns a copy of the cache statistics.
func (c *InterpretationCache) Stats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// ResetStats zeroes the statistics counters.
func (c *InterpretationCache) ResetStats() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = Stats{LastReset: time.Now()}
}

// Len returns the number of entries in the memory tier.
func (c *InterpretationCache) Len() int {
	return c.memory.Len()
}

// Purge drops every entry from the memory tier.
func (c *InterpretationCache) Purge() {
	c.memory.Purge()
}

// RedisEnabled reports whether the distributed tier is configured.
func (c *InterpretationCache) RedisEnabled() bool {
	return c.redis != nil
}

// Health checks the Redis tier. A memory-only cache is always healthy.
func (c *InterpretationCache) Health(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx)
}

// Close releases the Redis connection when configured.
func (c *InterpretationCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

func (c *InterpretationCache) incrementStat(update func(*Stats)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	update(&c.stats)
}

func (c *InterpretationCache) recordHit() {
	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
}

func (c *InterpretationCache) recordMiss() {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}
}
