package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pft-interp-server/internal/domain"
)

// CachedInterpretation represents a cached interpretation with metadata
type CachedInterpretation struct {
	Data      *domain.Interpretation `json:"data"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// RedisCache is the distributed cache tier. All Redis round trips run
// through a circuit breaker; when the breaker is open, reads report a
// miss and writes fail fast.
type RedisCache struct {
	client     *redis.Client
	breaker    *gobreaker.CircuitBreaker
	defaultTTL time.Duration
	logger     *logrus.Logger
}

// NewRedisCache creates a new Redis cache tier
func NewRedisCache(redisURL string, defaultTTL time.Duration, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "Redis",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &RedisCache{
		client:     client,
		breaker:    breaker,
		defaultTTL: defaultTTL,
		logger:     logger,
	}, nil
}

// Get retrieves a cached interpretation. A missing key and an open
// breaker both report a plain miss.
func (r *RedisCache) Get(ctx context.Context, key string) (*domain.Interpretation, bool, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		val, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			// A miss is a successful round trip
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return val, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cached interpretation: %w", err)
	}
	if result == nil {
		return nil, false, nil
	}

	var cached CachedInterpretation
	if err := json.Unmarshal([]byte(result.(string)), &cached); err != nil {
		// Remove corrupted cache entry
		r.client.Del(ctx, key)
		return nil, false, nil
	}

	// Check if expired
	if time.Now().After(cached.ExpiresAt) {
		r.client.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// Set caches an interpretation under the default TTL.
func (r *RedisCache) Set(ctx context.Context, key string, interpretation *domain.Interpretation) error {
	cached := CachedInterpretation{
		Data:      interpretation,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(r.defaultTTL),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached interpretation: %w", err)
	}

	_, err = r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, key, jsonData, r.defaultTTL).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set cached interpretation: %w", err)
	}
	return nil
}

// Del removes a cache entry.
func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Del(ctx, keys...).Err()
	})
	return err
}

// BreakerState returns the current circuit breaker state.
func (r *RedisCache) BreakerState() gobreaker.State {
	return r.breaker.State()
}

// BreakerCounts returns the circuit breaker request counters.
func (r *RedisCache) BreakerCounts() gobreaker.Counts {
	return r.breaker.Counts()
}

// Ping checks if the Redis connection is alive.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
