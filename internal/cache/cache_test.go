package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/internal/monitoring"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func cacheRecord(patientID string, heightCM float64) *domain.TestRecord {
	return &domain.TestRecord{
		PatientID: patientID,
		Demographics: domain.Demographics{
			Age:      65,
			Sex:      domain.MALE,
			HeightCM: heightCM,
			WeightKG: 88,
		},
		PFTResults: domain.PFTResults{
			PreBronchodilator: domain.TestPhaseResult{
				FVC:          domain.Measurement{Liters: 3.95, PercentPredicted: 98},
				FEV1:         domain.Measurement{Liters: 2.53, PercentPredicted: 78},
				FEV1FVCRatio: domain.RatioMeasurement{Value: 64},
			},
			PostBronchodilator: domain.TestPhaseResult{
				FVC:          domain.Measurement{Liters: 4.15, PercentPredicted: 103},
				FEV1:         domain.Measurement{Liters: 2.91, PercentPredicted: 90},
				FEV1FVCRatio: domain.RatioMeasurement{Value: 70},
			},
		},
	}
}

func cachedInterpretation() *domain.Interpretation {
	return &domain.Interpretation{
		Pattern:      domain.OBSTRUCTIVE,
		Severity:     domain.MODERATE,
		FEV1Severity: domain.MODERATE,
		FVCSeverity:  domain.NORMAL_SEVERITY,
		Reversibility: domain.Reversibility{
			Significant:       true,
			FEV1ChangePercent: 15.0,
			FEV1ChangeLiters:  0.38,
		},
		Confidence:         90,
		ClinicalImpression: "Moderate obstructive ventilatory defect",
	}
}

func TestNewInterpretationCache(t *testing.T) {
	cache, err := NewInterpretationCache(Config{}, nil, testLogger())

	require.NoError(t, err)
	require.NotNil(t, cache)
	defer cache.Close()

	assert.False(t, cache.RedisEnabled())
	assert.Equal(t, 0, cache.Len())
	assert.NoError(t, cache.Health(context.Background()))
}

func TestKey(t *testing.T) {
	// Metadata never influences the key
	key1, err := Key(cacheRecord("PT-100", 175))
	require.NoError(t, err)
	key2, err := Key(cacheRecord("PT-999", 175))
	require.NoError(t, err)
	assert.Equal(t, key1, key2, "Records differing only in metadata should share a key")

	// Engine inputs do
	key3, err := Key(cacheRecord("PT-100", 180))
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3, "Different demographics should produce different keys")

	assert.True(t, strings.HasPrefix(key1, "interpretation:"))
	assert.Len(t, key1, len("interpretation:")+64) // SHA-256 hex string
}

func TestInterpretationCache_SetAndGet(t *testing.T) {
	cache, err := NewInterpretationCache(Config{}, nil, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	record := cacheRecord("PT-100", 175)

	// Miss before set
	_, found := cache.Get(ctx, record)
	assert.False(t, found)

	cache.Set(ctx, record, cachedInterpretation())

	// Hit after set
	got, found := cache.Get(ctx, record)
	require.True(t, found)
	assert.Equal(t, domain.OBSTRUCTIVE, got.Pattern)
	assert.Equal(t, 90, got.Confidence)

	// A record with the same inputs but different metadata hits too
	got, found = cache.Get(ctx, cacheRecord("PT-777", 175))
	require.True(t, found)
	assert.Equal(t, domain.MODERATE, got.Severity)
}

func TestInterpretationCache_Expiry(t *testing.T) {
	cache, err := NewInterpretationCache(Config{TTL: 50 * time.Millisecond}, nil, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	record := cacheRecord("PT-100", 175)

	cache.Set(ctx, record, cachedInterpretation())

	_, found := cache.Get(ctx, record)
	assert.True(t, found)

	time.Sleep(100 * time.Millisecond)

	_, found = cache.Get(ctx, record)
	assert.False(t, found, "Entry should expire after TTL")
}

func TestInterpretationCache_Invalidate(t *testing.T) {
	cache, err := NewInterpretationCache(Config{}, nil, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	record := cacheRecord("PT-100", 175)

	cache.Set(ctx, record, cachedInterpretation())
	_, found := cache.Get(ctx, record)
	require.True(t, found)

	err = cache.Invalidate(ctx, record)
	require.NoError(t, err)

	_, found = cache.Get(ctx, record)
	assert.False(t, found)
}

func TestInterpretationCache_Stats(t *testing.T) {
	cache, err := NewInterpretationCache(Config{}, nil, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	record := cacheRecord("PT-100", 175)

	cache.Get(ctx, record) // miss
	cache.Set(ctx, record, cachedInterpretation())
	cache.Get(ctx, record) // hit
	cache.Get(ctx, record) // hit

	stats := cache.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.MemoryMisses)
	assert.False(t, stats.LastReset.IsZero())

	cache.ResetStats()
	stats = cache.Stats()
	assert.Equal(t, int64(0), stats.TotalRequests)
}

func TestInterpretationCache_RecordsMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	cache, err := NewInterpretationCache(Config{}, metrics, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	record := cacheRecord("PT-100", 175)

	cache.Get(ctx, record) // miss
	cache.Set(ctx, record, cachedInterpretation())
	cache.Get(ctx, record) // hit

	assert.InDelta(t, 0.5, metrics.CacheHitRate(), 0.001)
}

func TestInterpretationCache_Purge(t *testing.T) {
	cache, err := NewInterpretationCache(Config{}, nil, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	cache.Set(ctx, cacheRecord("PT-100", 175), cachedInterpretation())
	cache.Set(ctx, cacheRecord("PT-100", 180), cachedInterpretation())
	require.Equal(t, 2, cache.Len())

	cache.Purge()
	assert.Equal(t, 0, cache.Len())
}

func TestNewInterpretationCache_BadRedisURL(t *testing.T) {
	_, err := NewInterpretationCache(Config{RedisURL: "not-a-redis-url"}, nil, testLogger())
	assert.Error(t, err)
}

func TestInterpretationCache_RedisTier(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis tests")
	}

	cache, err := NewInterpretationCache(Config{RedisURL: redisURL, TTL: time.Minute}, nil, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	require.True(t, cache.RedisEnabled())

	ctx := context.Background()
	record := cacheRecord("PT-100", 175)

	cache.Set(ctx, record, cachedInterpretation())

	// Drop the memory tier so the read has to come from Redis
	cache.Purge()
	require.Equal(t, 0, cache.Len())

	got, found := cache.Get(ctx, record)
	require.True(t, found, "Expected Redis tier hit")
	assert.Equal(t, domain.OBSTRUCTIVE, got.Pattern)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.RedisHits)

	// The hit was promoted back into memory
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Invalidate(ctx, record))
	_, found = cache.Get(ctx, record)
	assert.False(t, found)
}
