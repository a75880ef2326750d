// Package monitoring provides lock-free runtime metrics for the
// interpretation pipeline. A single Metrics instance is shared by the
// interpreter callers, the batch processor, the HTTP layer and the
// result cache; all recording paths use atomic operations so they are
// safe from any goroutine without locking.
package monitoring

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pft-interp-server/internal/domain"
)

// Metrics accumulates counters and latency statistics for interpretation
// activity. The zero value is not usable; construct with NewMetrics.
type Metrics struct {
	interpretationsTotal atomic.Uint64
	errorsTotal          atomic.Uint64

	interpretationTimeTotal atomic.Uint64
	interpretationTimeMin   atomic.Uint64
	interpretationTimeMax   atomic.Uint64

	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	httpRequestsTotal atomic.Uint64
	httpErrorsTotal   atomic.Uint64

	// patternCounts maps domain.Pattern to *atomic.Uint64 tallies.
	patternCounts sync.Map
}

// NewMetrics creates a Metrics instance ready for recording.
func NewMetrics() *Metrics {
	m := &Metrics{}
	// Max uint64 sentinel so the first recorded latency becomes the minimum.
	m.interpretationTimeMin.Store(^uint64(0))
	return m
}

// RecordInterpretation records one completed interpretation, its latency
// and the pattern it classified.
func (m *Metrics) RecordInterpretation(pattern domain.Pattern, duration time.Duration) {
	ns := uint64(duration.Nanoseconds())

	m.interpretationsTotal.Add(1)
	m.interpretationTimeTotal.Add(ns)

	for {
		current := m.interpretationTimeMin.Load()
		if ns >= current {
			break
		}
		if m.interpretationTimeMin.CompareAndSwap(current, ns) {
			break
		}
	}

	for {
		current := m.interpretationTimeMax.Load()
		if ns <= current {
			break
		}
		if m.interpretationTimeMax.CompareAndSwap(current, ns) {
			break
		}
	}

	counter, _ := m.patternCounts.LoadOrStore(pattern, &atomic.Uint64{})
	counter.(*atomic.Uint64).Add(1)
}

// RecordError records one interpretation that failed before producing a
// result.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// RecordCacheHit records a result served from the cache.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a cache lookup that fell through to the engine.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest() {
	m.httpRequestsTotal.Add(1)
}

// RecordHTTPError records an HTTP request that ended in a server error.
func (m *Metrics) RecordHTTPError() {
	m.httpErrorsTotal.Add(1)
}

// InterpretationCount returns the number of completed interpretations.
func (m *Metrics) InterpretationCount() uint64 {
	return m.interpretationsTotal.Load()
}

// ErrorCount returns the number of failed interpretations.
func (m *Metrics) ErrorCount() uint64 {
	return m.errorsTotal.Load()
}

// PatternCount returns how many interpretations classified the given
// pattern.
func (m *Metrics) PatternCount(pattern domain.Pattern) uint64 {
	counter, ok := m.patternCounts.Load(pattern)
	if !ok {
		return 0
	}
	return counter.(*atomic.Uint64).Load()
}

// AverageInterpretationTime returns the mean latency across all recorded
// interpretations, or zero when none have been recorded.
func (m *Metrics) AverageInterpretationTime() time.Duration {
	count := m.interpretationsTotal.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(m.interpretationTimeTotal.Load() / count)
}

// MinInterpretationTime returns the fastest recorded latency, or zero
// when none have been recorded.
func (m *Metrics) MinInterpretationTime() time.Duration {
	minNs := m.interpretationTimeMin.Load()
	if minNs == ^uint64(0) {
		return 0
	}
	return time.Duration(minNs)
}

// MaxInterpretationTime returns the slowest recorded latency.
func (m *Metrics) MaxInterpretationTime() time.Duration {
	return time.Duration(m.interpretationTimeMax.Load())
}

// CacheHitRate returns the fraction of cache lookups that hit, between 0
// and 1. Returns zero when no lookups have been recorded.
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	misses := m.cacheMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Snapshot is a point-in-time copy of all metrics, shaped for JSON
// serialization on the metrics endpoints.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	InterpretationsTotal uint64 `json:"interpretations_total"`
	ErrorsTotal          uint64 `json:"errors_total"`

	AvgInterpretationTimeNs int64 `json:"avg_interpretation_time_ns"`
	MinInterpretationTimeNs int64 `json:"min_interpretation_time_ns"`
	MaxInterpretationTimeNs int64 `json:"max_interpretation_time_ns"`

	PatternCounts map[string]uint64 `json:"pattern_counts"`

	CacheHits    uint64  `json:"cache_hits"`
	CacheMisses  uint64  `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`

	HTTPRequestsTotal uint64 `json:"http_requests_total"`
	HTTPErrorsTotal   uint64 `json:"http_errors_total"`
}

// Snapshot captures the current state of all counters. The per-counter
// loads are individually atomic; the snapshot as a whole is not taken
// under a lock, so counters recorded concurrently may land on either
// side of it.
func (m *Metrics) Snapshot() Snapshot {
	patterns := make(map[string]uint64)
	m.patternCounts.Range(func(key, value interface{}) bool {
		patterns[string(key.(domain.Pattern))] = value.(*atomic.Uint64).Load()
		return true
	})

	return Snapshot{
		Timestamp:               time.Now().UTC(),
		InterpretationsTotal:    m.interpretationsTotal.Load(),
		ErrorsTotal:             m.errorsTotal.Load(),
		AvgInterpretationTimeNs: m.AverageInterpretationTime().Nanoseconds(),
		MinInterpretationTimeNs: m.MinInterpretationTime().Nanoseconds(),
		MaxInterpretationTimeNs: m.MaxInterpretationTime().Nanoseconds(),
		PatternCounts:           patterns,
		CacheHits:               m.cacheHits.Load(),
		CacheMisses:             m.cacheMisses.Load(),
		CacheHitRate:            m.CacheHitRate(),
		HTTPRequestsTotal:       m.httpRequestsTotal.Load(),
		HTTPErrorsTotal:         m.httpErrorsTotal.Load(),
	}
}

// Reset zeroes all counters. Intended for tests.
func (m *Metrics) Reset() {
	m.interpretationsTotal.Store(0)
	m.errorsTotal.Store(0)
	m.interpretationTimeTotal.Store(0)
	m.interpretationTimeMin.Store(^uint64(0))
	m.interpretationTimeMax.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.httpRequestsTotal.Store(0)
	m.httpErrorsTotal.Store(0)

	m.patternCounts.Range(func(key, _ interface{}) bool {
		m.patternCounts.Delete(key)
		return true
	})
}
