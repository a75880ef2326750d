package monitoring

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pft-interp-server/internal/domain"
)

func TestMetrics_Basic(t *testing.T) {
	m := NewMetrics()

	if m.InterpretationCount() != 0 {
		t.Errorf("InterpretationCount() = %d; want 0", m.InterpretationCount())
	}

	m.RecordInterpretation(domain.OBSTRUCTIVE, 5*time.Millisecond)

	if m.InterpretationCount() != 1 {
		t.Errorf("InterpretationCount() = %d; want 1", m.InterpretationCount())
	}
	if m.PatternCount(domain.OBSTRUCTIVE) != 1 {
		t.Errorf("PatternCount(Obstructive) = %d; want 1", m.PatternCount(domain.OBSTRUCTIVE))
	}
	if m.PatternCount(domain.NORMAL) != 0 {
		t.Errorf("PatternCount(Normal) = %d; want 0", m.PatternCount(domain.NORMAL))
	}
}

func TestMetrics_InterpretationTime(t *testing.T) {
	m := NewMetrics()

	// No interpretations yet
	if avg := m.AverageInterpretationTime(); avg != 0 {
		t.Errorf("AverageInterpretationTime() = %v; want 0", avg)
	}
	if min := m.MinInterpretationTime(); min != 0 {
		t.Errorf("MinInterpretationTime() = %v; want 0", min)
	}
	if max := m.MaxInterpretationTime(); max != 0 {
		t.Errorf("MaxInterpretationTime() = %v; want 0", max)
	}

	m.RecordInterpretation(domain.NORMAL, 100*time.Millisecond)
	m.RecordInterpretation(domain.NORMAL, 200*time.Millisecond)
	m.RecordInterpretation(domain.NORMAL, 300*time.Millisecond)

	if avg := m.AverageInterpretationTime(); avg != 200*time.Millisecond {
		t.Errorf("AverageInterpretationTime() = %v; want %v", avg, 200*time.Millisecond)
	}
	if min := m.MinInterpretationTime(); min != 100*time.Millisecond {
		t.Errorf("MinInterpretationTime() = %v; want %v", min, 100*time.Millisecond)
	}
	if max := m.MaxInterpretationTime(); max != 300*time.Millisecond {
		t.Errorf("MaxInterpretationTime() = %v; want %v", max, 300*time.Millisecond)
	}
}

func TestMetrics_Errors(t *testing.T) {
	m := NewMetrics()

	m.RecordError()
	m.RecordError()

	if m.ErrorCount() != 2 {
		t.Errorf("ErrorCount() = %d; want 2", m.ErrorCount())
	}
	if m.InterpretationCount() != 0 {
		t.Errorf("InterpretationCount() = %d; want 0", m.InterpretationCount())
	}
}

func TestMetrics_CacheHitRate(t *testing.T) {
	m := NewMetrics()

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	rate := m.CacheHitRate()
	expected := 2.0 / 3.0
	if rate < expected-0.01 || rate > expected+0.01 {
		t.Errorf("CacheHitRate() = %f; want ~%f", rate, expected)
	}
}

func TestMetrics_CacheHitRate_NoDivByZero(t *testing.T) {
	m := NewMetrics()

	if rate := m.CacheHitRate(); rate != 0 {
		t.Errorf("CacheHitRate() = %f; want 0", rate)
	}
}

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordInterpretation(domain.OBSTRUCTIVE, 100*time.Millisecond)
	m.RecordInterpretation(domain.NORMAL, 50*time.Millisecond)
	m.RecordError()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordHTTPRequest()
	m.RecordHTTPError()

	s := m.Snapshot()

	if s.InterpretationsTotal != 2 {
		t.Errorf("Snapshot.InterpretationsTotal = %d; want 2", s.InterpretationsTotal)
	}
	if s.ErrorsTotal != 1 {
		t.Errorf("Snapshot.ErrorsTotal = %d; want 1", s.ErrorsTotal)
	}
	if s.MinInterpretationTimeNs != (50 * time.Millisecond).Nanoseconds() {
		t.Errorf("Snapshot.MinInterpretationTimeNs = %d; want %d", s.MinInterpretationTimeNs, (50 * time.Millisecond).Nanoseconds())
	}
	if s.MaxInterpretationTimeNs != (100 * time.Millisecond).Nanoseconds() {
		t.Errorf("Snapshot.MaxInterpretationTimeNs = %d; want %d", s.MaxInterpretationTimeNs, (100 * time.Millisecond).Nanoseconds())
	}
	if s.PatternCounts["Obstructive"] != 1 {
		t.Errorf("Snapshot.PatternCounts[Obstructive] = %d; want 1", s.PatternCounts["Obstructive"])
	}
	if s.PatternCounts["Normal"] != 1 {
		t.Errorf("Snapshot.PatternCounts[Normal] = %d; want 1", s.PatternCounts["Normal"])
	}
	if s.CacheHits != 1 || s.CacheMisses != 1 {
		t.Errorf("Snapshot cache counts = %d/%d; want 1/1", s.CacheHits, s.CacheMisses)
	}
	if s.HTTPRequestsTotal != 1 || s.HTTPErrorsTotal != 1 {
		t.Errorf("Snapshot HTTP counts = %d/%d; want 1/1", s.HTTPRequestsTotal, s.HTTPErrorsTotal)
	}
	if s.Timestamp.IsZero() {
		t.Error("Snapshot.Timestamp should be set")
	}
}

func TestMetrics_SnapshotJSON(t *testing.T) {
	m := NewMetrics()
	m.RecordInterpretation(domain.MIXED, 10*time.Millisecond)

	data, err := json.Marshal(m.Snapshot())
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	for _, key := range []string{"timestamp", "interpretations_total", "errors_total", "avg_interpretation_time_ns", "pattern_counts", "cache_hit_rate", "http_requests_total"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("snapshot JSON missing key %q", key)
		}
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()

	m.RecordInterpretation(domain.RESTRICTIVE, 100*time.Millisecond)
	m.RecordError()
	m.RecordCacheHit()
	m.RecordHTTPRequest()

	m.Reset()

	if m.InterpretationCount() != 0 {
		t.Errorf("InterpretationCount() after Reset = %d; want 0", m.InterpretationCount())
	}
	if m.ErrorCount() != 0 {
		t.Errorf("ErrorCount() after Reset = %d; want 0", m.ErrorCount())
	}
	if m.PatternCount(domain.RESTRICTIVE) != 0 {
		t.Errorf("PatternCount(Restrictive) after Reset = %d; want 0", m.PatternCount(domain.RESTRICTIVE))
	}
	if m.MinInterpretationTime() != 0 {
		t.Errorf("MinInterpretationTime() after Reset = %v; want 0", m.MinInterpretationTime())
	}

	// Recording still works after a reset
	m.RecordInterpretation(domain.NORMAL, 25*time.Millisecond)
	if m.MinInterpretationTime() != 25*time.Millisecond {
		t.Errorf("MinInterpretationTime() = %v; want %v", m.MinInterpretationTime(), 25*time.Millisecond)
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	n := 100

	patterns := []domain.Pattern{
		domain.NORMAL,
		domain.OBSTRUCTIVE,
		domain.RESTRICTIVE,
		domain.MIXED,
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.RecordInterpretation(patterns[i%len(patterns)], time.Duration(i+1)*time.Millisecond)
		}(i)
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.RecordCacheHit()
			} else {
				m.RecordCacheMiss()
			}
		}(i)
	}

	wg.Wait()

	if m.InterpretationCount() != uint64(n) {
		t.Errorf("InterpretationCount() = %d; want %d", m.InterpretationCount(), n)
	}

	var patternTotal uint64
	for _, p := range patterns {
		patternTotal += m.PatternCount(p)
	}
	if patternTotal != uint64(n) {
		t.Errorf("sum of pattern counts = %d; want %d", patternTotal, n)
	}

	if m.MinInterpretationTime() != 1*time.Millisecond {
		t.Errorf("MinInterpretationTime() = %v; want %v", m.MinInterpretationTime(), 1*time.Millisecond)
	}
	if m.MaxInterpretationTime() != time.Duration(n)*time.Millisecond {
		t.Errorf("MaxInterpretationTime() = %v; want %v", m.MaxInterpretationTime(), time.Duration(n)*time.Millisecond)
	}

	s := m.Snapshot()
	if s.CacheHits+s.CacheMisses != uint64(n) {
		t.Errorf("CacheHits + CacheMisses = %d; want %d", s.CacheHits+s.CacheMisses, n)
	}
}

func BenchmarkMetrics_RecordInterpretation(b *testing.B) {
	m := NewMetrics()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.RecordInterpretation(domain.OBSTRUCTIVE, time.Millisecond)
		}
	})
}
