package ssoBroker

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricCreateSuccess)

	if got := m.Value(MetricCreateSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricCreateSuccess)
	m.Inc(MetricCreateSuccess)
	m.Inc(MetricCreateSuccess)

	if got := m.Value(MetricCreateSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricResumeSuccess)
	m.Observe(MetricResumeLatency, time.Millisecond)
	if m.Value(MetricResumeSuccess) != 0 || m.Enabled() || m.LatencyEnabled() {
		t.Fatal("nil metrics must be inert")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("nil metrics snapshot must be empty")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricResumeShortCircuit)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricResumeShortCircuit); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2500 * time.Millisecond,
		9 * time.Second,
	}

	for _, d := range observations {
		m.Observe(MetricCreateLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricCreateLatency]
	if len(buckets) != HistogramBucketCount {
		t.Fatalf("expected %d buckets, got %d", HistogramBucketCount, len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}

	var want float64
	for _, d := range observations {
		want += d.Seconds()
	}
	if math.Abs(snap.Sums[MetricCreateLatency]-want) > 1e-9 {
		t.Fatalf("expected sum %v, got %v", want, snap.Sums[MetricCreateLatency])
	}
}

func TestMetricsObserveIgnoresCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricCreateSuccess, time.Millisecond)

	if _, ok := m.Snapshot().Histograms[MetricCreateSuccess]; ok {
		t.Fatal("counter ids must not grow histograms")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricCreateSuccess)
	m.Inc(MetricCreateRejected)
	m.Inc(MetricCreateRejected)
	m.Observe(MetricResumeLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricCreateSuccess] != 1 {
		t.Fatalf("expected MetricCreateSuccess=1 got %d", snap.Counters[MetricCreateSuccess])
	}
	if snap.Counters[MetricCreateRejected] != 2 {
		t.Fatalf("expected MetricCreateRejected=2 got %d", snap.Counters[MetricCreateRejected])
	}
	if _, ok := snap.Counters[MetricResumeLatency]; ok {
		t.Fatal("latency ids must not appear as counters")
	}
	if snap.Histograms[MetricResumeLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricResumeLatency][0])
	}
}

func TestMetricsLatencyDisabledOmitsHistograms(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricCreateLatency, time.Millisecond)

	if len(m.Snapshot().Histograms) != 0 {
		t.Fatal("expected no histograms when latency is disabled")
	}
}
