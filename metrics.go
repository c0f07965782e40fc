package ssoBroker

import (
	"sync/atomic"
	"time"
)

// MetricID names one broker counter or histogram.
type MetricID uint16

const (
	// MetricCreateSuccess counts CreateSession calls that authenticated.
	MetricCreateSuccess MetricID = iota
	// MetricCreateRejected counts logins the authority refused, blank credentials included.
	MetricCreateRejected
	// MetricCreateUnavailable counts logins that failed on transport.
	MetricCreateUnavailable
	// MetricCreateMalformed counts 2xx login responses that could not be decoded.
	MetricCreateMalformed
	// MetricCreateRateLimited counts logins refused by the throttle.
	MetricCreateRateLimited
	// MetricResumeSuccess counts resumes the authority confirmed.
	MetricResumeSuccess
	// MetricResumeShortCircuit counts resumes answered from the session alone.
	MetricResumeShortCircuit
	// MetricResumeNoToken counts resumes without a cookie.
	MetricResumeNoToken
	// MetricResumeRejected counts tokens the authority refused.
	MetricResumeRejected
	// MetricResumeUnavailable counts resumes that failed on transport.
	MetricResumeUnavailable
	// MetricResumeMalformed counts 2xx resume responses that could not be decoded.
	MetricResumeMalformed
	// MetricSessionEnded counts EndSession calls.
	MetricSessionEnded
	// MetricStaleCookieCleared counts cookies deleted under ClearRejectedCookie.
	MetricStaleCookieCleared
	// MetricThrottleFailOpen counts throttle backend errors that let a login through.
	MetricThrottleFailOpen
	// MetricCreateLatency is the remote new-session call latency.
	MetricCreateLatency
	// MetricResumeLatency is the remote existing-session call latency.
	MetricResumeLatency
	metricIDCount
)

const (
	// HistogramBucketCount is the number of latency buckets, +Inf included.
	HistogramBucketCount = 10
	cacheLineSize        = 64
)

type metricHistogram struct {
	buckets [HistogramBucketCount]uint64
	sumNs   uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free broker counters. A nil *Metrics is a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters. Histogram
// buckets are non-cumulative; Sums are in seconds.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	Sums       map[MetricID]float64
}

// NewMetrics builds a Metrics from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in a latency histogram. Non-latency ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !isLatencyMetric(id) {
		return
	}
	if d < 0 {
		d = 0
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	atomic.AddUint64(&m.histograms[id].sumNs, uint64(d))
}

// Value returns one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters, plus histograms when latency is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
			Sums:       map[MetricID]float64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
		Sums:       make(map[MetricID]float64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricCreateLatency, MetricResumeLatency} {
			buckets := make([]uint64, HistogramBucketCount)
			for i := 0; i < HistogramBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
			s.Sums[id] = time.Duration(atomic.LoadUint64(&m.histograms[id].sumNs)).Seconds()
		}
	}

	return s
}

func isLatencyMetric(id MetricID) bool {
	return id == MetricCreateLatency || id == MetricResumeLatency
}

// HistogramUpperBounds are the bucket upper bounds in seconds; the final
// bucket is unbounded.
var HistogramUpperBounds = [HistogramBucketCount - 1]float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

func bucketIndex(d time.Duration) int {
	s := d.Seconds()
	for i, upper := range HistogramUpperBounds {
		if s <= upper {
			return i
		}
	}
	return HistogramBucketCount - 1
}
