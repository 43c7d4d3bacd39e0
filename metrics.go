package lovelace

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter (and, for latency metrics, a histogram) in [Metrics].
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginUnverified
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricAuthenticateSuccess
	MetricAuthenticateFailure
	MetricTokenRevoked
	MetricLogout
	MetricEmailVerificationRequest
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld
	MetricPasswordChangeReuseRejected
	MetricRateLimitHit
	MetricRateLimitDegraded
	MetricRevocationDegraded
	MetricNotificationQueued
	MetricNotificationFailed
	MetricAuthenticateLatency
	MetricRefreshLatency
	metricIDCount
)

// LatencyBuckets are the inclusive upper bounds of the latency histogram. Observations above
// the last bound land in a final overflow bucket, so snapshots carry len(LatencyBuckets)+1
// counts.
var LatencyBuckets = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const (
	histBucketCount = len(LatencyBuckets) + 1
	cacheLineSize   = 64
)

// IsLatencyMetric reports whether id carries a histogram.
func IsLatencyMetric(id MetricID) bool {
	return id == MetricAuthenticateLatency || id == MetricRefreshLatency
}

type latencyHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and optional latency histograms.
// A nil or disabled Metrics ignores every call.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms. Histogram bucket
// counts are per bucket, not cumulative.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
}

// NewMetrics creates a Metrics configured by cfg.
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

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Ids without a histogram are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || !IsLatencyMetric(id) {
		return
	}
	if d < 0 {
		d = 0
	}
	h := &m.histograms[id]
	atomic.AddUint64(&h.buckets[bucketIndex(d)], 1)
	atomic.AddUint64(&h.sumNanos, uint64(d))
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, every histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := emptySnapshot()
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if !IsLatencyMetric(id) {
			s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
		}
	}
	if !m.enableLatency {
		return s
	}

	for _, id := range [...]MetricID{MetricAuthenticateLatency, MetricRefreshLatency} {
		h := &m.histograms[id]
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&h.buckets[i])
		}
		s.Histograms[id] = buckets
		s.HistogramSums[id] = time.Duration(atomic.LoadUint64(&h.sumNanos))
	}
	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range LatencyBuckets {
		if d <= bound {
			return i
		}
	}
	return len(LatencyBuckets)
}
