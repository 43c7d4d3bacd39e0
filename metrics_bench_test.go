package lovelace

import (
	"testing"
	"time"
)

// sessionCycleMetrics is what one login, one refresh and one guarded request bump.
var sessionCycleMetrics = [...]MetricID{
	MetricLoginSuccess,
	MetricRefreshSuccess,
	MetricTokenRevoked,
	MetricAuthenticateSuccess,
	MetricRateLimitHit,
	MetricLogout,
}

func BenchmarkMetricsInc(b *testing.B) {
	for _, enabled := range []bool{true, false} {
		name := "enabled"
		if !enabled {
			name = "disabled"
		}
		m := NewMetrics(MetricsConfig{Enabled: enabled})

		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				m.Inc(MetricAuthenticateSuccess)
			}
		})
		b.Run(name+"/parallel", func(b *testing.B) {
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					m.Inc(MetricAuthenticateSuccess)
				}
			})
		})
	}
}

func BenchmarkMetricsSessionCycleParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		n := 0
		for pb.Next() {
			m.Inc(sessionCycleMetrics[n%len(sessionCycleMetrics)])
			n++
		}
	})
}

func BenchmarkMetricsObserveAuthenticateLatency(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	latencies := []time.Duration{
		200 * time.Microsecond,
		3 * time.Millisecond,
		40 * time.Millisecond,
	}
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		n := 0
		for pb.Next() {
			m.Observe(MetricAuthenticateLatency, latencies[n%len(latencies)])
			n++
		}
	})
}

func BenchmarkMetricsSnapshot(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	for _, id := range sessionCycleMetrics {
		m.Inc(id)
	}
	m.Observe(MetricAuthenticateLatency, time.Millisecond)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}
}
