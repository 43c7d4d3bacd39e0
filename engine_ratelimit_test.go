package lovelace

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitLoginBucket(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine := buildTestEngine(t, rdb, newMockUserProvider(), engineOptions{clock: newTestClock(), metrics: true})

	for i := 1; i <= 5; i++ {
		d := engine.RateLimit(context.Background(), BucketLogin, "", "203.0.113.7")
		if !d.Allowed {
			t.Fatalf("request %d denied", i)
		}
		if d.Limit != 5 || d.Remaining != 5-i {
			t.Fatalf("request %d: limit=%d remaining=%d", i, d.Limit, d.Remaining)
		}
	}

	d := engine.RateLimit(context.Background(), BucketLogin, "", "203.0.113.7")
	if d.Allowed {
		t.Fatal("sixth request allowed")
	}
	if d.Remaining != 0 || d.ResetSeconds <= 0 || d.ResetSeconds > 60 {
		t.Fatalf("unexpected denial %+v", d)
	}
	if d.Degraded {
		t.Fatal("redis is up, decision must not be degraded")
	}
	if got := engine.MetricsSnapshot().Counters[MetricRateLimitHit]; got != 1 {
		t.Fatalf("expected 1 rate limit hit, got %d", got)
	}

	if d := engine.RateLimit(context.Background(), BucketLogin, "", "198.51.100.1"); !d.Allowed {
		t.Fatal("other IP must have its own window")
	}
	if d := engine.RateLimit(context.Background(), BucketGlobal, "", "203.0.113.7"); !d.Allowed {
		t.Fatal("other bucket must have its own window")
	}
}

func TestRateLimitWindowResets(t *testing.T) {
	mr, rdb := newTestRedis(t)
	engine := newTestEngine(t, rdb, newMockUserProvider(), newTestClock())

	for i := 0; i < 5; i++ {
		engine.RateLimit(context.Background(), BucketLogin, "", "203.0.113.7")
	}
	if d := engine.RateLimit(context.Background(), BucketLogin, "", "203.0.113.7"); d.Allowed {
		t.Fatal("expected denial")
	}

	mr.FastForward(61 * time.Second)
	if d := engine.RateLimit(context.Background(), BucketLogin, "", "203.0.113.7"); !d.Allowed {
		t.Fatal("expected a new window after expiry")
	}
}

func TestRateLimitPrefersUserKey(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine := newTestEngine(t, rdb, newMockUserProvider(), newTestClock())

	for i := 0; i < 30; i++ {
		if d := engine.RateLimit(context.Background(), BucketRefresh, "u1", "203.0.113.7"); !d.Allowed {
			t.Fatalf("request %d denied", i+1)
		}
	}
	if d := engine.RateLimit(context.Background(), BucketRefresh, "u1", "198.51.100.1"); d.Allowed {
		t.Fatal("user window must follow the user across IPs")
	}
	if d := engine.RateLimit(context.Background(), BucketRefresh, "", "203.0.113.7"); !d.Allowed {
		t.Fatal("IP window must be separate from the user window")
	}
}

func TestRateLimitDisabled(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.RateLimit.Enabled = false
	engine := buildTestEngine(t, rdb, newMockUserProvider(), engineOptions{config: &cfg, clock: newTestClock()})

	for i := 0; i < 20; i++ {
		if d := engine.RateLimit(context.Background(), BucketLogin, "", "203.0.113.7"); !d.Allowed {
			t.Fatal("disabled limiter denied a request")
		}
	}
}

func TestRateLimitUnknownBucketAllows(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine := newTestEngine(t, rdb, newMockUserProvider(), newTestClock())

	if d := engine.RateLimit(context.Background(), RateLimitBucket("other"), "", "203.0.113.7"); !d.Allowed {
		t.Fatal("unknown bucket must not throttle")
	}
}

func TestRateLimitDegradesToLocalCounter(t *testing.T) {
	mr, rdb := newTestRedis(t)
	engine := buildTestEngine(t, rdb, newMockUserProvider(), engineOptions{clock: newTestClock(), metrics: true})
	mr.Close()

	for i := 1; i <= 5; i++ {
		d := engine.RateLimit(context.Background(), BucketLogin, "", "203.0.113.7")
		if !d.Allowed || !d.Degraded {
			t.Fatalf("request %d: %+v", i, d)
		}
	}
	if d := engine.RateLimit(context.Background(), BucketLogin, "", "203.0.113.7"); d.Allowed {
		t.Fatal("local fallback must still enforce capacity")
	}
	if got := engine.MetricsSnapshot().Counters[MetricRateLimitDegraded]; got != 6 {
		t.Fatalf("expected 6 degraded decisions, got %d", got)
	}
}
