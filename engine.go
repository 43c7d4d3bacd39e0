package lovelace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aloneinabyss/lovelace/internal/flows"
	"github.com/aloneinabyss/lovelace/internal/rate"
	"github.com/aloneinabyss/lovelace/jwt"
	"github.com/aloneinabyss/lovelace/password"
	"github.com/aloneinabyss/lovelace/revocation"
)

// rateFallbackSweepInterval is how often expired local rate-limit windows are dropped.
const rateFallbackSweepInterval = time.Minute

// Engine is the authentication core. Build one with [New] and share it between goroutines.
//
//	Docs: doc.go
type Engine struct {
	config        Config
	logger        *slog.Logger
	now           func() time.Time
	jwtManager    *jwt.Manager
	revocation    *revocation.Store
	rateLimiter   *rate.Limiter
	rateFallback  *rate.LocalCounter
	passwordHash  *password.Argon2
	dummyHash     string
	userProvider  UserProvider
	audit         *auditDispatcher
	notifications *notificationDispatcher
	metrics       *Metrics
	flows         flows.Service

	stopJanitor chan struct{}
	closeOnce   sync.Once
	janitorDone sync.WaitGroup
}

// Close stops background work and drains the audit and notification queues.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.stopJanitor != nil {
			close(e.stopJanitor)
			e.janitorDone.Wait()
		}
		e.notifications.Close()
		e.audit.Close()
	})
}

// Now reads the engine clock, which is time.Now unless replaced with [Builder.WithClock].
// Token lifetimes are measured against it.
func (e *Engine) Now() time.Time {
	if e == nil || e.now == nil {
		return time.Now()
	}
	return e.now()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// AuditDropped returns the number of audit events dropped because the queue was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// NotificationDropped returns the number of notifications dropped because the queue was full.
func (e *Engine) NotificationDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.notifications.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

// RevocationDegradedEntries returns how many revocations are held only in this process because
// Redis rejected the write.
func (e *Engine) RevocationDegradedEntries() int {
	if e == nil || e.revocation == nil {
		return 0
	}
	return e.revocation.DegradedEntries()
}

// Health pings the shared Redis instance and reports the round trip.
func (e *Engine) Health(ctx context.Context) (bool, time.Duration) {
	if e == nil || e.revocation == nil {
		return false, 0
	}
	latency, err := e.revocation.Ping(ctx)
	return err == nil, latency
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// RateLimit consumes one request from bucket. The counter is keyed by userID when it is
// non-empty and by ip otherwise. Redis failures degrade to an in-process counter and are
// never surfaced as errors.
func (e *Engine) RateLimit(ctx context.Context, bucket RateLimitBucket, userID, ip string) RateLimitDecision {
	limit, ok := e.bucketLimit(bucket)
	if !ok {
		return RateLimitDecision{Allowed: true}
	}
	if !e.config.RateLimit.Enabled {
		return RateLimitDecision{Allowed: true, Limit: limit.Capacity, Remaining: limit.Capacity}
	}

	key := rate.IPKey(rate.Bucket(bucket), ip)
	identity := ip
	if userID != "" {
		key = rate.UserKey(rate.Bucket(bucket), userID)
		identity = userID
	}

	res := e.rateLimiter.Consume(ctx, key, limit.Capacity, limit.Window)
	if res.Degraded {
		e.metricInc(MetricRateLimitDegraded)
	}
	if !res.Allowed {
		e.emitRateLimit(ctx, bucket, identity)
	}

	return RateLimitDecision{
		Allowed:      res.Allowed,
		Limit:        res.Limit,
		Remaining:    res.Remaining,
		ResetSeconds: res.ResetSeconds,
		Degraded:     res.Degraded,
	}
}

func (e *Engine) bucketLimit(bucket RateLimitBucket) (BucketLimit, bool) {
	switch bucket {
	case BucketLogin:
		return e.config.RateLimit.Login, true
	case BucketRefresh:
		return e.config.RateLimit.Refresh, true
	case BucketGlobal:
		return e.config.RateLimit.Global, true
	default:
		return BucketLimit{}, false
	}
}

// IdentifyToken returns the user id carried by a correctly signed token, ignoring expiry and
// revocation. It exists to key rate-limit buckets and must not be used to authorize anything.
func (e *Engine) IdentifyToken(token string) (string, bool) {
	if e == nil || e.jwtManager == nil || token == "" {
		return "", false
	}
	claims, err := e.jwtManager.Identify(token)
	if err != nil {
		return "", false
	}
	return claims.UserID, true
}

func (e *Engine) runJanitor() {
	defer e.janitorDone.Done()

	ticker := time.NewTicker(rateFallbackSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := e.rateFallback.Sweep(); n > 0 {
				e.logger.Debug("swept local rate-limit windows", "count", n)
			}
		case <-e.stopJanitor:
			return
		}
	}
}
