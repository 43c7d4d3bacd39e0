package middleware

import (
	"net/http"
	"strconv"

	"github.com/aloneinabyss/lovelace"
	"github.com/aloneinabyss/lovelace/internal/httperr"
)

// RateLimit counts the request against bucket and answers 429 once the window is exhausted.
//
// The refresh bucket is keyed by the user id found in the bearer token or the refresh cookie,
// falling back to the client IP. The other buckets are keyed by client IP. Token signatures
// are checked but expiry is not, so an expired token still identifies its owner.
func RateLimit(engine *lovelace.Engine, bucket lovelace.RateLimitBucket) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}
			cfg := engine.Config()

			ip := lovelace.ClientIPFromContext(r.Context())
			if ip == "" {
				ip = ClientIP(r, cfg.RateLimit.TrustForwardedFor)
			}

			var userID string
			if bucket == lovelace.BucketRefresh {
				userID = requestUserID(engine, r, cfg.Cookie.Name)
			}

			d := engine.RateLimit(r.Context(), bucket, userID, ip)
			if d.Limit > 0 {
				h := w.Header()
				h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				h.Set("X-RateLimit-Reset", strconv.Itoa(d.ResetSeconds))
			}
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(max(d.ResetSeconds, 1)))
				httperr.WriteStatus(w, r, http.StatusTooManyRequests, lovelace.CodeRateLimitExceeded,
					"too many requests, retry after "+strconv.Itoa(max(d.ResetSeconds, 1))+" seconds")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestUserID(engine *lovelace.Engine, r *http.Request, cookieName string) string {
	if token, ok := BearerToken(r.Header.Get("Authorization")); ok {
		if id, ok := engine.IdentifyToken(token); ok {
			return id
		}
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		if id, ok := engine.IdentifyToken(c.Value); ok {
			return id
		}
	}
	return ""
}
