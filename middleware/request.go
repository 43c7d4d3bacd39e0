package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aloneinabyss/lovelace"
	"github.com/aloneinabyss/lovelace/internal/httperr"
	"github.com/aloneinabyss/lovelace/observability"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.statusCode = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger assigns a request id, records the client IP for the engine's audit trail,
// stores a request-scoped logger in the context and logs one line per request.
func RequestLogger(logger *slog.Logger, trustForwardedFor bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			ip := ClientIP(r, trustForwardedFor)
			reqLogger := logger.With("request_id", id)

			ctx := lovelace.WithRequestID(r.Context(), id)
			ctx = lovelace.WithClientIP(ctx, ip)
			ctx = observability.IntoContext(ctx, reqLogger)

			w.Header().Set(requestIDHeader, id)
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			reqLogger.InfoContext(ctx, "http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", ip,
			)
		})
	}
}

// Recover turns a handler panic into a 500 response and reports it to Sentry.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetTag("path", r.URL.Path)
					scope.SetContext("panic", sentry.Context{
						"value": rec,
						"stack": string(debug.Stack()),
					})
					sentry.CaptureMessage("panic in request")
				})

				observability.FromContext(r.Context()).ErrorContext(r.Context(), "panic_recovered",
					"path", r.URL.Path,
					"method", r.Method,
					"panic", rec,
				)
				httperr.WriteStatus(w, r, http.StatusInternalServerError, lovelace.CodeInternalError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For entry when trustForwardedFor is set, otherwise
// the host part of RemoteAddr.
func ClientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
