package observability

import (
	"context"
	"time"

	"github.com/aloneinabyss/lovelace"
	"github.com/getsentry/sentry-go"
)

// InitSentry configures the global Sentry client. An empty dsn leaves Sentry disabled.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// SentrySink forwards critical audit events (refresh token reuse) to Sentry.
// Other severities are ignored.
type SentrySink struct {
	hub *sentry.Hub
}

// NewSentrySink reports through hub, or the current global hub when hub is nil.
func NewSentrySink(hub *sentry.Hub) *SentrySink {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentrySink{hub: hub}
}

func (s *SentrySink) Emit(_ context.Context, event lovelace.AuditEvent) {
	if s == nil || s.hub == nil || event.Severity != lovelace.SeverityCritical {
		return
	}

	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("audit.event_type", event.EventType)
		if event.RequestID != "" {
			scope.SetTag("request_id", event.RequestID)
		}
		scope.SetUser(sentry.User{ID: event.UserID, Username: event.Username, IPAddress: event.IP})

		details := sentry.Context{
			"timestamp": event.Timestamp.Format(time.RFC3339Nano),
			"success":   event.Success,
		}
		if event.Error != "" {
			details["error"] = event.Error
		}
		for k, v := range event.Metadata {
			details[k] = v
		}
		scope.SetContext("audit", details)

		s.hub.CaptureMessage("security event: " + event.EventType)
	})
}
