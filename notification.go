package lovelace

import (
	"context"
	"log/slog"
	"time"

	"github.com/aloneinabyss/lovelace/internal/dispatch"
)

// Notification templates sent by the engine.
const (
	TemplateVerification    = "verification"
	TemplateWelcome         = "welcome"
	TemplatePasswordReset   = "password_reset"
	TemplatePasswordChanged = "password_changed"
)

// Notification is an outbound message: who receives it, which template renders it and the
// template parameters. Secrets such as verification tokens travel in Params.
type Notification struct {
	Recipient string            `json:"recipient"`
	Template  string            `json:"template"`
	Params    map[string]string `json:"params,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notifier delivers a notification. It runs on the notification dispatcher goroutine, never on
// the request path.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

type notificationDispatcher struct {
	queue *dispatch.Dispatcher[Notification]
}

func newNotificationDispatcher(cfg NotificationConfig, notifier Notifier, logger *slog.Logger, metrics *Metrics) *notificationDispatcher {
	timeout := cfg.SendTimeout
	handle := func(ctx context.Context, n Notification) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := notifier.Notify(ctx, n); err != nil {
			metrics.Inc(MetricNotificationFailed)
			logger.Error("notification delivery failed",
				"template", n.Template,
				"recipient", n.Recipient,
				"error", err,
			)
		}
	}

	return &notificationDispatcher{
		queue: dispatch.New[Notification](dispatch.Config{
			BufferSize: cfg.BufferSize,
			DropIfFull: cfg.DropIfFull,
		}, handle),
	}
}

// Enqueue reports whether n was accepted for delivery.
func (d *notificationDispatcher) Enqueue(ctx context.Context, n Notification) bool {
	if d == nil {
		return false
	}
	return d.queue.Emit(ctx, n)
}

func (d *notificationDispatcher) Close() {
	if d == nil {
		return
	}
	d.queue.Close()
}

func (d *notificationDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.queue.Dropped()
}
