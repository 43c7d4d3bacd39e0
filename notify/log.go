package notify

import (
	"context"
	"log/slog"

	"github.com/aloneinabyss/lovelace"
)

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs n at info level. Token parameters are logged too, so this is not for production.
func (l *LogNotifier) Notify(ctx context.Context, n lovelace.Notification) error {
	attrs := []any{"recipient", n.Recipient, "template", n.Template}
	for k, v := range n.Params {
		attrs = append(attrs, "param."+k, v)
	}
	l.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
