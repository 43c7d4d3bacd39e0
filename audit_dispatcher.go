package lovelace

import (
	"context"

	"github.com/aloneinabyss/lovelace/internal/dispatch"
)

type auditDispatcher struct {
	queue *dispatch.Dispatcher[AuditEvent]
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	return &auditDispatcher{
		queue: dispatch.New[AuditEvent](dispatch.Config{
			BufferSize: cfg.BufferSize,
			DropIfFull: cfg.DropIfFull,
		}, sink.Emit),
	}
}

// Emit queues event without waiting for the sink.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	d.queue.Emit(ctx, event)
}

// Close drains queued events and stops the dispatcher goroutine.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.queue.Close()
}

// Dropped returns the number of events lost to backpressure.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.queue.Dropped()
}
