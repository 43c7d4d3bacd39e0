package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	BufferSize int
	// DropIfFull makes Emit non-blocking; items that do not fit are counted and dropped.
	DropIfFull bool
}

// Handler consumes one dequeued item. It runs on the dispatcher goroutine.
type Handler[T any] func(ctx context.Context, item T)

// Dispatcher asynchronously forwards items to a handler.
type Dispatcher[T any] struct {
	cfg       Config
	handle    Handler[T]
	ch        chan T
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// New starts a dispatcher goroutine feeding handle.
func New[T any](cfg Config, handle Handler[T]) *Dispatcher[T] {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if handle == nil {
		handle = func(context.Context, T) {}
	}

	d := &Dispatcher[T]{
		cfg:    cfg,
		handle: handle,
		ch:     make(chan T, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher[T]) run() {
	defer d.wg.Done()

	for {
		select {
		case item := <-d.ch:
			d.handle(context.Background(), item)
		case <-d.done:
			for {
				select {
				case item := <-d.ch:
					d.handle(context.Background(), item)
				default:
					return
				}
			}
		}
	}
}

// Emit enqueues item and reports whether it was accepted. It never runs the handler inline.
func (d *Dispatcher[T]) Emit(ctx context.Context, item T) bool {
	if d == nil || d.closed.Load() {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- item:
			return true
		case <-d.done:
			return false
		default:
			d.dropped.Add(1)
			return false
		}
	}

	select {
	case d.ch <- item:
		return true
	case <-ctx.Done():
		d.dropped.Add(1)
		return false
	case <-d.done:
		return false
	}
}

// Close stops accepting items, drains what is queued and waits for the handler to finish.
func (d *Dispatcher[T]) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of items rejected because the queue was full or the caller gave up.
func (d *Dispatcher[T]) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
