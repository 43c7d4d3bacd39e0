package rate

import (
	"sync"
	"time"
)

// LocalCounter is the process-scoped fallback used while Redis is unreachable.
// Each key owns its own mutex so concurrent hits on one key never lose increments.
type LocalCounter struct {
	mu      sync.Mutex
	windows map[string]*localWindow
	now     func() time.Time
}

type localWindow struct {
	mu          sync.Mutex
	count       int64
	windowStart time.Time
	window      time.Duration
	// swept is set under mu by Sweep when the window leaves the map. A caller that fetched the
	// window earlier must fetch again instead of counting on it.
	swept bool
}

// NewLocalCounter returns an empty fallback counter. now may be nil.
func NewLocalCounter(now func() time.Time) *LocalCounter {
	if now == nil {
		now = time.Now
	}
	return &LocalCounter{windows: make(map[string]*localWindow), now: now}
}

// Consume applies the same fixed-window decision as [Limiter.Consume] using in-process state.
func (c *LocalCounter) Consume(key string, capacity int, window time.Duration) Result {
	for {
		if res, ok := c.consumeFrom(c.get(key), capacity, window); ok {
			return res
		}
	}
}

// consumeFrom counts one hit on w. It reports false when w was swept after it was fetched.
func (c *LocalCounter) consumeFrom(w *localWindow, capacity int, window time.Duration) (Result, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.swept {
		return Result{}, false
	}

	now := c.now()
	if w.windowStart.IsZero() || now.Sub(w.windowStart) >= window {
		w.count = 0
		w.windowStart = now
	}
	w.window = window
	w.count++

	return decide(w.count, capacity, w.windowStart.Add(window).Sub(now)), true
}

// Sweep drops keys whose window ended before now. It returns how many were removed.
func (c *LocalCounter) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, w := range c.windows {
		w.mu.Lock()
		if !w.windowStart.IsZero() && now.Sub(w.windowStart) >= w.window {
			w.swept = true
			delete(c.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (c *LocalCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

func (c *LocalCounter) get(key string) *localWindow {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok {
		w = &localWindow{}
		c.windows[key] = w
	}
	return w
}
