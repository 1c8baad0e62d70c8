// Package ratelimit implements fixed-window request counting keyed by an
// arbitrary string.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt int64 // unix milliseconds
}

// Limiter counts requests per key inside a fixed window. The first request
// after a window expires opens a fresh one; no partial credit carries over.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	max      int
	windowMs int64
	done     chan struct{}
	now      func() time.Time
}

// New builds a limiter allowing max requests per windowDur for each key.
// Close stops the background sweep of expired windows.
func New(max int, windowDur time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		max:      max,
		windowMs: windowDur.Milliseconds(),
		done:     make(chan struct{}),
		now:      time.Now,
	}

	// Expired windows are also dropped lazily on access; the sweep only
	// bounds memory for keys that never come back.
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-l.done:
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()

	return l
}

// Allow reports whether one more request fits the key's current window and
// consumes a slot if it does. The max-th request in a window is allowed; the
// one after it is not.
func (l *Limiter) Allow(key string) bool {
	now := l.now().UnixMilli()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now >= w.resetAt {
		l.windows[key] = &window{count: 1, resetAt: now + l.windowMs}
		return true
	}

	w.count++
	return w.count <= l.max
}

func (l *Limiter) sweep() {
	now := l.now().UnixMilli()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now >= w.resetAt {
			delete(l.windows, key)
		}
	}
}

func (l *Limiter) Close() {
	close(l.done)
}
