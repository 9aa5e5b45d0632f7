package ratelimiter

import (
	"sync"
	"time"
)

// FixedWindow counts hits per key inside aligned windows. The realtime
// handler uses it to bound websocket upgrade attempts per client address.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	size    time.Duration
	now     func() time.Time

	cleanupTick *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

type window struct {
	count   int
	resetAt time.Time
}

func NewFixedWindow(limit int, size time.Duration) *FixedWindow {
	fw := newFixedWindow(limit, size, time.Now)
	fw.cleanupTick = time.NewTicker(size)
	go fw.startCleanup()
	return fw
}

func newFixedWindow(limit int, size time.Duration, now func() time.Time) *FixedWindow {
	return &FixedWindow{
		windows: make(map[string]*window),
		limit:   limit,
		size:    size,
		now:     now,
		done:    make(chan struct{}),
	}
}

// Allow records a hit for key. When the window is exhausted it returns false
// and the time left until the window resets.
func (fw *FixedWindow) Allow(key string) (bool, time.Duration) {
	now := fw.now()

	fw.mu.Lock()
	defer fw.mu.Unlock()

	w, ok := fw.windows[key]
	if !ok || !now.Before(w.resetAt) {
		fw.windows[key] = &window{count: 1, resetAt: now.Truncate(fw.size).Add(fw.size)}
		return true, 0
	}

	if w.count >= fw.limit {
		return false, w.resetAt.Sub(now)
	}

	w.count++
	return true, 0
}

func (fw *FixedWindow) startCleanup() {
	for {
		select {
		case <-fw.cleanupTick.C:
			fw.cleanup()
		case <-fw.done:
			return
		}
	}
}

func (fw *FixedWindow) cleanup() {
	now := fw.now()

	fw.mu.Lock()
	defer fw.mu.Unlock()

	for key, w := range fw.windows {
		if !now.Before(w.resetAt) {
			delete(fw.windows, key)
		}
	}
}

func (fw *FixedWindow) Close() {
	fw.closeOnce.Do(func() {
		close(fw.done)
		if fw.cleanupTick != nil {
			fw.cleanupTick.Stop()
		}
	})
}
