package ratelimiter

import (
	"sync"
	"time"
)

type inMemoryEntry struct {
	value     int64
	expiresAt time.Time
}

type InMemory struct {
	cache     map[string]inMemoryEntry
	mu        sync.RWMutex
	stopClean chan struct{}
	cleanOnce sync.Once
	now       func() time.Time
}

func NewInMemory() *InMemory {
	im := newInMemory(time.Now)
	go im.cleanupExpired(time.Minute)
	return im
}

func newInMemory(now func() time.Time) *InMemory {
	return &InMemory{
		cache:     make(map[string]inMemoryEntry),
		stopClean: make(chan struct{}),
		now:       now,
	}
}

func (i *InMemory) Get(key string) (int64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	entry, ok := i.cache[key]
	if !ok {
		return 0, ErrCacheMiss
	}

	if !entry.expiresAt.IsZero() && i.now().After(entry.expiresAt) {
		return 0, ErrCacheMiss
	}

	return entry.value, nil
}

func (i *InMemory) SetWithExpiration(key string, value int64, expiration time.Duration) error {
	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = i.now().Add(expiration)
	}

	i.mu.Lock()
	i.cache[key] = inMemoryEntry{value: value, expiresAt: expiresAt}
	i.mu.Unlock()

	return nil
}

func (i *InMemory) Delete(key string) error {
	i.mu.Lock()
	delete(i.cache, key)
	i.mu.Unlock()
	return nil
}

func (i *InMemory) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.cache)
}

func (i *InMemory) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			i.removeExpired()
		case <-i.stopClean:
			return
		}
	}
}

func (i *InMemory) removeExpired() {
	now := i.now()

	i.mu.Lock()
	defer i.mu.Unlock()

	for key, entry := range i.cache {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(i.cache, key)
		}
	}
}

func (i *InMemory) Close() error {
	i.cleanOnce.Do(func() {
		close(i.stopClean)
	})
	return nil
}
