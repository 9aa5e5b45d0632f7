// Package ratelimiter implements a token bucket keyed by an arbitrary source:
// client address for HTTP requests, connection id for realtime frames.
package ratelimiter

import (
	"math"
	"net/http"
	"sync"
	"time"
)

const (
	bucketKeyPrefix   = "rl:bucket:"
	lastFillKeyPrefix = "rl:fill:"
	defaultSourceKey  = "X-RateLimit-Key"
)

type Limiter interface {
	Allow(sourceKey string) bool
	Remaining(sourceKey string) int
	Forget(sourceKey string)
	GetSourceKey(r *http.Request) string
	GetMaxBurst() int
}

type RateLimiter struct {
	maxRatePerMillisecond float64
	maxBurst              int
	cache                 GetterSetter
	cacheTTL              time.Duration
	sourceHeaderKey       string
	now                   func() time.Time

	locks sync.Map // map[string]*sync.Mutex
}

type bucketState struct {
	tokens   int
	lastFill int64 // Unix milliseconds
}

type Options struct {
	MaxRatePerSecond int
	MaxBurst         int
	Cache            GetterSetter
	CacheTTL         time.Duration
	SourceHeaderKey  string
	Now              func() time.Time
}

func New(options Options) *RateLimiter {
	if options.Cache == nil {
		options.Cache = NewInMemory()
	}

	if options.CacheTTL == 0 {
		options.CacheTTL = 10 * time.Second
	}

	if options.MaxBurst <= 0 {
		options.MaxBurst = options.MaxRatePerSecond
	}

	if options.SourceHeaderKey == "" {
		options.SourceHeaderKey = defaultSourceKey
	}

	if options.Now == nil {
		options.Now = time.Now
	}

	return &RateLimiter{
		maxRatePerMillisecond: float64(options.MaxRatePerSecond) / 1000.0,
		maxBurst:              options.MaxBurst,
		cache:                 options.Cache,
		cacheTTL:              options.CacheTTL,
		sourceHeaderKey:       options.SourceHeaderKey,
		now:                   options.Now,
	}
}

func (rl *RateLimiter) getLock(sourceKey string) *sync.Mutex {
	lock, _ := rl.locks.LoadOrStore(sourceKey, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (rl *RateLimiter) getState(sourceKey string, now int64) bucketState {
	bucket, bucketErr := rl.cache.Get(bucketKeyPrefix + sourceKey)
	lastFill, fillErr := rl.cache.Get(lastFillKeyPrefix + sourceKey)

	// Misses start a full bucket; other cache errors fail open the same way.
	if bucketErr != nil || fillErr != nil {
		return bucketState{tokens: rl.maxBurst, lastFill: now}
	}

	return bucketState{tokens: int(bucket), lastFill: lastFill}
}

func (rl *RateLimiter) setState(sourceKey string, state bucketState) {
	_ = rl.cache.SetWithExpiration(bucketKeyPrefix+sourceKey, int64(state.tokens), rl.cacheTTL)
	_ = rl.cache.SetWithExpiration(lastFillKeyPrefix+sourceKey, state.lastFill, rl.cacheTTL)
}

// refillTokens only advances lastFill when at least one whole token is
// added, so slow rates still accumulate across frequent calls.
func (rl *RateLimiter) refillTokens(state bucketState, now int64) bucketState {
	elapsed := now - state.lastFill
	if elapsed <= 0 || state.tokens >= rl.maxBurst {
		if state.tokens >= rl.maxBurst {
			return bucketState{tokens: rl.maxBurst, lastFill: now}
		}
		return state
	}

	added := int(math.Floor(float64(elapsed) * rl.maxRatePerMillisecond))
	if added <= 0 {
		return state
	}

	tokens := state.tokens + added
	if tokens > rl.maxBurst {
		tokens = rl.maxBurst
	}

	return bucketState{tokens: tokens, lastFill: now}
}

func (rl *RateLimiter) Allow(sourceKey string) bool {
	lock := rl.getLock(sourceKey)
	lock.Lock()
	defer lock.Unlock()

	now := rl.now().UnixMilli()
	state := rl.refillTokens(rl.getState(sourceKey, now), now)

	if state.tokens > 0 {
		state.tokens--
		rl.setState(sourceKey, state)
		return true
	}

	rl.setState(sourceKey, state)
	return false
}

func (rl *RateLimiter) Remaining(sourceKey string) int {
	lock := rl.getLock(sourceKey)
	lock.Lock()
	defer lock.Unlock()

	now := rl.now().UnixMilli()
	state := rl.refillTokens(rl.getState(sourceKey, now), now)
	rl.setState(sourceKey, state)

	return state.tokens
}

// Forget drops all state for sourceKey.
func (rl *RateLimiter) Forget(sourceKey string) {
	_ = rl.cache.Delete(bucketKeyPrefix + sourceKey)
	_ = rl.cache.Delete(lastFillKeyPrefix + sourceKey)
	rl.locks.Delete(sourceKey)
}

func (rl *RateLimiter) GetMaxBurst() int {
	return rl.maxBurst
}

func (rl *RateLimiter) GetSourceKey(r *http.Request) string {
	if key := r.Header.Get(rl.sourceHeaderKey); key != "" {
		return key
	}

	return r.RemoteAddr
}

func (rl *RateLimiter) Close() error {
	return rl.cache.Close()
}
