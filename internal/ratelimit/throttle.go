package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleInfo contains request throttle state for populating response headers.
type ThrottleInfo struct {
	Limit      int           // Maximum requests per minute
	Remaining  int           // Approximate tokens remaining
	ResetAt    time.Time     // When the bucket will be full again
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a per-client token bucket protecting the HTTP API from request
// floods. It is separate from the login limiter: it counts every API call,
// not login attempts. Buckets idle for more than twice the cleanup interval
// are evicted by a background goroutine.
type Throttle struct {
	rate            rate.Limit
	burst           int
	limit           int
	cleanupInterval time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewThrottle creates a throttle allowing requestsPerMinute with the given
// burst and starts its eviction goroutine.
func NewThrottle(requestsPerMinute int, burst int, cleanupInterval time.Duration) *Throttle {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	t := &Throttle{
		rate:            rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:           burst,
		limit:           requestsPerMinute,
		cleanupInterval: cleanupInterval,
		buckets:         make(map[string]*bucket),
		done:            make(chan struct{}),
	}
	t.wg.Add(1)
	go t.cleanup()
	return t
}

// Allow consumes a token for key and reports the bucket state.
func (t *Throttle) Allow(key string) (bool, ThrottleInfo) {
	now := time.Now()

	t.mu.Lock()
	b, exists := t.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.buckets[key] = b
	}
	b.lastSeen = now
	t.mu.Unlock()

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	info := ThrottleInfo{
		Limit:     t.limit,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now,
	}
	if missing := float64(t.burst) - tokens; missing > 0 {
		info.ResetAt = now.Add(time.Duration(missing / float64(t.rate) * float64(time.Second)))
	}

	if !allowed {
		r := b.limiter.ReserveN(now, 1)
		info.RetryAfter = r.DelayFrom(now)
		r.CancelAt(now)
	}

	return allowed, info
}

// Close stops the eviction goroutine. Safe to call more than once.
func (t *Throttle) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Throttle) cleanup() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.evictStale(time.Now())
		}
	}
}

// evictStale removes buckets idle for more than twice the cleanup interval.
func (t *Throttle) evictStale(now time.Time) int {
	cutoff := now.Add(-2 * t.cleanupInterval)
	t.mu.Lock()
	defer t.mu.Unlock()
	evicted := 0
	for key, b := range t.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(t.buckets, key)
			evicted++
		}
	}
	return evicted
}
