package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultShards is the number of lock shards used when none is configured.
const DefaultShards = 32

// Option configures a MemoryLimiter.
type Option func(*MemoryLimiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *MemoryLimiter) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithShards sets the number of lock shards. Values below 1 are ignored.
func WithShards(n int) Option {
	return func(m *MemoryLimiter) {
		if n > 0 {
			m.shardCount = n
		}
	}
}

// WithObserver registers an observer for block and reap events.
func WithObserver(o Observer) Option {
	return func(m *MemoryLimiter) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithLogger sets the logger used for block and reaper messages.
func WithLogger(l *slog.Logger) Option {
	return func(m *MemoryLimiter) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithReapInterval overrides the reaper period, which defaults to the window.
func WithReapInterval(d time.Duration) Option {
	return func(m *MemoryLimiter) {
		if d > 0 {
			m.reapInterval = d
		}
	}
}

// MemoryLimiter is the in-process Limiter. Identifiers are spread across
// shards; each shard guards its attempt histories and block table with one
// mutex, so operations on the same identifier are serialized while different
// identifiers rarely contend. A reaper goroutine started at construction
// purges stale entries every reap interval until Close is called.
type MemoryLimiter struct {
	cfg           Config
	blockDuration time.Duration
	shardCount    int
	reapInterval  time.Duration
	clock         Clock
	observer      Observer
	logger        *slog.Logger

	shards shardSet

	mu     sync.Mutex
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter validates cfg, builds the limiter and starts its reaper.
func NewMemoryLimiter(cfg Config, opts ...Option) (*MemoryLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &MemoryLimiter{
		cfg:           cfg,
		blockDuration: cfg.EffectiveBlockDuration(),
		shardCount:    DefaultShards,
		reapInterval:  cfg.Window,
		clock:         systemClock{},
		observer:      NoopObserver{},
		logger:        slog.Default(),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.shards = newShardSet(m.shardCount)

	m.wg.Add(1)
	go m.reapLoop()
	return m, nil
}

// Config returns the policy the limiter was built with.
func (m *MemoryLimiter) Config() Config {
	return m.cfg
}

// IsRateLimited reports whether the identifier has an unexpired block or a
// full window. A stale block is removed as a side effect.
func (m *MemoryLimiter) IsRateLimited(identifier string) bool {
	sh := m.shards.get(identifier)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	limited, _ := m.limitedLocked(sh, identifier, m.clock.Now())
	return limited
}

// limitedLocked evaluates the block overlay first, then the window. When a
// block is active its expiry is returned.
func (m *MemoryLimiter) limitedLocked(sh *shard, identifier string, now time.Time) (bool, time.Time) {
	if until, blocked := sh.blockedUntilLocked(identifier, now); blocked {
		return true, until
	}
	return sh.recentCountLocked(identifier, now, m.cfg.Window) >= m.cfg.MaxAttempts, time.Time{}
}

// RecordAttempt registers an attempt for the identifier.
//
// A blocked or full identifier is denied without growing its history. The
// attempt that brings the window to MaxAttempts is still allowed (with zero
// remaining) but arms a block, so the next attempt is denied until the block
// expires or the identifier is reset.
func (m *MemoryLimiter) RecordAttempt(identifier string) Result {
	sh := m.shards.get(identifier)
	sh.mu.Lock()

	now := m.clock.Now()
	if limited, until := m.limitedLocked(sh, identifier, now); limited {
		sh.mu.Unlock()
		retryAfter := m.cfg.Window
		if !until.IsZero() {
			retryAfter = max(0, until.Sub(now))
		}
		return Result{Allowed: false, RemainingAttempts: 0, RetryAfter: retryAfter}
	}

	sh.appendLocked(identifier, now)
	count := sh.recentCountLocked(identifier, now, m.cfg.Window)
	remaining := max(0, m.cfg.MaxAttempts-count)

	if count < m.cfg.MaxAttempts {
		sh.mu.Unlock()
		return Result{Allowed: true, RemainingAttempts: remaining}
	}

	ev := BlockEvent{
		Identifier: identifier,
		Attempts:   count,
		BlockedAt:  now,
		ExpiresAt:  now.Add(m.blockDuration),
	}
	sh.blockLocked(identifier, ev.ExpiresAt)
	sh.mu.Unlock()

	m.logger.Warn("Login attempts exhausted, identifier blocked",
		"identifier", identifier,
		"attempts", count,
		"block_duration", m.blockDuration,
	)
	m.observer.Blocked(ev)

	return Result{Allowed: true, RemainingAttempts: 0, RetryAfter: m.blockDuration}
}

// Reset removes both the attempt history and any block for the identifier.
func (m *MemoryLimiter) Reset(identifier string) {
	sh := m.shards.get(identifier)
	sh.mu.Lock()
	sh.resetLocked(identifier)
	sh.mu.Unlock()
}

// Stats sums map sizes shard by shard.
func (m *MemoryLimiter) Stats() Stats {
	var s Stats
	for _, sh := range m.shards {
		sh.mu.Lock()
		s.TotalTrackedIdentifiers += len(sh.history)
		s.TotalBlockedIdentifiers += len(sh.blocks)
		sh.mu.Unlock()
	}
	return s
}

// Close stops the reaper and waits for it to exit. It is safe to call more
// than once.
func (m *MemoryLimiter) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
