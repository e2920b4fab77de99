// Package ratelimit limits repeated login attempts per identifier (username,
// email or client IP) using an exact sliding window combined with a block
// overlay. Once an identifier reaches the attempt limit inside the window it is
// blocked for a fixed duration, independent of the window contents. A
// background reaper purges stale state to bound memory use; correctness never
// depends on it having run because every read expires stale entries itself.
//
// The package also carries HTTP helpers: Guard, which wraps an application's
// login handler with the limiter, and Throttle, a token-bucket limiter used to
// protect the HTTP API itself.
package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a limiter is constructed with a
// configuration that would never block or always block.
var ErrInvalidConfig = errors.New("invalid rate limiter config")

// Limiter defines the login rate limiting contract. Implementations must be
// safe for concurrent use, and operations on the same identifier must be
// linearizable.
type Limiter interface {
	// IsRateLimited reports whether the identifier is currently denied, either
	// by an active block or because the window is full.
	IsRateLimited(identifier string) bool

	// RecordAttempt registers a login attempt and reports whether it may
	// proceed.
	RecordAttempt(identifier string) Result

	// Reset forgets all state for the identifier, typically after a
	// successful login.
	Reset(identifier string)

	// Stats returns a point-in-time snapshot of the tracked state.
	Stats() Stats

	// Close stops background goroutines and releases resources.
	Close()
}

// Config holds the limiter policy. It is immutable once a limiter is built.
type Config struct {
	MaxAttempts   int           // Attempts allowed per window
	Window        time.Duration // Trailing interval attempts are counted over
	BlockDuration time.Duration // Block length once the limit is hit; zero means Window
}

// Validate rejects policies that would silently never block or always block.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, c.Window)
	}
	if c.BlockDuration < 0 {
		return fmt.Errorf("%w: block duration cannot be negative, got %s", ErrInvalidConfig, c.BlockDuration)
	}
	return nil
}

// EffectiveBlockDuration returns BlockDuration, falling back to Window.
func (c Config) EffectiveBlockDuration() time.Duration {
	if c.BlockDuration > 0 {
		return c.BlockDuration
	}
	return c.Window
}

// Result is the outcome of a single RecordAttempt call.
type Result struct {
	Allowed           bool          // Whether the attempt may proceed
	RemainingAttempts int           // Attempts left in the current window
	RetryAfter        time.Duration // Non-zero once a block is armed or the attempt is denied
}

// Stats is a snapshot of limiter cardinalities. It is not guaranteed to be
// consistent with a concurrently running reaper pass.
type Stats struct {
	TotalTrackedIdentifiers int `json:"total_tracked_identifiers"`
	TotalBlockedIdentifiers int `json:"total_blocked_identifiers"`
}

// Clock abstracts time so tests can drive the window deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
