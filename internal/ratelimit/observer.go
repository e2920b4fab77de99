package ratelimit

import "time"

// BlockEvent describes a block armed for an identifier.
type BlockEvent struct {
	Identifier string
	Attempts   int       // Attempts inside the window when the block was armed
	BlockedAt  time.Time
	ExpiresAt  time.Time
}

// ReapStats reports what one reaper pass removed.
type ReapStats struct {
	Histories int // Identifiers whose attempt history became empty
	Blocks    int // Expired block entries
}

// Observer receives limiter events. Callbacks run on the caller's goroutine
// (or the reaper's) after internal locks are released and must not block.
type Observer interface {
	Blocked(ev BlockEvent)
	Reaped(stats ReapStats)
}

// NoopObserver discards all events.
type NoopObserver struct{}

func (NoopObserver) Blocked(BlockEvent) {}
func (NoopObserver) Reaped(ReapStats)   {}

type multiObserver []Observer

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	if len(m) == 0 {
		return NoopObserver{}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multiObserver) Blocked(ev BlockEvent) {
	for _, o := range m {
		o.Blocked(ev)
	}
}

func (m multiObserver) Reaped(stats ReapStats) {
	for _, o := range m {
		o.Reaped(stats)
	}
}
