package models

import (
	"time"

	"github.com/google/uuid"
)

// BlockEvent is a journal record of a block armed by the login limiter.
type BlockEvent struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Attempts   int       `json:"attempts"`
	BlockedAt  time.Time `json:"blocked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// NewBlockEvent creates a journal record with a fresh ID. Times are stored in UTC.
func NewBlockEvent(identifier string, attempts int, blockedAt, expiresAt time.Time) *BlockEvent {
	return &BlockEvent{
		ID:         uuid.New().String(),
		Identifier: identifier,
		Attempts:   attempts,
		BlockedAt:  blockedAt.UTC(),
		ExpiresAt:  expiresAt.UTC(),
	}
}

// Duration is how long the block lasts.
func (e *BlockEvent) Duration() time.Duration {
	return e.ExpiresAt.Sub(e.BlockedAt)
}

// BlockEventFilter selects journal records. An empty Identifier matches all;
// Limit of zero means no limit.
type BlockEventFilter struct {
	Identifier string
	Limit      int
}

// Matches reports whether the event passes the identifier filter.
func (f BlockEventFilter) Matches(e *BlockEvent) bool {
	return f.Identifier == "" || f.Identifier == e.Identifier
}
