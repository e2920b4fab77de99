// Package audit keeps a journal of blocks armed by the login limiter. The
// journal is observational only: the limiter never reads it back, so a slow or
// failing backend cannot change a rate limiting decision.
package audit

import (
	"context"
	"errors"

	"loginguard/internal/models"
)

var (
	// ErrClosed is returned by stores used after Close.
	ErrClosed = errors.New("audit store is closed")

	// ErrUnavailable is returned by Ping when the backend cannot be reached.
	ErrUnavailable = errors.New("audit store unavailable")
)

// Store persists block events. Implementations must be safe for concurrent use.
type Store interface {
	// Record appends an event to the journal.
	Record(ctx context.Context, ev *models.BlockEvent) error

	// List returns events matching the filter, newest first.
	List(ctx context.Context, filter models.BlockEventFilter) ([]*models.BlockEvent, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
