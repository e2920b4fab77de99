package guard

import (
	"context"

	"loginguard/internal/models"
)

// ServiceInterface defines the interface for login guard operations
type ServiceInterface interface {
	// RecordAttempt registers a login attempt and returns the limiter decision
	RecordAttempt(ctx context.Context, req *models.AttemptRequest) (*models.AttemptResponse, error)

	// CheckStatus reports whether an identifier is currently rate limited
	CheckStatus(ctx context.Context, identifier, namespace string) (*models.StatusResponse, error)

	// Reset clears all limiter state for an identifier and returns the
	// limiter key that was cleared
	Reset(ctx context.Context, identifier, namespace string) (string, error)

	// Stats returns limiter cardinalities and the active policy
	Stats(ctx context.Context) (*models.StatsResponse, error)

	// ListBlocks returns journaled block events, newest first
	ListBlocks(ctx context.Context, req *models.ListBlocksRequest) (*models.ListBlocksResponse, error)

	// Ping checks the dependencies the service relies on
	Ping(ctx context.Context) error
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
