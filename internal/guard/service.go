// Package guard is the service layer between the HTTP API and the login
// limiter. It validates and normalizes identifiers, maps them to limiter keys
// and translates limiter results into API responses.
package guard

import (
	"context"
	"time"

	"loginguard/internal/audit"
	"loginguard/internal/models"
	"loginguard/internal/ratelimit"
)

// Service handles login attempt accounting on top of a Limiter.
type Service struct {
	limiter ratelimit.Limiter
	policy  ratelimit.Config
	store   audit.Store
	now     func() time.Time
}

// NewService creates a guard service. store may be nil when the audit journal
// is disabled.
func NewService(limiter ratelimit.Limiter, policy ratelimit.Config, store audit.Store) *Service {
	return &Service{
		limiter: limiter,
		policy:  policy,
		store:   store,
		now:     time.Now,
	}
}

// RecordAttempt validates the request and records one attempt. A denied
// attempt is not an error; the response carries Allowed=false.
func (s *Service) RecordAttempt(ctx context.Context, req *models.AttemptRequest) (*models.AttemptResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid attempt request", err)
	}

	result := s.limiter.RecordAttempt(req.Key())

	response := &models.AttemptResponse{
		Identifier:        req.Identifier,
		Allowed:           result.Allowed,
		RemainingAttempts: result.RemainingAttempts,
	}
	if result.RetryAfter > 0 {
		response.SetRetryAfter(result.RetryAfter)
	}
	return response, nil
}

func (s *Service) CheckStatus(ctx context.Context, identifier, namespace string) (*models.StatusResponse, error) {
	req := &models.IdentifierRequest{Identifier: identifier, Namespace: namespace}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid identifier", err)
	}

	return &models.StatusResponse{
		Identifier:  req.Identifier,
		RateLimited: s.limiter.IsRateLimited(req.Key()),
		CheckedAt:   s.now().UTC(),
	}, nil
}

func (s *Service) Reset(ctx context.Context, identifier, namespace string) (string, error) {
	req := &models.IdentifierRequest{Identifier: identifier, Namespace: namespace}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", NewValidationError("invalid identifier", err)
	}

	key := req.Key()
	s.limiter.Reset(key)
	return key, nil
}

func (s *Service) Stats(ctx context.Context) (*models.StatsResponse, error) {
	stats := s.limiter.Stats()
	return &models.StatsResponse{
		TotalTrackedIdentifiers: stats.TotalTrackedIdentifiers,
		TotalBlockedIdentifiers: stats.TotalBlockedIdentifiers,
		MaxAttempts:             s.policy.MaxAttempts,
		Window:                  s.policy.Window.String(),
		BlockDuration:           s.policy.EffectiveBlockDuration().String(),
		AuditEnabled:            s.store != nil,
	}, nil
}

func (s *Service) ListBlocks(ctx context.Context, req *models.ListBlocksRequest) (*models.ListBlocksResponse, error) {
	if s.store == nil {
		return nil, NewUnavailableError("audit journal is disabled", nil)
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid block listing request", err)
	}

	events, err := s.store.List(ctx, req.Filter())
	if err != nil {
		return nil, NewInternalError("failed to list block events", err)
	}

	return &models.ListBlocksResponse{
		Events: events,
		Count:  len(events),
	}, nil
}

// Ping reports audit store reachability. The limiter itself has no external
// dependencies.
func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Ping(ctx); err != nil {
		return NewUnavailableError("audit store unreachable", err)
	}
	return nil
}
