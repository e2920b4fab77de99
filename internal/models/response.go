// Package models - API response types and error handling.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Machine-readable error codes alongside human-readable messages
// - RFC3339 timestamps
package models

import (
	"time"
)

// AttemptResponse is the limiter decision for one login attempt.
//
// Client Usage:
// - Check Allowed before verifying the password
// - RetryAfterMs is present once a block is armed or the attempt is denied
type AttemptResponse struct {
	Identifier        string `json:"identifier"`
	Allowed           bool   `json:"allowed"`
	RemainingAttempts int    `json:"remaining_attempts"`
	RetryAfterMs      *int64 `json:"retry_after_ms,omitempty"`
}

// SetRetryAfter records a retry hint in milliseconds.
func (r *AttemptResponse) SetRetryAfter(d time.Duration) {
	ms := d.Milliseconds()
	r.RetryAfterMs = &ms
}

type StatusResponse struct {
	Identifier  string    `json:"identifier"`
	RateLimited bool      `json:"rate_limited"`
	CheckedAt   time.Time `json:"checked_at"`
}

type ResetResponse struct {
	Identifier string `json:"identifier"`
	Message    string `json:"message"`
}

type StatsResponse struct {
	TotalTrackedIdentifiers int    `json:"total_tracked_identifiers"`
	TotalBlockedIdentifiers int    `json:"total_blocked_identifiers"`
	MaxAttempts             int    `json:"max_attempts"`
	Window                  string `json:"window"`
	BlockDuration           string `json:"block_duration"`
	AuditEnabled            bool   `json:"audit_enabled"`
}

type ListBlocksResponse struct {
	Events []*BlockEvent `json:"events"`
	Count  int           `json:"count"`
}

// ErrorResponse provides structured error information.
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Standard HTTP Error Codes
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400: Invalid request data
	ErrorCodeValidation         = "VALIDATION_ERROR"    // 422: Input validation failed
	ErrorCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED" // 429: Too many attempts or requests
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeUnauthorized       = "UNAUTHORIZED"        // 401: Authentication required
	ErrorCodeForbidden          = "FORBIDDEN"           // 403: Permission denied
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Dependency unavailable
	ErrorCodeBadGateway         = "BAD_GATEWAY"         // 502: Upstream login endpoint failed
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	if status == StatusUnhealthy && h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
}
