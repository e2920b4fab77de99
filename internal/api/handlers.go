package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"loginguard/internal/guard"
	"loginguard/internal/models"
	"loginguard/internal/ratelimit"

	"github.com/gorilla/mux"
)

// maxBodyBytes bounds attempt request bodies.
const maxBodyBytes = 64 << 10

// Handlers contains HTTP handlers for the login guard API
type Handlers struct {
	guardService guard.ServiceInterface
	version      string
	clientIPs    *ratelimit.ClientIPs
	startTime    time.Time
}

// HandlerOption configures optional Handlers behavior.
type HandlerOption func(*Handlers)

// WithVersion sets the version reported by health checks.
func WithVersion(v string) HandlerOption {
	return func(h *Handlers) {
		h.version = v
	}
}

// WithClientIPs sets the resolver used to log client addresses.
func WithClientIPs(ips *ratelimit.ClientIPs) HandlerOption {
	return func(h *Handlers) {
		h.clientIPs = ips
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(guardService guard.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		guardService: guardService,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RecordAttempt handles login attempt reports
// POST /api/v1/attempts
// Answers 200 when the attempt may proceed and 429 with Retry-After when it
// must be refused.
func (h *Handlers) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req models.AttemptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "Invalid JSON body")
		return
	}

	response, err := h.guardService.RecordAttempt(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if !response.Allowed {
		if response.RetryAfterMs != nil {
			w.Header().Set("Retry-After", retryAfterHeader(*response.RetryAfterMs))
		}
		h.writeJSONResponse(w, http.StatusTooManyRequests, response)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// GetStatus reports whether an identifier is rate limited
// GET /api/v1/identifiers/{identifier}?namespace=
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]

	response, err := h.guardService.CheckStatus(r.Context(), identifier, r.URL.Query().Get("namespace"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// ResetIdentifier clears limiter state for an identifier
// DELETE /api/v1/identifiers/{identifier}?namespace=
// Requires 'write' permission when auth is enabled
func (h *Handlers) ResetIdentifier(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]
	namespace := r.URL.Query().Get("namespace")

	key, err := h.guardService.Reset(r.Context(), identifier, namespace)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	slog.Info("Identifier reset",
		"identifier", key,
		"api_key", getAPIKeyName(GetSecurityContext(r)),
		"client_ip", h.clientIPs.ClientIP(r))

	h.writeJSONResponse(w, http.StatusOK, &models.ResetResponse{
		Identifier: key,
		Message:    "Rate limit state cleared",
	})
}

// GetStats returns limiter cardinalities and policy
// GET /api/v1/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	response, err := h.guardService.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// ListBlocks returns journaled block events
// GET /api/v1/blocks?identifier=&namespace=&limit=
func (h *Handlers) ListBlocks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := &models.ListBlocksRequest{
		Identifier: query.Get("identifier"),
		Namespace:  query.Get("namespace"),
	}

	if limitParam := query.Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit <= 0 {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		req.Limit = limit
	}

	response, err := h.guardService.ListBlocks(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version
	response.Uptime = time.Since(h.startTime).Round(time.Second).String()

	response.AddComponent("limiter", models.StatusHealthy, "Limiter is operational")
	if err := h.guardService.Ping(r.Context()); err != nil {
		response.AddComponent("audit", models.StatusUnhealthy, err.Error())
	} else {
		response.AddComponent("audit", models.StatusHealthy, "Audit journal is operational")
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; only log.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message, errorCode))
}

// writeServiceError maps a service error to its HTTP status. Unknown errors
// become 500 without leaking details.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var serviceErr *guard.ServiceError
	if errors.As(err, &serviceErr) {
		if serviceErr.StatusCode >= http.StatusInternalServerError {
			slog.Error("Service error", "code", serviceErr.Code, "error", err)
			h.writeErrorResponse(w, serviceErr.StatusCode, serviceErr.Code, serviceErr.Message)
			return
		}
		h.writeErrorResponse(w, serviceErr.StatusCode, serviceErr.Code, serviceErr.Error())
		return
	}

	slog.Error("Unexpected service error", "error", err)
	h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
}

// retryAfterHeader converts milliseconds to whole seconds, rounding up, with
// a minimum of one.
func retryAfterHeader(ms int64) string {
	secs := (ms + 999) / 1000
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// getAPIKeyName safely extracts the API key name for logging
func getAPIKeyName(securityContext *SecurityContext) string {
	if securityContext == nil || securityContext.APIKey == nil {
		return "anonymous"
	}
	if securityContext.APIKey.Name != "" {
		return securityContext.APIKey.Name
	}
	return "unnamed-key"
}
