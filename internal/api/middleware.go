package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"loginguard/internal/models"

	"github.com/gorilla/mux"
)

// Permission represents the different permission levels
type Permission string

const (
	PermissionRead  Permission = models.PermissionRead
	PermissionWrite Permission = models.PermissionWrite
	PermissionAdmin Permission = models.PermissionAdmin
)

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// KeyRing resolves bearer tokens against the API keys from configuration.
// Only SHA-256 hashes are held.
type KeyRing struct {
	keys []models.APIKey
}

// NewKeyRing copies keys into a ring.
func NewKeyRing(keys []models.APIKey) *KeyRing {
	ring := &KeyRing{keys: make([]models.APIKey, len(keys))}
	copy(ring.keys, keys)
	return ring
}

// Lookup returns the enabled key matching token. Every configured key is
// compared so lookup time does not depend on which key matched.
func (kr *KeyRing) Lookup(token string) (*models.APIKey, bool) {
	if kr == nil || token == "" {
		return nil, false
	}
	var found *models.APIKey
	for i := range kr.keys {
		if kr.keys[i].Matches(token) && found == nil {
			found = &kr.keys[i]
		}
	}
	if found == nil || !found.Enabled {
		return nil, false
	}
	return found, true
}

// SecurityContext represents the security information for a request
type SecurityContext struct {
	APIKey      *models.APIKey
	Permissions []string
}

// HasPermission checks if the security context has the required permission
func (sc *SecurityContext) HasPermission(required Permission) bool {
	if sc == nil || sc.APIKey == nil {
		return false
	}
	return sc.APIKey.HasPermission(string(required))
}

// GetSecurityContext extracts security context from request context
func GetSecurityContext(r *http.Request) *SecurityContext {
	if apiKey, ok := r.Context().Value(apiKeyContextKey).(*models.APIKey); ok {
		return &SecurityContext{
			APIKey:      apiKey,
			Permissions: apiKey.Permissions,
		}
	}
	return nil
}

// RequirePermission creates middleware that enforces a specific permission
func RequirePermission(required Permission) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			securityContext := GetSecurityContext(r)

			if securityContext == nil || !securityContext.HasPermission(required) {
				writeMiddlewareError(w, http.StatusForbidden,
					"Insufficient permissions for this operation", models.ErrorCodeForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// authMiddleware rejects requests without a valid bearer API key.
func authMiddleware(ring *KeyRing) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/api/v1/health" {
				next.ServeHTTP(w, r)
				return
			}
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeMiddlewareError(w, http.StatusUnauthorized, "Authorization required", models.ErrorCodeUnauthorized)
				return
			}
			token, ok := bearerToken(authHeader)
			if !ok {
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid authorization format", models.ErrorCodeUnauthorized)
				return
			}
			apiKey, ok := ring.Lookup(token)
			if !ok {
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid API key", models.ErrorCodeUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyContextKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth creates middleware that allows optional authentication.
// Used for endpoints that provide different data based on auth status.
// On any error, the request continues without authentication.
func OptionalAuth(ring *KeyRing) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			apiKey, ok := ring.Lookup(token)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(authHeader string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", false
	}
	token := strings.TrimSpace(authHeader[len(prefix):])
	return token, token != ""
}

func writeMiddlewareError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.NewErrorResponse(message, code))
}
