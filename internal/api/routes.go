package api

import (
	"log/slog"
	"net/http"

	"loginguard/internal/models"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health" &&
					r.URL.Path != "/metrics"
			}),
		))
	}
}

// WithRateLimiter adds request throttling middleware to the router.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(r *mux.Router) {
		r.Use(middleware)
	}
}

// WithLoginProxy serves handler for POST requests on path, outside the
// authenticated API.
func WithLoginProxy(path string, handler http.Handler) RouteOption {
	return func(router *mux.Router) {
		router.Handle(path, handler).Methods(http.MethodPost)
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	router.Use(recoveryMiddleware)
	router.Use(loggingMiddleware)

	for _, opt := range opts {
		opt(router)
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	readAPI := api.PathPrefix("").Subrouter()
	writeAPI := api.PathPrefix("").Subrouter()

	if config.Security.EnableAuth {
		ring := NewKeyRing(config.Security.APIKeys)

		readAPI.Use(authMiddleware(ring))
		readAPI.Use(RequirePermission(PermissionRead))

		writeAPI.Use(authMiddleware(ring))
		writeAPI.Use(RequirePermission(PermissionWrite))
	}

	readAPI.HandleFunc("/identifiers/{identifier}", handlers.GetStatus).Methods("GET")
	readAPI.HandleFunc("/stats", handlers.GetStats).Methods("GET")
	readAPI.HandleFunc("/blocks", handlers.ListBlocks).Methods("GET")

	writeAPI.HandleFunc("/attempts", handlers.RecordAttempt).Methods("POST")
	writeAPI.HandleFunc("/identifiers/{identifier}", handlers.ResetIdentifier).Methods("DELETE")

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMiddlewareError(w, http.StatusNotFound, "Resource not found", models.ErrorCodeNotFound)
	})

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeMiddlewareError(w, http.StatusMethodNotAllowed, "Method not allowed", models.ErrorCodeInvalidRequest)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"duration", m.Duration,
			"remote_addr", r.RemoteAddr)
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("Panic recovered", "error", err, "path", r.URL.Path)
				writeMiddlewareError(w, http.StatusInternalServerError, "Internal server error", models.ErrorCodeInternalError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
