package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loginguard/internal/api"
	"loginguard/internal/audit"
	"loginguard/internal/config"
	"loginguard/internal/guard"
	"loginguard/internal/logger"
	"loginguard/internal/models"
	"loginguard/internal/observability"
	"loginguard/internal/ratelimit"
	"loginguard/internal/version"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
	generateKey   = flag.Bool("generate-key", false, "Generate an API key and its key_hash, then exit")
	exampleConfig = flag.String("write-example-config", "", "Write an example configuration file to the given path and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()

	switch {
	case *showVersion:
		fmt.Println(ver.String())
		return
	case *generateKey:
		if err := printNewKey(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	case *exampleConfig != "":
		if err := config.SaveExample(*exampleConfig); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize the audit journal
	store, err := initializeAudit(cfg)
	if err != nil {
		slog.Error("Failed to initialize audit store", "error", err, "type", cfg.Audit.Type)
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
	}

	var journal *audit.Journal
	if store != nil {
		journal = audit.NewJournal(store, cfg.Audit.BufferSize, cfg.Audit.WriteTimeout, log.With("component", "audit"))
		// Runs before store.Close so queued events are flushed.
		defer journal.Close()
	}

	var observers []ratelimit.Observer
	if journal != nil {
		observers = append(observers, journal)
	}
	if cfg.Metrics.Enabled {
		limiterMetrics, err := observability.NewMetrics()
		if err != nil {
			slog.Error("Failed to create limiter metrics", "error", err)
			os.Exit(1)
		}
		observers = append(observers, limiterMetrics)
	}

	// Initialize the login limiter
	policy := ratelimit.Config{
		MaxAttempts:   cfg.Limiter.MaxAttempts,
		Window:        cfg.Limiter.Window,
		BlockDuration: cfg.Limiter.BlockDuration,
	}
	memLimiter, err := ratelimit.NewMemoryLimiter(policy,
		ratelimit.WithShards(cfg.Limiter.Shards),
		ratelimit.WithLogger(log.With("component", "ratelimit")),
		ratelimit.WithObserver(ratelimit.Observers(observers...)),
	)
	if err != nil {
		slog.Error("Failed to initialize limiter", "error", err)
		os.Exit(1)
	}

	var limiter ratelimit.Limiter = memLimiter
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedLimiter(memLimiter)
		if err != nil {
			slog.Error("Failed to create instrumented limiter", "error", err)
			os.Exit(1)
		}
		limiter = instrumented
	}
	defer limiter.Close()

	slog.Info("Login limiter ready",
		"max_attempts", policy.MaxAttempts,
		"window", policy.Window,
		"block_duration", policy.EffectiveBlockDuration(),
		"audit", cfg.Audit.Enabled,
	)

	clientIPs, err := ratelimit.NewClientIPs(cfg.Security.TrustedProxies)
	if err != nil {
		slog.Error("Invalid trusted proxies", "error", err)
		os.Exit(1)
	}

	// Initialize the guard service and HTTP handlers
	guardService := guard.NewService(limiter, policy, store)
	handlers := api.NewHandlers(guardService,
		api.WithVersion(ver.Version),
		api.WithClientIPs(clientIPs),
	)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	if cfg.Security.Throttle.Enabled {
		tc := cfg.Security.Throttle
		throttle := ratelimit.NewThrottle(tc.RequestsPerMinute, tc.BurstSize, tc.CleanupInterval)
		defer throttle.Close()
		routeOpts = append(routeOpts, api.WithRateLimiter(ratelimit.ThrottleMiddleware(throttle, clientIPs)))
	}

	if cfg.LoginProxy.Enabled {
		loginProxy, err := api.NewLoginProxy(cfg.LoginProxy, limiter, clientIPs)
		if err != nil {
			slog.Error("Failed to create login proxy", "error", err)
			os.Exit(1)
		}
		routeOpts = append(routeOpts, api.WithLoginProxy(cfg.LoginProxy.Path, loginProxy))
		slog.Info("Login proxy enabled",
			"path", cfg.LoginProxy.Path,
			"upstream", cfg.LoginProxy.Upstream,
			"key_by", cfg.LoginProxy.KeyBy,
		)
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "auth", cfg.Security.EnableAuth)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Shutting down server", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("Server failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if journal != nil {
		slog.Info("Audit journal totals",
			"recorded", journal.Recorded(),
			"dropped", journal.Dropped(),
			"failed", journal.Failed(),
		)
	}

	slog.Info("Server shutdown complete")
}

// initializeAudit returns nil when the journal is disabled.
func initializeAudit(cfg *models.Config) (audit.Store, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}

	store, err := audit.NewStore(cfg.Audit)
	if err != nil {
		return nil, err
	}

	if !cfg.Metrics.Enabled && !cfg.Observability.Tracing.Enabled {
		return store, nil
	}

	instrumented, err := observability.NewInstrumentedStore(store, cfg.Audit.Type)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("instrument audit store: %w", err)
	}
	return instrumented, nil
}

func printNewKey() error {
	key, err := models.GenerateAPIKey()
	if err != nil {
		return err
	}
	fmt.Printf("key:      %s\n", key)
	fmt.Printf("key_hash: %s\n", models.HashAPIKey(key))
	fmt.Println("Store the key_hash under security.api_keys; the key itself is not recoverable.")
	return nil
}
