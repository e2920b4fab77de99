package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the loginguard Prometheus registry on a separate port.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics HTTP server exposing the provider's
// registry at path. Scrapes of the endpoint are themselves counted in that
// registry. A provider without metrics serves only 404s.
func NewMetricsServer(port int, path string, provider *Provider) *MetricsServer {
	mux := http.NewServeMux()

	if provider != nil && provider.registry != nil {
		handler := promhttp.HandlerFor(provider.registry, promhttp.HandlerOpts{
			Registry:          provider.registry,
			EnableOpenMetrics: true,
			ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		})
		mux.Handle(path, promhttp.InstrumentMetricHandler(provider.registry, handler))
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
}

// Start begins serving metrics in a blocking call.
// Returns http.ErrServerClosed on graceful shutdown.
func (ms *MetricsServer) Start() error {
	slog.Info("Starting metrics server", "addr", ms.server.Addr)
	return ms.server.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
