// Package router configures the foresight ops endpoints.
//
// Routes configured:
//   - GET /healthz - liveness, always 200 OK
//   - GET /readyz  - 200 OK while the coordinator runs, 503 otherwise
//   - GET /metrics - Prometheus metrics
package router

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/foresight/pkg/httpx"
)

// SetupRoutes returns the ops handler. ready reports whether the service can
// take traffic; metrics are served from gatherer.
func SetupRoutes(ready func() error, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /readyz", httpx.HealthHandlerWithCheck(ready))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))
}
