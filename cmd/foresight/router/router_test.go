package router

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/foresight/pkg/metrics"
)

func setup(t *testing.T, ready func() error) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordPoint()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return SetupRoutes(ready, reg, logger)
}

func TestHealthEndpoint(t *testing.T) {
	h := setup(t, func() error { return errors.New("stopped") })

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != "OK" {
		t.Errorf("body = %q, want %q", body, "OK")
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		ready    func() error
		wantCode int
	}{
		{"running", func() error { return nil }, http.StatusOK},
		{"not running", func() error { return errors.New("coordinator not running") }, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setup(t, tt.ready)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := setup(t, func() error { return nil })

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "foresight_points_ingested_total 1") {
		t.Error("metrics output missing foresight_points_ingested_total")
	}
}

func TestUnknownRoute(t *testing.T) {
	h := setup(t, func() error { return nil })

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast/current", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusNotFound)
	}
}
