package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/tilestats/internal/core/config"
	"github.com/mohammed-shakir/tilestats/internal/worker"
)

func TestHandler_HealthAndMetrics(t *testing.T) {
	ex := worker.NewExecutor(worker.NewDispatcher(worker.NewRegistry()), false)
	defer ex.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Handler(config.Config{Metrics: config.MetricsCfg{Path: "/metrics"}}, logger, ex, promhttp.Handler())

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s: missing X-Request-ID", path)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `http_requests_total{method="GET",route="/healthz",status="200"}`) {
		t.Fatalf("request metrics missing:\n%s", rr.Body.String())
	}
}

func TestHandler_ReadyzAfterClose(t *testing.T) {
	ex := worker.NewExecutor(worker.NewDispatcher(worker.NewRegistry()), false)
	ex.Close()
	h := Handler(config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)), ex, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}
}

func TestHandler_RecoversPanics(t *testing.T) {
	ex := worker.NewExecutor(worker.NewDispatcher(worker.NewRegistry()), false)
	defer ex.Close()
	h := Handler(config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)), panicEngine{ex}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/datasets/x", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
}

type panicEngine struct{ *worker.Executor }

func (panicEngine) Drop(context.Context, string) error { panic("boom") }
