package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ObserveHTTP("POST", "/v1/calls", 200, 0.001)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestDomainMetrics_Labels(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Init(reg, true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(reg, true); err != nil {
		t.Fatalf("second Init must be a no-op: %v", err)
	}

	ObserveExtraction("h3", 3, 1, 42, 0.002)
	IncMalformedTile("h3")
	ObserveAggregation("groupBy", errors.New("boom"), 0.01)
	IncWorkerRequest("formula", "ok")

	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()

	for _, want := range []string{
		`extraction_tiles_total{kind="h3",outcome="kept"}`,
		`extraction_tiles_total{kind="h3",outcome="malformed"}`,
		`aggregation_duration_seconds_count{method="groupBy",result="error"}`,
		`worker_requests_total{method="formula",outcome="ok"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in:\n%s", want, body)
		}
	}
}

func TestInit_Disabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Init(reg, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(mfs) != 0 {
		t.Fatalf("disabled Init registered %d families", len(mfs))
	}
}
