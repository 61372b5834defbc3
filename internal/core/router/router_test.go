package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/tilestats/internal/core/config"
	"github.com/mohammed-shakir/tilestats/internal/worker"
)

const pointsSpec = `{
  "kind": "geo",
  "tiles": [{
    "id": "0/0/0",
    "isVisible": true,
    "geometries": {"points": {
      "positions": {"value": [1,1, 5,5, 20,20], "size": 2},
      "featureIds": [0,1,2],
      "columns": {"numericProps": [
        {"name": "cartodb_id", "value": [1,2,3]},
        {"name": "pop", "value": [10,20,30]}
      ]}
    }}
  }]
}`

func newTestServer(t *testing.T, cfg config.Config, eng Engine) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	Mount(r, logger, cfg, eng)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newExecutor(t *testing.T) *worker.Executor {
	t.Helper()
	ex := worker.NewExecutor(worker.NewDispatcher(worker.NewRegistry()), true)
	t.Cleanup(ex.Close)
	return ex
}

func post(t *testing.T, url, body string) (*http.Response, worker.Response) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out worker.Response
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp, out
}

func TestRoutes_InitCallDrop(t *testing.T) {
	srv := newTestServer(t, config.Config{CallTimeout: 5 * time.Second, MaxBodyBytes: 1 << 20}, newExecutor(t))

	resp, ir := post(t, srv.URL+"/v1/datasets/pts", pointsSpec)
	if resp.StatusCode != http.StatusOK || !ir.OK {
		t.Fatalf("init status=%d resp=%+v", resp.StatusCode, ir)
	}

	resp, out := post(t, srv.URL+"/v1/datasets/pts/calls/formula", `{"column":"pop","operation":"sum"}`)
	if resp.StatusCode != http.StatusOK || !out.OK || string(out.Result) != "60" {
		t.Fatalf("formula status=%d resp=%+v", resp.StatusCode, out)
	}

	resp, out = post(t, srv.URL+"/v1/calls",
		`{"datasetKey":"pts","requestId":"abc","method":"formula","params":{"column":"pop","operation":"count","viewport":{"west":0,"south":0,"east":6,"north":6}}}`)
	if resp.StatusCode != http.StatusOK || !out.OK || out.RequestID != "abc" || string(out.Result) != "2" {
		t.Fatalf("call status=%d resp=%+v", resp.StatusCode, out)
	}

	resp, _ = post(t, srv.URL+"/v1/datasets/pts/invalidate", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("invalidate status=%d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/datasets/pts", nil)
	dr, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	_ = dr.Body.Close()
	if dr.StatusCode != http.StatusNoContent {
		t.Fatalf("drop status=%d", dr.StatusCode)
	}

	_, out = post(t, srv.URL+"/v1/datasets/pts/calls/formula", `{"operation":"count"}`)
	if out.OK || !strings.Contains(out.Error, worker.ErrUnknownDataset.Error()) {
		t.Fatalf("dropped dataset must be unknown, got %+v", out)
	}
}

func TestRoutes_BadBody(t *testing.T) {
	srv := newTestServer(t, config.Config{MaxBodyBytes: 64}, newExecutor(t))

	resp, _ := post(t, srv.URL+"/v1/calls", `{"datasetKey":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status=%d want 400", resp.StatusCode)
	}

	resp, _ = post(t, srv.URL+"/v1/datasets/pts", pointsSpec)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body status=%d want 413", resp.StatusCode)
	}
}

type slowEngine struct{ Engine }

func (slowEngine) Do(ctx context.Context, _ worker.Request) (worker.Response, error) {
	<-ctx.Done()
	return worker.Response{}, ctx.Err()
}

func TestRoutes_CallTimeout(t *testing.T) {
	srv := newTestServer(t, config.Config{CallTimeout: 20 * time.Millisecond}, slowEngine{})

	resp, _ := post(t, srv.URL+"/v1/calls", `{"datasetKey":"pts","method":"formula"}`)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status=%d want 504", resp.StatusCode)
	}
}
