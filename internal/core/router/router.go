// Package router exposes the worker protocol over HTTP.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/tilestats/internal/core/config"
	mylog "github.com/mohammed-shakir/tilestats/internal/logger"
	"github.com/mohammed-shakir/tilestats/internal/worker"
)

// Engine serves dataset registration and method calls.
type Engine interface {
	Init(ctx context.Context, key string, spec worker.DatasetSpec) (worker.Response, error)
	Do(ctx context.Context, req worker.Request) (worker.Response, error)
	Invalidate(ctx context.Context, key string) error
	Drop(ctx context.Context, key string) error
}

var _ Engine = (*worker.Executor)(nil)

type api struct {
	log *slog.Logger
	cfg config.Config
	eng Engine
}

// Mount registers the /v1 routes on r.
func Mount(r chi.Router, logger *slog.Logger, cfg config.Config, eng Engine) {
	a := &api{log: logger, cfg: cfg, eng: eng}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/datasets/{key}", a.initDataset)
		r.Delete("/datasets/{key}", a.dropDataset)
		r.Post("/datasets/{key}/invalidate", a.invalidateDataset)
		r.Post("/datasets/{key}/calls/{method}", a.callMethod)
		r.Post("/calls", a.call)
	})
}

func (a *api) initDataset(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	var spec worker.DatasetSpec
	if !a.decodeBody(w, r, &spec) {
		return
	}
	ctx, cancel := a.callContext(r)
	defer cancel()

	resp, err := a.eng.Init(ctx, key, spec)
	a.respond(w, r, resp, err)
}

func (a *api) dropDataset(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Drop(r.Context(), chi.URLParam(r, "key")); err != nil {
		a.log.ErrorContext(r.Context(), "drop dataset failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) invalidateDataset(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Invalidate(r.Context(), chi.URLParam(r, "key")); err != nil {
		a.log.ErrorContext(r.Context(), "invalidate dataset failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// callMethod takes the method parameters as the request body.
func (a *api) callMethod(w http.ResponseWriter, r *http.Request) {
	var params json.RawMessage
	if !a.decodeBody(w, r, &params) {
		return
	}
	a.do(w, r, worker.Request{
		DatasetKey: chi.URLParam(r, "key"),
		Method:     worker.Method(chi.URLParam(r, "method")),
		Params:     params,
	})
}

func (a *api) call(w http.ResponseWriter, r *http.Request) {
	var req worker.Request
	if !a.decodeBody(w, r, &req) {
		return
	}
	a.do(w, r, req)
}

func (a *api) do(w http.ResponseWriter, r *http.Request, req worker.Request) {
	if req.RequestID == "" {
		req.RequestID = mylog.RequestID(r.Context())
	}
	ctx, cancel := a.callContext(r)
	defer cancel()

	resp, err := a.eng.Do(ctx, req)
	a.respond(w, r, resp, err)
}

func (a *api) callContext(r *http.Request) (context.Context, context.CancelFunc) {
	if a.cfg.CallTimeout > 0 {
		return context.WithTimeout(r.Context(), a.cfg.CallTimeout)
	}
	return context.WithCancel(r.Context())
}

// decodeBody reads a JSON body bounded by MaxBodyBytes. It writes the
// error response itself and reports whether decoding succeeded.
func (a *api) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body := io.Reader(r.Body)
	if a.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, a.cfg.MaxBodyBytes)
	}
	err := json.NewDecoder(body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		return false
	}
	http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
	return false
}

// respond writes protocol responses with status 200 whether or not the
// call succeeded; transport failures map to 5xx.
func (a *api) respond(w http.ResponseWriter, r *http.Request, resp worker.Response, err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "call timed out", http.StatusGatewayTimeout)
		return
	case errors.Is(err, context.Canceled):
		// client went away
		return
	case errors.Is(err, worker.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	default:
		a.log.ErrorContext(r.Context(), "call failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.log.WarnContext(r.Context(), "write response failed", "err", err)
	}
}
