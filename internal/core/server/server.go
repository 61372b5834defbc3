package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/tilestats/internal/core/config"
	"github.com/mohammed-shakir/tilestats/internal/core/health"
	middleware "github.com/mohammed-shakir/tilestats/internal/core/middleware"
	"github.com/mohammed-shakir/tilestats/internal/core/router"
)

// Engine is what the HTTP surface needs from the worker.
type Engine interface {
	router.Engine
	health.ReadinessReporter
}

// Handler builds the routing tree. metrics may be nil.
func Handler(cfg config.Config, logger *slog.Logger, eng Engine, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(eng))
	if metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, metrics)
	}
	router.Mount(r, logger, cfg, eng)
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, eng Engine, metrics http.Handler) error {
	writeTimeout := 60 * time.Second
	if cfg.CallTimeout+5*time.Second > writeTimeout {
		writeTimeout = cfg.CallTimeout + 5*time.Second
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(cfg, logger, eng, metrics),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
