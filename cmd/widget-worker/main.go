package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/tilestats/internal/cache"
	"github.com/mohammed-shakir/tilestats/internal/core/config"
	"github.com/mohammed-shakir/tilestats/internal/core/server"
	"github.com/mohammed-shakir/tilestats/internal/extract"
	"github.com/mohammed-shakir/tilestats/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/tilestats/internal/logger"
	"github.com/mohammed-shakir/tilestats/internal/metrics"
	"github.com/mohammed-shakir/tilestats/internal/worker"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// overriding listen address via flag
	addrFlag := flag.String("addr", "", "listen address")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "widget-worker",
	}, os.Stdout)

	appLog := logger.NewSlog(&zl)
	appLog.Info("starting widget worker",
		"addr", cfg.Addr,
		"version", Version,
		"result_cache", cfg.Cache.Driver,
		"invalidation", cfg.Invalidation.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov, err := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:  Version,
			Revision: os.Getenv("BUILD_REVISION"),
		},
	})
	if err != nil {
		appLog.Error("metrics setup failed", "err", err)
		return 1
	}

	results, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		appLog.Error("result cache setup failed", "err", err, "driver", cfg.Cache.Driver)
		return 1
	}
	defer func() { _ = results.Close() }()

	d := worker.NewDispatcher(worker.NewRegistry(),
		worker.WithLogger(appLog),
		worker.WithCache(results),
		worker.WithExtractor(extract.New(
			extract.WithLogger(appLog),
			extract.WithCellCacheSize(cfg.CellCacheSize),
		)),
		worker.WithParallelism(cfg.ExtractParallelism),
		worker.WithUniqueIDProperty(cfg.UniqueIDProperty),
		worker.WithViewDefaults(cfg.TileSize, cfg.AggregationResLevel),
	)
	exec := worker.NewDefaultExecutor(d)
	defer exec.Close()
	appLog.Info("executor ready", "background", exec.Background())

	if cfg.Invalidation.Enabled && strings.EqualFold(cfg.Invalidation.Driver, "kafka") {
		kc := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Invalidation), appLog, d)
		go func() {
			if err := kc.Start(ctx); err != nil {
				appLog.Error("invalidation consumer stopped", "err", err)
			}
		}()
	}

	var metricsHandler http.Handler
	if prov.Enabled() {
		if cfg.Metrics.Addr != "" && cfg.Metrics.Addr != cfg.Addr {
			go serveMetrics(ctx, appLog, cfg.Metrics, prov.Handler())
		} else {
			metricsHandler = prov.Handler()
		}
	}

	if err := server.Run(ctx, cfg, appLog, exec, metricsHandler); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func serveMetrics(ctx context.Context, log *slog.Logger, mc config.MetricsCfg, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(mc.Path, h)

	srv := &http.Server{
		Addr:              mc.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics shutdown error", "err", err)
		}
	}()

	log.Info("metrics listening", "addr", mc.Addr, "path", mc.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server exited", "err", err)
	}
}
