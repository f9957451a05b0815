package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/api"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/bundle"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/config"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/engine"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/inference"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/logging"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/metrics"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	cfgPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	bundleDir := flag.String("bundle-dir", "", "Model bundle directory (overrides bundle.dir)")
	flag.Parse()

	// ── Load config ──────────────────────────────────────────────────────────
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *bundleDir != "" {
		cfg.Bundle.Dir = *bundleDir
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	// ── Model bundle ──────────────────────────────────────────────────────────
	store := bundle.NewStore(cfg.Bundle.Dir, cfg.Training.Registry())
	svc := inference.New()
	if err := svc.Load(store); err != nil {
		// Keep serving: /health and /predict report the failed state.
		logger.Error("model bundle failed to load", "dir", cfg.Bundle.Dir, "err", err)
	} else {
		info, _ := svc.Model()
		metrics.ModelLoaded.Set(1)
		logger.Info("model bundle loaded", "version", info.Version, "model_type", info.ModelType, "auc", info.AUCScore)
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(ctx, svc, cfg.Engine)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	if cfg.Bundle.Watch && svc.Ready() {
		debounce := time.Duration(cfg.Bundle.DebounceMs) * time.Millisecond
		stopWatch, err := store.Watch(logger, debounce, func(b *bundle.Bundle) {
			if err := svc.Swap(b); err != nil {
				logger.Warn("hot-reload skipped: bundle rejected", "version", b.Metadata.Version, "err", err)
				metrics.BundleReloads.WithLabelValues("rejected").Inc()
				return
			}
			metrics.BundleReloads.WithLabelValues("success").Inc()
			logger.Info("model bundle hot-reloaded", "version", b.Metadata.Version)
		})
		if err != nil {
			logger.Warn("bundle watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopWatch()
		}
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(eng, svc, api.Options{Logger: logger, MaxBodyBytes: cfg.Server.MaxBodyBytes})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "model_state", svc.State().String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop worker pools
	eng.Shutdown()
	logger.Info("goodbye")
}
