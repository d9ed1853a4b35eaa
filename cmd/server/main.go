package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/scenicrun/scenic/internal/browser"
	"github.com/scenicrun/scenic/internal/cache"
	"github.com/scenicrun/scenic/internal/config"
	"github.com/scenicrun/scenic/internal/logging"
	"github.com/scenicrun/scenic/internal/monitoring"
	"github.com/scenicrun/scenic/internal/pool"
	"github.com/scenicrun/scenic/internal/results"
	"github.com/scenicrun/scenic/internal/sandbox"
	"github.com/scenicrun/scenic/internal/server"
)

func main() {
	cfg := config.LoadOrDefault()

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	metrics := monitoring.NewMetrics(nil)

	profile, err := browser.LoadProfile(cfg.Browser.ProfilePath)
	if err != nil {
		logger.Warn("falling back to built-in browser profile", zap.Error(err))
	}

	var store *cache.Store
	if cfg.Cache.Persistence {
		store, err = cache.NewStore(afero.NewOsFs(), cfg.Cache.Dir, cfg.Cache.MaxFileBytes, logger)
		if err != nil {
			logger.Fatal("failed to open cache snapshot dir", zap.Error(err))
		}
	}
	resultCache := cache.New(cache.Config{
		DefaultTTL:    cfg.Cache.DefaultTTL,
		MaxSize:       cfg.Cache.MaxSize,
		SweepInterval: cfg.Cache.SweepInterval,
		Store:         store,
	}, logger).WithMetrics(metrics)

	sessionPool := pool.New(
		browser.RemoteFactory(cfg.Browser.RemoteURL),
		pool.Config{
			IdleLimit:     cfg.Pool.IdleLimit,
			SweepInterval: cfg.Pool.SweepInterval,
			MaxRetries:    cfg.Pool.MaxRetries,
			BackoffBase:   cfg.Pool.BackoffBase,
			MaxBackoff:    cfg.Pool.MaxBackoff,
			Defaults:      profile,
		},
		logger,
	).WithMetrics(metrics)
	sessionPool.Init()

	sb := sandbox.New(sandbox.Config{
		DefaultTimeout:   cfg.Sandbox.DefaultTimeout,
		MaxConcurrent:    cfg.Sandbox.MaxConcurrent,
		RecordingEnabled: cfg.Sandbox.RecordingEnabled,
		RecordingGrace:   cfg.Sandbox.RecordingGrace,
	}, logger).WithCache(resultCache).WithMetrics(metrics)
	if cfg.Sandbox.RecordingEnabled && cfg.Sandbox.RecorderURL != "" {
		sb = sb.WithRecorder(sandbox.NewHTTPRecorder(cfg.Sandbox.RecorderURL, logger))
	}

	resultStore := results.NewStore()
	srv := server.New(sessionPool, sb, resultCache, resultStore, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Run(cfg.Server.Host + ":" + cfg.Server.Port); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Close(ctx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	sessionPool.Shutdown(ctx)
	if err := resultCache.Close(); err != nil {
		logger.Warn("cache close failed", zap.Error(err))
	}
}
