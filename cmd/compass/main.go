// Compass - Strategic opportunity scoring and simulation engine.
// Copyright (c) 2026 StrategicHQ
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/strategichq/compass/internal/api"
	"github.com/strategichq/compass/internal/bus"
	"github.com/strategichq/compass/internal/cache"
	"github.com/strategichq/compass/internal/config"
	"github.com/strategichq/compass/internal/domain"
	"github.com/strategichq/compass/internal/metrics"
	"github.com/strategichq/compass/internal/repository"
	"github.com/strategichq/compass/internal/scoring"
	"github.com/strategichq/compass/internal/sensitivity"
	"github.com/strategichq/compass/internal/simulation"
	"github.com/strategichq/compass/internal/worker"
)

// Set via ldflags at release build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("COMPASS_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting compass",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	store, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize results store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("results store initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// The scorer compiles the full formula catalog up front.
	scorer, err := scoring.NewFactorScorer(cfg.Scoring)
	if err != nil {
		slog.Error("failed to initialize factor scorer", "error", err)
		os.Exit(1)
	}
	slog.Info("factor scorer initialized", "factors", len(scoring.FactorSpecs()))

	simulator := simulation.NewSimulator(cfg.Simulation)
	slog.Info("simulator initialized",
		"iterations", cfg.Simulation.Iterations,
		"spread", cfg.Simulation.Spread,
	)

	metricsManager := metrics.NewManager()

	engine := worker.NewEngine(store, cacheImpl, busImpl, scorer, simulator, cfg.Scoring, metricsManager)
	if err := engine.Start(); err != nil {
		slog.Error("failed to start worker engine", "error", err)
		os.Exit(1)
	}
	slog.Info("worker engine started")

	analyzer := sensitivity.NewAnalyzer(engine.Baselines(), engine)
	slog.Info("sensitivity analyzer initialized")

	srv := api.NewServer(cfg.Server, store, cacheImpl, busImpl, engine, analyzer, metricsManager, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("compass is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop worker engine first so in-flight runs drain
	if err := engine.Stop(); err != nil {
		slog.Error("failed to stop worker engine", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("compass shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                  COMPASS")
	fmt.Println("      Strategic Scoring & Simulation Engine")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /sessions/{id}/score        - Queue a scoring run")
	fmt.Println("    POST /sessions/{id}/simulate     - Queue a Monte Carlo run")
	fmt.Println("    POST /sessions/{id}/sensitivity  - What-if driver adjustment")
	fmt.Println("    GET  /sessions/{id}/results      - Full session results")
	fmt.Println("    GET  /sessions/{id}/export       - Export report (json/csv/xlsx)")
	fmt.Println("    GET  /health                     - Health check")
	fmt.Println("    GET  /metrics                    - Prometheus metrics")
	fmt.Println()
}
