// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/go-tankwars/pkg/config"
	"github.com/opd-ai/go-tankwars/pkg/engine"
	"github.com/opd-ai/go-tankwars/pkg/health"
	"github.com/opd-ai/go-tankwars/pkg/logging"
	"github.com/opd-ai/go-tankwars/pkg/network"
	"github.com/opd-ai/go-tankwars/pkg/replay"
)

const (
	shutdownTimeout = 30 * time.Second
	maxTickStall    = 2 * time.Second
	maxHeapMB       = 500
)

func main() {
	logger := logging.NewLogger()
	ctx := context.Background()

	configPath := flag.String("config", "", "Path to a JSON configuration file")
	createDefault := flag.String("default", "", "Write the default configuration to this path and exit")
	flag.Parse()

	if *createDefault != "" {
		if err := config.Save(config.DefaultConfig(), *createDefault); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err, "config_path", *createDefault)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file", "config_path", *createDefault)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error(ctx, "Failed to load configuration", err, "config_path", *configPath)
		os.Exit(1)
	}
	if level, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error(ctx, "Server exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.GameConfig, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthChecker := health.NewHealthChecker()
	healthChecker.AddCheck(health.NewMemoryHealthCheck(maxHeapMB, nil))

	var journals engine.JournalFactory
	if cfg.Replay.Enabled {
		store, err := replay.Open(cfg.Replay.Path,
			replay.WithLogger(logger),
			replay.WithBreaker(cfg.Replay.BreakerFailures, cfg.Replay.BreakerTimeout),
		)
		if err != nil {
			return logging.WrapError(err, "opening replay store %s", cfg.Replay.Path)
		}
		defer store.Close()
		journals = store.JournalFactory()
		healthChecker.AddCheck(health.NewReplayHealthCheck(store))
	}

	metrics, err := engine.NewMetrics()
	if err != nil {
		return logging.WrapError(err, "registering metrics")
	}

	server := network.NewGameServer(cfg.Network, logger)
	runner := engine.NewRunner(server, journals, metrics, logger)

	match, err := runner.Create(cfg)
	if err != nil {
		return err
	}
	server.Attach(match)

	healthChecker.AddCheck(health.NewRunnerHealthCheck(runner, maxTickStall))
	healthChecker.AddCheck(health.NewNetworkHealthCheck(server.Addr))

	if err := server.Start(); err != nil {
		return err
	}

	healthServer := &http.Server{
		Addr:         cfg.Network.HealthAddress,
		Handler:      healthChecker.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx)
	})
	g.Go(func() error {
		logger.Info(gctx, "Starting health check server", "address", cfg.Network.HealthAddress)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return logging.WrapError(err, "health server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "Health check server shutdown failed", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	logger.Info(ctx, "Server running",
		"match_id", match.ID(),
		"map", cfg.Match.MapName,
		"address", server.Addr(),
		"replay", cfg.Replay.Enabled,
	)
	return g.Wait()
}
