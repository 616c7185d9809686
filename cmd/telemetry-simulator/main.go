package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilij/rocket-telemetry-ai/internal/simulator"
	"go.uber.org/zap"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "telemetryd base URL")
	assetID := flag.String("asset", "rocket-1", "asset identifier to report readings for")
	interval := flag.Duration("interval", 18*time.Second, "spacing between telemetry batches")
	count := flag.Int("count", 0, "number of batches to send (0 = run until interrupted)")
	anomalyRate := flag.Float64("anomaly-rate", 0.1, "probability per batch of injecting a faulted reading")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	config := simulator.DefaultConfig()
	config.ServerURL = *serverURL
	config.AssetID = *assetID
	config.Interval = *interval
	config.Count = *count
	config.AnomalyRate = *anomalyRate

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	sim := simulator.New(config, logger)
	if err := sim.Run(ctx); err != nil {
		logger.Fatal("simulator error", zap.Error(err))
	}

	logger.Info("telemetry simulator stopped")
}
