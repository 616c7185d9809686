package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nikhilij/rocket-telemetry-ai/internal/config"
	"github.com/nikhilij/rocket-telemetry-ai/internal/detect"
	"github.com/nikhilij/rocket-telemetry-ai/internal/event"
	"github.com/nikhilij/rocket-telemetry-ai/internal/feed"
	"github.com/nikhilij/rocket-telemetry-ai/internal/ingest"
	"github.com/nikhilij/rocket-telemetry-ai/internal/mcp"
	"github.com/nikhilij/rocket-telemetry-ai/internal/mqtt"
	"github.com/nikhilij/rocket-telemetry-ai/internal/notify"
	"github.com/nikhilij/rocket-telemetry-ai/internal/registry"
	"github.com/nikhilij/rocket-telemetry-ai/internal/seed"
	"github.com/nikhilij/rocket-telemetry-ai/internal/server"
	"github.com/nikhilij/rocket-telemetry-ai/internal/store"
	"github.com/nikhilij/rocket-telemetry-ai/internal/version"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
	"go.uber.org/zap"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	// Initialize logger from configuration.
	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("telemetryd starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	// Open database
	dbPath := viperCfg.GetString("storage.path")
	if dbPath == "" {
		dbPath = "telemetry.db"
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logger.Fatal("failed to create data directory", zap.Error(err))
		}
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	// Refuse to open a database written by a newer release.
	if err := db.CheckVersion(context.Background(), version.Short()); err != nil {
		logger.Fatal("schema version check failed", zap.Error(err))
	}

	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Create shared services
	bus := event.NewBus(logger.Named("event"))
	logger.Info("event bus created", zap.String("component", "event"))

	// Create module registry
	reg := registry.New(logger.Named("registry"))
	logger.Info("module registry created", zap.String("component", "registry"))

	// Register all modules (compile-time composition). Each module can be
	// switched off with modules.<name>.enabled; disabling a module that a
	// required module depends on fails validation below.
	modules := []plugin.Plugin{
		ingest.New(),
		detect.New(),
		feed.New(),
		notify.New(),
		mqtt.New(),
		mcp.New(),
		seed.New(),
	}
	for _, m := range modules {
		name := m.Info().Name
		if !viperCfg.GetBool("modules." + name + ".enabled") {
			logger.Info("module disabled by configuration",
				zap.String("component", "registry"),
				zap.String("module", name),
			)
			continue
		}
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register module", zap.Error(err))
		}
	}

	// Validate dependency graph and API versions
	if err := reg.Validate(); err != nil {
		logger.Fatal("module validation failed", zap.Error(err))
	}

	// Initialize all modules with dependencies
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		moduleCfg := cfg.Sub("modules." + name)
		return plugin.Dependencies{
			Config:  moduleCfg,
			Logger:  logger.Named(name),
			Store:   db,
			Bus:     bus,
			Plugins: reg,
		}
	}); err != nil {
		logger.Fatal("failed to initialize modules", zap.Error(err))
	}

	// Start modules
	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start modules", zap.Error(err))
	}

	// Create and start HTTP server
	addr := viperCfg.GetString("server.listen")
	if addr == "" {
		addr = ":8080"
	}
	readOnly := viperCfg.GetBool("server.read_only")
	logger.Info("HTTP server configured",
		zap.String("component", "server"),
		zap.String("addr", addr),
		zap.Bool("read_only", readOnly),
	)
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	})
	srv := server.New(addr, reg, logger, readyCheck, readOnly,
		viperCfg.GetFloat64("server.rate_limit.rps"),
		viperCfg.GetInt("server.rate_limit.burst"),
	)

	// Start server in background
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("telemetryd ready", zap.String("addr", addr))

	// Print human-readable banner for users watching docker logs.
	port := "8080"
	if _, p, err := net.SplitHostPort(addr); err == nil && p != "" {
		port = p
	}
	fmt.Fprintf(os.Stderr, "\n  telemetryd %s is ready!\n  Ingest telemetry at http://localhost:%s/api/v1/ingest\n\n", version.Short(), port)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	reg.StopAll(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("telemetryd stopped")
}
