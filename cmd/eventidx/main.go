package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventidx/eventidx/internal/config"
	"github.com/eventidx/eventidx/internal/logging"
	"github.com/eventidx/eventidx/internal/services"
)

func main() {
	configDir := flag.String("config", "config", "Configuration directory")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer func() { _ = logging.Shutdown() }()

	slog.Info("Starting eventidx...",
		"queue_backend", cfg.Queue.Backend,
		"migration", cfg.Migration.Enabled,
		"data_dir", cfg.DataDir,
	)

	// 2. Initialize Service Manager
	mgr := services.NewManager(cfg, services.Options{}, slog.Default())

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()
	if err := mgr.Init(initCtx); err != nil {
		slog.Error("Failed to initialize services", "error", err)
		mgr.Shutdown(context.Background())
		os.Exit(1)
	}

	// 3. Start Services
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if err := mgr.Start(bgCtx); err != nil {
		slog.Error("Failed to start services", "error", err)
		bgCancel()
		mgr.Shutdown(context.Background())
		os.Exit(1)
	}

	// 4. Wait for Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Cancel background tasks first so the consumers drain
	bgCancel()
	mgr.Shutdown(shutdownCtx)

	slog.Info("All services stopped.")
}
