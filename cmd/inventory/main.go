package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/syntrixbase/inventory/internal/config"
	"github.com/syntrixbase/inventory/internal/logging"
	"github.com/syntrixbase/inventory/internal/services"
)

func main() {
	configDir := flag.String("config", "config", "Configuration directory")
	runIndexer := flag.Bool("indexer", false, "Consume change events")
	runServer := flag.Bool("server", false, "Serve the admin API")
	reindex := flag.Bool("reindex", false, "Run a full reindex; alone, exit when it finishes")
	restart := flag.Bool("restart", false, "With --reindex, discard an interrupted run instead of resuming it")
	flag.Parse()

	// Default to running everything long-lived when nothing is selected.
	if !*runIndexer && !*runServer && !*reindex {
		*runIndexer = true
		*runServer = true
	}

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Shutdown()

	slog.Info("Starting inventory indexer",
		"mode", cfg.Deployment.Mode,
		"indexer", *runIndexer,
		"server", *runServer,
		"reindex", *reindex,
	)

	mgr := services.NewManager(cfg, services.Options{
		RunIndexer:     *runIndexer,
		RunServer:      *runServer,
		Reindex:        *reindex,
		RestartReindex: *restart,
	}, slog.Default())

	if err := run(mgr, cfg, !*runIndexer && !*runServer); err != nil {
		slog.Error("Inventory indexer failed", "error", err)
		logging.Shutdown()
		os.Exit(1)
	}
	slog.Info("All services stopped")
}

func run(mgr *services.Manager, cfg *config.Config, oneShot bool) error {
	bgCtx, bgCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer bgCancel()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		mgr.Shutdown(ctx)
	}

	initCtx, initCancel := context.WithTimeout(bgCtx, 30*time.Second)
	defer initCancel()
	if err := mgr.Init(initCtx); err != nil {
		shutdown()
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := mgr.Start(bgCtx); err != nil {
		shutdown()
		return err
	}
	if !oneShot {
		<-bgCtx.Done()
		slog.Info("Shutting down services...")
	}

	// Cancel background tasks first
	bgCancel()
	shutdown()
	return nil
}
