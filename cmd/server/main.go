package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/curriculum-catalog-server/internal/api"
	"github.com/curriculum-catalog-server/internal/config"
	"github.com/curriculum-catalog-server/internal/logging"
	"github.com/curriculum-catalog-server/internal/setup"
)

func main() {
	configFile := flag.String("config", "", "path to a configuration file")
	flag.Parse()

	// Load configuration
	var (
		configManager *config.Manager
		err           error
	)
	if *configFile != "" {
		configManager, err = config.NewManagerFromFile(*configFile)
	} else {
		configManager, err = config.NewManager()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, closeLog, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer closeLog()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	components, err := setup.Build(ctx, cfg, logger, true)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize components")
	}
	defer components.Close()

	if cfg.Catalog.LoadOnStart {
		components.Catalog.Trigger()
	}
	go components.Catalog.Run(ctx)

	deps := api.Dependencies{
		Catalog: components.Catalog,
		Plans:   components.Plans,
		Checks:  components.Checks,
	}
	if components.Cache != nil {
		deps.Cache = components.Cache
	}
	server := api.NewServer(cfg, deps, logger)

	logger.WithField("source_url", cfg.Catalog.SourceURL).
		Infof("Starting curriculum catalog server on %s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}
