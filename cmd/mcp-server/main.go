package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/curriculum-catalog-server/internal/config"
	"github.com/curriculum-catalog-server/internal/logging"
	"github.com/curriculum-catalog-server/internal/mcp"
	"github.com/curriculum-catalog-server/internal/setup"
)

func main() {
	configFile := flag.String("config", "", "path to a configuration file")
	noPlans := flag.Bool("no-plans", false, "do not open lesson plan storage or register its tools")
	flag.Parse()

	// stdout carries the protocol; standard log output must stay off it.
	log.SetOutput(os.Stderr)

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

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	logger, closeLog, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	components, err := setup.Build(ctx, cfg, logger, !*noPlans)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize components")
	}
	defer components.Close()

	if cfg.Catalog.LoadOnStart {
		components.Catalog.Trigger()
	}
	go components.Catalog.Run(ctx)

	mcpServer, err := mcp.NewServer(cfg.MCP, components.Catalog, components.Plans, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}

	if err := mcpServer.Start(ctx); err != nil {
		logger.WithError(err).Error("MCP server stopped with error")
		return
	}

	logger.Info("Curriculum catalog MCP server stopped")
}
