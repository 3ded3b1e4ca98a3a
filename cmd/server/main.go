package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/soeminnminn/run-js/internal/infrastructure/config"
	"github.com/soeminnminn/run-js/internal/infrastructure/logging"
	"github.com/soeminnminn/run-js/internal/infrastructure/server"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "YAML or TOML config file (overrides "+config.FileEnv+")")
	port := flag.String("port", "", "Server port")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	if *configPath != "" {
		os.Setenv(config.FileEnv, *configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully")
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}
}
