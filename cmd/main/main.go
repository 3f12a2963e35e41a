package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"nft/seller/internal/config"
	"nft/seller/internal/container"

	log "github.com/sirupsen/logrus"
)

func main() {
	// Log to the default file until the configuration says otherwise, so a
	// configuration error is recorded too.
	logFile, err := setupLogging(config.DefaultLogConfig())
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer func() { logFile.Close() }()

	log.Info("Starting NFT seller...")

	// Load configuration using viper
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Log != config.DefaultLogConfig() {
		configured, err := setupLogging(cfg.Log)
		if err != nil {
			log.Fatalf("Failed to set up logging: %v", err)
		}
		logFile.Close()
		logFile = configured
	}
	log.Info("Configuration loaded successfully")

	// Initialize container with all dependencies
	app, err := container.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	// Run the application
	if err := app.Run(context.Background()); err != nil {
		app.Close()
		log.Fatalf("Application exited with error: %v", err)
	}
	app.Close()

	log.Info("Application finished successfully")
}

// setupLogging mirrors the log to the append-only log file.
func setupLogging(cfg config.LogConfig) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}
