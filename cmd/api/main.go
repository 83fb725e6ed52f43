package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"journal-api/internal/config"
	"journal-api/internal/cors"
	"journal-api/internal/handlers"
	"journal-api/internal/server"
	"journal-api/pkg/logger"
)

func main() {
	configPath := getEnv("CONFIG_PATH", "configs/config.yaml")

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		Fields: map[string]string{
			"service":     "journal-api",
			"environment": os.Getenv("ENV"),
			"version":     handlers.Version,
		},
	})

	// A bad policy is a startup failure
	registry, err := cors.NewRegistry(cfg.Cors)
	if err != nil {
		log.Fatal("Invalid CORS configuration",
			logger.Error(err),
			logger.String("config_file", configPath))
	}

	log.Info("CORS configured",
		logger.Bool("enabled", registry.Enabled()),
		logger.Int("mappings", len(registry.Policies())))

	srv := server.NewServer(cfg, registry, log)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Server failed", logger.Error(err))
		}
	}()

	log.Info("Journal API is running", logger.String("address", cfg.Server.Address))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		log.Fatal("Server forced to shutdown", logger.Error(err))
	}

	log.Info("Journal API has been shutdown gracefully")
}

// getEnv retrieves environment variable or returns the provided default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Convert to absolute path if not already
	if !filepath.IsAbs(value) {
		if absPath, err := filepath.Abs(value); err == nil {
			return absPath
		}
	}

	return value
}
