package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/acme/emergency-call-relay/internal/api"
	"github.com/acme/emergency-call-relay/internal/api/handlers"
	"github.com/acme/emergency-call-relay/internal/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file (optional)")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())

	lg := container.Logger
	lg.Info("container built", zap.String("config", *configPath), zap.Bool("provider_configured", container.Calls.Configured()))

	handlerSet := handlers.NewHandlerSet(container.Calls, lg, container.HealthChecks())
	server := api.NewServer(container.Config.HTTP, handlerSet, container.Registry)

	lg.Info("relay listening", zap.Int("port", container.Config.HTTP.Port))
	if err := server.Start(ctx); err != nil {
		lg.Error("server terminated", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("relay stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
