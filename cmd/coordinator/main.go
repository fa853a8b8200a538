package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatmesh/server/internal/config"
	"github.com/chatmesh/server/internal/coordinator"
	"github.com/chatmesh/server/internal/tracing"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on environment variables")
	}

	cfg, err := config.ValidateCoordinatorEnv()
	if err != nil {
		slog.Error("invalid coordinator configuration", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
	}

	srv, err := coordinator.NewServer(cfg, redisClient)
	if err != nil {
		slog.Error("failed to construct coordinator server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracer(ctx, tracing.RoleCoordinator, cfg.TracingCollectorAddr)
	if err != nil {
		slog.Warn("tracing disabled: failed to initialize tracer provider", "error", err)
	}
	defer tracing.Shutdown(context.Background(), tp)

	if err := srv.Run(ctx); err != nil {
		slog.Error("coordinator exited with error", "error", err)
		os.Exit(1)
	}
}
