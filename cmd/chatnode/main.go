package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatmesh/server/internal/chatnode"
	"github.com/chatmesh/server/internal/config"
	"github.com/chatmesh/server/internal/tracing"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on environment variables")
	}

	cfg, err := config.ValidateChatNodeEnv()
	if err != nil {
		slog.Error("invalid chat node configuration", "error", err)
		os.Exit(1)
	}

	srv, err := chatnode.NewServer(cfg)
	if err != nil {
		slog.Error("failed to construct chat node server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracer(ctx, tracing.RoleChatNode, cfg.TracingCollectorAddr)
	if err != nil {
		slog.Warn("tracing disabled: failed to initialize tracer provider", "error", err)
	}
	defer tracing.Shutdown(context.Background(), tp)

	if err := srv.Run(ctx); err != nil {
		slog.Error("chat node exited with error", "error", err)
		os.Exit(1)
	}
}
