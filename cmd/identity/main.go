package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gosgconsulting/cms-identity/internal/infra/app"
	"github.com/gosgconsulting/cms-identity/internal/infra/config"
	"github.com/gosgconsulting/cms-identity/internal/infra/logger"
)

func main() {
	// Missing .env is fine; real deployments configure the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	log.Info("identity service started",
		zap.String("env", cfg.App.Env),
		zap.String("rate_limit_backend", cfg.RateLimit.Backend),
		zap.Bool("kafka_enabled", cfg.Kafka.Enabled),
	)

	if err := service.Run(ctx); err != nil {
		log.Fatal("service terminated", zap.Error(err))
	}

	log.Info("identity service stopped")
}
