package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/k8ika0s/envelope-queue/internal/app"
	"github.com/k8ika0s/envelope-queue/internal/config"
	"github.com/k8ika0s/envelope-queue/internal/server"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := app.NewLogger(cfg, os.Stderr)
	a := app.New(ctx, cfg, logger)
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "err", err)
		}
	}()

	// An unreachable store keeps the API up; /api/health reports it and
	// every queue call answers with the unavailable error.
	svc := server.New(cfg, a.Queue, a.Events, logger)
	if err := svc.Start(ctx); err != nil {
		logger.Error("server exited", "err", err)
		stop()
		_ = a.Close()
		os.Exit(1)
	}
}
