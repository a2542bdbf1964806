package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/k8ika0s/envelope-queue/internal/app"
	"github.com/k8ika0s/envelope-queue/internal/claim"
	"github.com/k8ika0s/envelope-queue/internal/config"
	"github.com/k8ika0s/envelope-queue/internal/dispatch"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("worker exited: %v", err)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := app.NewLogger(cfg, os.Stderr)
	a := app.New(ctx, cfg, logger)
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "err", err)
		}
	}()
	if a.StoreErr != nil {
		return a.StoreErr
	}

	wc := cfg.Worker
	opts := dispatch.Options{
		Operation:    wc.Operation,
		URLs:         wc.URLs,
		Token:        wc.Token,
		PollInterval: time.Duration(wc.PollIntervalSec) * time.Second,
		Timeout:      time.Duration(wc.TimeoutSec) * time.Second,
		Concurrency:  wc.Concurrency,
		Logger:       logger,
	}
	if wc.Claim {
		opts.Claimer = claim.New(a.Store, time.Duration(cfg.ClaimTTLSec)*time.Second)
	}
	d, err := dispatch.New(a.Queue, a.Store, opts)
	if err != nil {
		return err
	}
	logger.Info("dispatcher started", "operation", wc.Operation, "workers", len(wc.URLs), "concurrency", wc.Concurrency)
	d.Run(ctx)
	return nil
}
