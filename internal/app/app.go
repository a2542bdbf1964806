// Package app assembles the queue and its reporters from configuration.
package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/k8ika0s/envelope-queue/internal/config"
	"github.com/k8ika0s/envelope-queue/internal/kv"
	"github.com/k8ika0s/envelope-queue/internal/objectstore"
	"github.com/k8ika0s/envelope-queue/internal/queue"
	"github.com/k8ika0s/envelope-queue/internal/report"
)

// App owns the long-lived resources shared by the binaries.
type App struct {
	Config config.Config
	Logger *slog.Logger
	Store  *kv.RedisStore
	Queue  *queue.Queue
	// Events fans lifecycle events out to /api/events subscribers.
	Events *report.Hub
	// StoreErr is set when the store could not be reached at startup. The
	// queue is still built; every operation returns queue.ErrUnavailable.
	StoreErr error

	async   *report.Async
	closers []io.Closer
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel)))
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// New connects the store and the optional sinks. Optional sinks that fail to
// initialize are logged and skipped.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = NewLogger(cfg, os.Stderr)
	}
	a := &App{Config: cfg, Logger: logger, Events: report.NewHub()}

	a.Store = kv.NewRedisStore(cfg.RedisURL, time.Duration(cfg.RedisDialTimeoutSec)*time.Second)
	if err := a.Store.Connect(ctx); err != nil {
		a.StoreErr = err
		logger.Error("store unavailable", "err", err)
	}

	sinks := report.Multi{report.LogReporter{Logger: logger}, a.Events}
	sinks = append(sinks, a.optionalSinks(ctx)...)
	a.async = report.NewAsync(sinks, 0, 0, logger)

	a.Queue = queue.New(a.Store, queue.Options{
		Namespace:    cfg.Namespace,
		CounterKey:   cfg.CounterKey,
		Retention:    cfg.Retention(),
		MaxPayload:   cfg.MaxPayloadBytes,
		MaxRetries:   cfg.MaxRetries,
		ScanBatch:    int64(cfg.ScanBatch),
		ScanBatchAll: int64(cfg.ScanBatchAll),
		Reporter:     a.async,
	})
	return a
}

func (a *App) optionalSinks(ctx context.Context) []report.Reporter {
	cfg, log := a.Config, a.Logger
	var sinks []report.Reporter

	if cfg.KafkaBrokers != "" {
		k, err := report.NewKafkaReporter(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Warn("kafka reporter disabled", "err", err)
		} else {
			sinks = append(sinks, k)
			a.closers = append(a.closers, k)
		}
	}

	if cfg.PostgresDSN != "" {
		j, err := report.OpenJournal(cfg.PostgresDSN)
		if err == nil {
			err = j.Migrate(ctx)
			if err != nil {
				_ = j.Close()
			}
		}
		if err != nil {
			log.Warn("event journal disabled", "err", err)
		} else {
			sinks = append(sinks, j)
			a.closers = append(a.closers, j)
		}
	}

	if oc := cfg.ObjectStore; oc.Endpoint != "" {
		s, err := objectstore.NewMinIOStore(ctx, objectstore.Options{
			Endpoint:  oc.Endpoint,
			AccessKey: oc.AccessKey,
			SecretKey: oc.SecretKey,
			Bucket:    oc.Bucket,
			Region:    oc.Region,
			UseSSL:    oc.UseSSL,
			BasePath:  oc.Prefix,
		})
		if err != nil {
			log.Warn("dropped-envelope archive disabled", "err", err)
		} else {
			sinks = append(sinks, report.ArchiveReporter{Store: s})
		}
	}
	return sinks
}

// Close flushes pending events, then closes sinks and the store.
func (a *App) Close() error {
	if a.async != nil {
		a.async.Close()
		if n := a.async.Dropped(); n > 0 {
			a.Logger.Warn("events dropped on full buffer", "count", n)
		}
		if n := a.async.Stripped(); n > 0 {
			a.Logger.Warn("envelope copies not archived", "count", n)
		}
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
