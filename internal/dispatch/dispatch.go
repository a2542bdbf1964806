// Package dispatch drains pending envelopes to HTTP workers. Each envelope
// is posted to one worker picked round-robin; a 2xx answer completes it and
// anything else counts as a failed attempt.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/k8ika0s/envelope-queue/internal/claim"
	"github.com/k8ika0s/envelope-queue/internal/kv"
	"github.com/k8ika0s/envelope-queue/internal/queue"
)

// Queue is the consumer side of the queue.
type Queue interface {
	Namespace() string
	ListPending(ctx context.Context, operation string) ([]queue.Key, error)
	Read(ctx context.Context, key queue.Key) (queue.Envelope, error)
	Succeed(ctx context.Context, key queue.Key) error
	Fail(ctx context.Context, key queue.Key, env queue.Envelope) (queue.Outcome, error)
}

// Options configures a Dispatcher.
type Options struct {
	// Operation limits draining to one operation; empty drains all of them.
	Operation    string
	URLs         []string
	Token        string
	PollInterval time.Duration
	Timeout      time.Duration
	Concurrency  int
	// Claimer, when set, makes concurrent dispatchers skip keys another
	// dispatcher is already working on.
	Claimer *claim.Claimer
	Owner   string
	Client  *http.Client
	Logger  *slog.Logger
}

// Result counts what one drain pass did with each listed key.
type Result struct {
	Listed    int
	Succeeded int
	Requeued  int
	Dropped   int
	Skipped   int
	Errors    int
}

// Dispatcher polls the queue and hands envelopes to workers.
type Dispatcher struct {
	q       Queue
	counter kv.Store
	opts    Options
	running atomic.Bool
}

// New builds a dispatcher. counter backs the round-robin worker selection
// and is normally the queue's own store.
func New(q Queue, counter kv.Store, opts Options) (*Dispatcher, error) {
	if len(opts.URLs) == 0 {
		return nil, errors.New("dispatch: at least one worker URL is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Owner == "" {
		opts.Owner = defaultOwner()
	}
	return &Dispatcher{q: q, counter: counter, opts: opts}, nil
}

// Run drains every poll interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	log := d.opts.Logger
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		res, ran, err := d.Drain(ctx)
		switch {
		case err != nil:
			log.Error("dispatch loop", "err", err)
		case !ran:
			log.Debug("dispatch loop: skip (drain already running)")
		case res.Listed > 0:
			log.Info("dispatch pass",
				"listed", res.Listed,
				"succeeded", res.Succeeded,
				"requeued", res.Requeued,
				"dropped", res.Dropped,
				"skipped", res.Skipped,
				"errors", res.Errors,
			)
		}
		timer.Reset(d.opts.PollInterval)
	}
}

// Drain makes one pass over the pending keys. It reports ran=false without
// doing anything if another Drain is in progress.
func (d *Dispatcher) Drain(ctx context.Context) (Result, bool, error) {
	if !d.running.CompareAndSwap(false, true) {
		return Result{}, false, nil
	}
	defer d.running.Store(false)

	keys, err := d.q.ListPending(ctx, d.opts.Operation)
	if err != nil {
		return Result{}, true, fmt.Errorf("list pending: %w", err)
	}

	var succeeded, requeued, dropped, skipped, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(d.opts.Concurrency)
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		key := key
		g.Go(func() error {
			st, err := d.dispatch(ctx, key)
			if err != nil {
				d.opts.Logger.Warn("dispatch", "key", key, "err", err)
				failed.Add(1)
				return nil
			}
			switch st {
			case stateSucceeded:
				succeeded.Add(1)
			case stateRequeued:
				requeued.Add(1)
			case stateDropped:
				dropped.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return Result{
		Listed:    len(keys),
		Succeeded: int(succeeded.Load()),
		Requeued:  int(requeued.Load()),
		Dropped:   int(dropped.Load()),
		Skipped:   int(skipped.Load()),
		Errors:    int(failed.Load()),
	}, true, nil
}

type state int

const (
	stateSkipped state = iota
	stateSucceeded
	stateRequeued
	stateDropped
)

func (d *Dispatcher) dispatch(ctx context.Context, key queue.Key) (state, error) {
	if d.opts.Claimer != nil {
		ok, err := d.opts.Claimer.Claim(ctx, key, d.opts.Owner)
		if err != nil {
			return stateSkipped, err
		}
		if !ok {
			return stateSkipped, nil
		}
		defer func() {
			released, err := d.opts.Claimer.Release(context.WithoutCancel(ctx), key, d.opts.Owner)
			switch {
			case err != nil:
				d.opts.Logger.Warn("release claim", "key", key, "err", err)
			case !released:
				d.opts.Logger.Warn("claim expired before release", "key", key, "owner", d.opts.Owner)
			}
		}()
	}

	env, err := d.q.Read(ctx, key)
	if errors.Is(err, queue.ErrNotFound) {
		return stateSkipped, nil
	}
	if err != nil {
		return stateSkipped, err
	}

	op, _, _ := key.Parts(d.q.Namespace())
	url, err := d.pick(ctx, op)
	if err != nil {
		return stateSkipped, err
	}

	if deliverErr := d.deliver(ctx, url, key, op, env); deliverErr != nil {
		if ctx.Err() != nil {
			// shutting down; leave the envelope untouched for the next run
			return stateSkipped, nil
		}
		d.opts.Logger.Info("worker rejected envelope", "key", key, "worker", url, "try", env.Try+1, "err", deliverErr)
		outcome, err := d.q.Fail(ctx, key, env)
		if err != nil {
			return stateSkipped, err
		}
		switch outcome {
		case queue.OutcomeRequeued:
			return stateRequeued, nil
		case queue.OutcomeDropped:
			return stateDropped, nil
		default:
			return stateSkipped, nil
		}
	}
	if err := d.q.Succeed(ctx, key); err != nil {
		return stateSkipped, err
	}
	return stateSucceeded, nil
}

// pick chooses a worker URL round-robin using a per-operation store counter,
// so dispatchers sharing a store share the rotation.
func (d *Dispatcher) pick(ctx context.Context, operation string) (string, error) {
	if len(d.opts.URLs) == 1 {
		return d.opts.URLs[0], nil
	}
	n, err := d.counter.Incr(ctx, CounterKey(d.q.Namespace(), operation))
	if err != nil {
		return "", fmt.Errorf("worker rotation: %w", err)
	}
	idx := (n - 1) % int64(len(d.opts.URLs))
	if idx < 0 {
		idx += int64(len(d.opts.URLs))
	}
	return d.opts.URLs[idx], nil
}

func defaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "dispatcher"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// CounterKey is the rotation counter for operation. It sits outside the
// "<ns>_" key space, so listings never see it and PurgeAll leaves it alone.
func CounterKey(namespace, operation string) string {
	return namespace + ":dispatch:" + operation
}
