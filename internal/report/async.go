package report

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxEnvelopeBytes caps the envelope copies an Async holds in its
// buffer at once.
const DefaultMaxEnvelopeBytes = 64 << 20

// Async decouples a reporter from the caller. Events are buffered on a
// channel and delivered by one goroutine; when the buffer is full the event
// is dropped and counted instead of blocking. Envelope copies carried by
// dropped events are bounded separately: past maxBytes the event is still
// queued, without its envelope.
type Async struct {
	next     Reporter
	logger   *slog.Logger
	timeout  time.Duration
	maxBytes int64
	ch       chan Event

	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	dropped  atomic.Int64
	stripped atomic.Int64
	pending  atomic.Int64
}

// NewAsync starts the delivery goroutine. Call Close to flush and stop it.
// A maxBytes of zero selects DefaultMaxEnvelopeBytes.
func NewAsync(next Reporter, buffer int, maxBytes int64, logger *slog.Logger) *Async {
	if buffer <= 0 {
		buffer = 1024
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxEnvelopeBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:     next,
		logger:   logger,
		timeout:  5 * time.Second,
		maxBytes: maxBytes,
		ch:       make(chan Event, buffer),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Report(_ context.Context, evt Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return nil
	}
	size := int64(len(evt.Envelope))
	if size > 0 && a.pending.Add(size) > a.maxBytes {
		a.pending.Add(-size)
		evt.Envelope = nil
		size = 0
		a.stripped.Add(1)
		a.logger.Warn("envelope copy not buffered", "key", evt.Key, "kind", evt.Kind)
	}
	select {
	case a.ch <- evt:
	default:
		a.pending.Add(-size)
		a.dropped.Add(1)
	}
	return nil
}

// Dropped returns how many events were discarded because the buffer was full
// or the reporter was closed.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Stripped returns how many events were delivered without their envelope
// because the buffered envelope bytes were over the limit.
func (a *Async) Stripped() int64 { return a.stripped.Load() }

// Close stops accepting events and waits until buffered ones are delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for evt := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Report(ctx, evt); err != nil {
			a.logger.Warn("report event", "kind", evt.Kind, "key", evt.Key, "err", err)
		}
		cancel()
		a.pending.Add(-int64(len(evt.Envelope)))
	}
}
