// Package queue implements the envelope queue: a pull-based work queue whose
// entries are plain keys in a shared key-value namespace.
//
// Producers Submit payloads tagged with an operation. Each submission draws a
// process-wide sequence from an atomic counter and is stored at
// "<namespace>_<operation>:<sequence>" with a retention TTL. Consumers call
// ListPending to enumerate keys in sequence order, Read each envelope, and
// report the result with Succeed (delete) or Fail (retry rewrite, or delete
// once the retry ceiling is reached).
//
// There is no broker and no claim on read: two consumers may observe and
// process the same key. See package claim for an optional marker-based
// extension.
package queue

import (
	"context"
	"time"

	"github.com/k8ika0s/envelope-queue/internal/kv"
	"github.com/k8ika0s/envelope-queue/internal/report"
)

const (
	DefaultNamespace    = "UsagiMQ"
	DefaultCounterKey   = "counterUsagiMQ"
	DefaultRetention    = 14 * 24 * time.Hour
	DefaultMaxPayload   = 20 << 20
	DefaultMaxRetries   = 20
	DefaultScanBatch    = 1000
	DefaultScanBatchAll = 10000

	// MaxFieldLength bounds operation, id and from.
	MaxFieldLength = 1000
)

// Options tunes a Queue. Zero values select the defaults above.
type Options struct {
	Namespace  string
	CounterKey string
	// Retention is the TTL of every stored envelope. A negative value keeps
	// envelopes until they are deleted.
	Retention  time.Duration
	MaxPayload int
	MaxRetries int
	// ScanBatch is the batch hint for single-operation scans, ScanBatchAll
	// for scans over the whole namespace.
	ScanBatch    int64
	ScanBatchAll int64
	Reporter     report.Reporter
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.CounterKey == "" {
		o.CounterKey = DefaultCounterKey
	}
	if o.Retention == 0 {
		o.Retention = DefaultRetention
	}
	if o.MaxPayload <= 0 {
		o.MaxPayload = DefaultMaxPayload
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.ScanBatch <= 0 {
		o.ScanBatch = DefaultScanBatch
	}
	if o.ScanBatchAll <= 0 {
		o.ScanBatchAll = DefaultScanBatchAll
	}
	if o.Reporter == nil {
		o.Reporter = report.Nop{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Queue is safe for concurrent use; it holds no state besides its options.
type Queue struct {
	store kv.Store
	seq   *Sequencer
	opts  Options
}

// New builds a queue over store. A nil store yields a queue whose operations
// all return ErrUnavailable.
func New(store kv.Store, opts Options) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		store: store,
		seq:   NewSequencer(store, opts.CounterKey),
		opts:  opts,
	}
}

// Namespace returns the key prefix owned by the queue.
func (q *Queue) Namespace() string { return q.opts.Namespace }

// MaxPayload returns the body size limit.
func (q *Queue) MaxPayload() int { return q.opts.MaxPayload }

// Sequencer exposes the queue's counter.
func (q *Queue) Sequencer() *Sequencer { return q.seq }

// Ping checks the store.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.ensure(); err != nil {
		return err
	}
	return q.store.Ping(ctx)
}

func (q *Queue) ensure() error {
	if q == nil || q.store == nil {
		return ErrUnavailable
	}
	return nil
}

func (q *Queue) ttl() time.Duration {
	if q.opts.Retention < 0 {
		return kv.NoExpiry
	}
	return q.opts.Retention
}

// emit hands evt to the reporter. Reporter errors never reach the caller.
func (q *Queue) emit(ctx context.Context, evt report.Event) {
	evt.Namespace = q.opts.Namespace
	if evt.Time.IsZero() {
		evt.Time = q.opts.Now()
	}
	_ = q.opts.Reporter.Report(ctx, evt)
}
