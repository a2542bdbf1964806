package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/k8ika0s/envelope-queue/internal/kv"
	"github.com/k8ika0s/envelope-queue/internal/report"
)

// Outcome is the state an envelope reached after Fail.
type Outcome int

const (
	// OutcomeRequeued: rewritten with an incremented try count and fresh TTL.
	OutcomeRequeued Outcome = iota + 1
	// OutcomeDropped: the retry ceiling was reached and the key was deleted.
	OutcomeDropped
	// OutcomeVanished: the key was already gone, nothing was written.
	OutcomeVanished
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRequeued:
		return "requeued"
	case OutcomeDropped:
		return "dropped"
	case OutcomeVanished:
		return "vanished"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText parses a name written by MarshalText.
func (o *Outcome) UnmarshalText(b []byte) error {
	for _, c := range []Outcome{OutcomeRequeued, OutcomeDropped, OutcomeVanished} {
		if c.String() == string(b) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("queue: unknown outcome %q", b)
}

// Read loads the envelope at key. ErrNotFound means the key completed or
// expired after it was listed; callers should skip it.
func (q *Queue) Read(ctx context.Context, key Key) (Envelope, error) {
	if err := q.ensure(); err != nil {
		return Envelope{}, err
	}
	data, err := q.store.Get(ctx, string(key))
	if errors.Is(err, kv.ErrNotFound) {
		return Envelope{}, ErrNotFound
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("get %s: %w", key, err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return env, nil
}

// Succeed deletes key. Deleting an absent key is not an error.
func (q *Queue) Succeed(ctx context.Context, key Key) error {
	if err := q.ensure(); err != nil {
		return err
	}
	if _, err := q.store.Del(ctx, string(key)); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	op, seq, _ := key.Parts(q.opts.Namespace)
	q.emit(ctx, report.Event{Kind: report.KindSucceeded, Key: string(key), Operation: op, Sequence: seq})
	return nil
}

// Fail records a failed processing attempt of env, which was read from key.
// Once the incremented try count reaches the retry ceiling the key is
// deleted and OutcomeDropped is returned with a nil error. Otherwise the
// envelope is rewritten in place, keeping id, from, body and date, with the
// retention TTL restarted. The rewrite only lands if the key still exists.
func (q *Queue) Fail(ctx context.Context, key Key, env Envelope) (Outcome, error) {
	if err := q.ensure(); err != nil {
		return 0, err
	}
	op, seq, _ := key.Parts(q.opts.Namespace)
	env.Try++
	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("%w: encode envelope: %w", ErrWriteFailed, err)
	}

	if env.Try >= q.opts.MaxRetries {
		if _, err := q.store.Del(ctx, string(key)); err != nil {
			return 0, fmt.Errorf("del %s: %w", key, err)
		}
		q.emit(ctx, report.Event{Kind: report.KindDropped, Key: string(key), Operation: op, Sequence: seq, ID: env.ID, Try: env.Try, Envelope: data})
		return OutcomeDropped, nil
	}

	ok, err := q.store.Set(ctx, string(key), data, q.ttl(), kv.WriteIfPresent)
	if err != nil {
		return 0, fmt.Errorf("%w: set %s: %w", ErrWriteFailed, key, err)
	}
	if !ok {
		return OutcomeVanished, nil
	}
	q.emit(ctx, report.Event{Kind: report.KindRequeued, Key: string(key), Operation: op, Sequence: seq, ID: env.ID, Try: env.Try})
	return OutcomeRequeued, nil
}

// PurgeAll deletes every key in the namespace and resets the sequence
// counter. It is not transactional; re-running it after a partial failure
// finishes the job. It returns the number of keys the store actually
// removed, so keys a scan returned twice are counted once.
func (q *Queue) PurgeAll(ctx context.Context) (int, error) {
	if err := q.ensure(); err != nil {
		return 0, err
	}
	deleted := 0
	err := q.scan(ctx, namespacePattern(q.opts.Namespace), q.opts.ScanBatchAll, func(keys []string) error {
		n, err := q.store.Del(ctx, keys...)
		if err != nil {
			return fmt.Errorf("del batch: %w", err)
		}
		deleted += int(n)
		return nil
	})
	if err != nil {
		return deleted, err
	}
	if err := q.seq.Reset(ctx); err != nil {
		return deleted, fmt.Errorf("reset counter: %w", err)
	}
	q.emit(ctx, report.Event{Kind: report.KindPurged, Count: deleted})
	return deleted, nil
}
