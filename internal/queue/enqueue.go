package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/k8ika0s/envelope-queue/internal/kv"
	"github.com/k8ika0s/envelope-queue/internal/report"
)

// Submit validates and stores one envelope and returns its key.
//
// Size limits are checked before emptiness, and both before any store call,
// so a rejected submission has no side effects. An accepted submission
// consumes exactly one sequence number even if the write then fails. The
// write never overwrites an existing key: a collision (possible only after a
// PurgeAll raced with producers) fails with ErrKeyCollision.
func (q *Queue) Submit(ctx context.Context, operation, id, from string, body []byte) (Key, error) {
	if err := q.validate(operation, id, from, body); err != nil {
		q.emit(ctx, report.Event{Kind: report.KindRejected, Operation: truncate(operation), ID: truncate(id), Reason: string(StatusOf(err))})
		return "", err
	}
	if err := q.ensure(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	seq, err := q.seq.Next(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: next sequence: %w", ErrWriteFailed, err)
	}
	key := KeyFor(q.opts.Namespace, operation, seq)
	env := Envelope{
		ID:   id,
		From: from,
		Body: body,
		Date: q.opts.Now().Unix(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("%w: encode envelope: %w", ErrWriteFailed, err)
	}
	ok, err := q.store.Set(ctx, string(key), data, q.ttl(), kv.WriteIfAbsent)
	if err != nil {
		return "", fmt.Errorf("%w: set %s: %w", ErrWriteFailed, key, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: set %s: %w", ErrWriteFailed, key, ErrKeyCollision)
	}
	q.emit(ctx, report.Event{Kind: report.KindSubmitted, Key: string(key), Operation: operation, Sequence: seq, ID: id})
	return key, nil
}

func (q *Queue) validate(operation, id, from string, body []byte) error {
	if len(operation) > MaxFieldLength || len(id) > MaxFieldLength || len(from) > MaxFieldLength || len(body) > q.opts.MaxPayload {
		return ErrTooLarge
	}
	if operation == "" || id == "" || len(body) == 0 {
		return ErrMissingFields
	}
	return nil
}

// truncate keeps oversize fields out of diagnostic events.
func truncate(s string) string {
	const max = 64
	if len(s) > max {
		return s[:max]
	}
	return s
}
