package queue

import (
	"context"

	"github.com/k8ika0s/envelope-queue/internal/kv"
)

// Sequencer issues process-wide, strictly increasing sequence numbers from a
// single counter key. Atomicity is delegated to the store's increment; values
// are never cached or predicted locally.
type Sequencer struct {
	store kv.Store
	key   string
}

// NewSequencer returns a sequencer backed by the counter at key.
func NewSequencer(store kv.Store, key string) *Sequencer {
	return &Sequencer{store: store, key: key}
}

// Next consumes one sequence number.
func (s *Sequencer) Next(ctx context.Context) (int64, error) {
	if s.store == nil {
		return 0, ErrUnavailable
	}
	return s.store.Incr(ctx, s.key)
}

// Reset sets the counter back to 0 so that the next call to Next returns 1.
// It does not coordinate with enqueues in flight.
func (s *Sequencer) Reset(ctx context.Context) error {
	if s.store == nil {
		return ErrUnavailable
	}
	_, err := s.store.Set(ctx, s.key, []byte("0"), kv.NoExpiry, kv.WriteAlways)
	return err
}
