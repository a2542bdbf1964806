// Package claim adds optional per-envelope mutual exclusion on top of the
// queue. A consumer that wins Claim owns the key until it releases the claim
// or the claim TTL runs out. Consumers that skip claiming are unaffected.
package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/k8ika0s/envelope-queue/internal/kv"
	"github.com/k8ika0s/envelope-queue/internal/queue"
)

// Suffix is appended to a queue key to form its claim marker. Markers live
// in the queue namespace, so PurgeAll removes them, and they never parse as
// queue keys, so ListPending skips them.
const Suffix = ":claimed"

// DefaultTTL bounds how long a crashed consumer can hold a key. The TTL must
// outlast the longest processing attempt, otherwise a slow holder loses the
// key to another consumer while still working on it.
const DefaultTTL = time.Minute

// Claimer sets and clears claim markers.
type Claimer struct {
	store kv.Store
	ttl   time.Duration
}

// New returns a claimer writing markers with ttl.
func New(store kv.Store, ttl time.Duration) *Claimer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Claimer{store: store, ttl: ttl}
}

// MarkerKey returns the claim marker for key.
func MarkerKey(key queue.Key) string { return string(key) + Suffix }

// Claim tries to take key for owner. It returns false if someone else holds it.
func (c *Claimer) Claim(ctx context.Context, key queue.Key, owner string) (bool, error) {
	if c == nil || c.store == nil {
		return false, kv.ErrUnavailable
	}
	ok, err := c.store.Set(ctx, MarkerKey(key), []byte(owner), c.ttl, kv.WriteIfAbsent)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Owner reports who holds key, or "" if nobody does.
func (c *Claimer) Owner(ctx context.Context, key queue.Key) (string, error) {
	if c == nil || c.store == nil {
		return "", kv.ErrUnavailable
	}
	val, err := c.store.Get(ctx, MarkerKey(key))
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// Release drops the marker for key if owner still holds it. It reports false
// when the claim had expired, and possibly been taken by someone else, so the
// other holder's marker is left in place.
func (c *Claimer) Release(ctx context.Context, key queue.Key, owner string) (bool, error) {
	if c == nil || c.store == nil {
		return false, kv.ErrUnavailable
	}
	ok, err := c.store.DelIfEqual(ctx, MarkerKey(key), []byte(owner))
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return ok, nil
}
