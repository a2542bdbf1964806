// Package kv adapts a remote key-value store to the handful of primitives
// the envelope queue is built on: atomic increment, expiring writes,
// point reads, cursor scans and deletes.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key does not exist or has expired.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable is returned by every operation of a store that was never
	// configured or failed its startup connection check.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// WriteMode selects the condition under which Set writes.
type WriteMode int

const (
	// WriteAlways overwrites unconditionally.
	WriteAlways WriteMode = iota
	// WriteIfAbsent writes only when the key does not exist (SET NX).
	WriteIfAbsent
	// WriteIfPresent writes only when the key already exists (SET XX).
	WriteIfPresent
)

// NoExpiry disables the TTL on a write.
const NoExpiry time.Duration = 0

// Store is the set of primitives consumed by the queue.
type Store interface {
	// Incr atomically increments the integer at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Set stores value at key with the given ttl. The bool reports whether the
	// write happened; it is only false for conditional modes.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, mode WriteMode) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Scan performs one batch of a cursor scan. A returned cursor of 0 ends
	// the iteration. Keys may repeat across batches.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	// Del removes keys and returns how many existed. Absent keys are not an
	// error.
	Del(ctx context.Context, keys ...string) (int64, error)
	// DelIfEqual removes key only while it still holds value, atomically.
	DelIfEqual(ctx context.Context, key string, value []byte) (bool, error)
	Ping(ctx context.Context) error
}
