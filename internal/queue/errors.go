package queue

import (
	"errors"

	"github.com/k8ika0s/envelope-queue/internal/kv"
)

var (
	// ErrTooLarge rejects a submission with a field or body over its limit.
	ErrTooLarge = errors.New("queue: submission too large")
	// ErrMissingFields rejects a submission without operation, id or body.
	ErrMissingFields = errors.New("queue: missing fields")
	// ErrWriteFailed wraps any store failure on the enqueue or retry path.
	ErrWriteFailed = errors.New("queue: store write failed")
	// ErrKeyCollision means the derived key already held an envelope.
	ErrKeyCollision = errors.New("queue: key already exists")
	// ErrNotFound is the normal outcome of reading a key that was completed,
	// dropped or expired after it was enumerated.
	ErrNotFound = errors.New("queue: envelope not found")
	// ErrUnavailable is returned by every operation when the store could not
	// be reached at startup or was never configured.
	ErrUnavailable = kv.ErrUnavailable
)

// Status is the producer-facing result of a submission.
type Status string

const (
	StatusOK            Status = "OK"
	StatusMissingFields Status = "MISSING_FIELDS"
	StatusTooLarge      Status = "TOO_LARGE"
	StatusWriteFailed   Status = "WRITE_FAILED"
)

// StatusOf maps a Submit error to its submission status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrTooLarge):
		return StatusTooLarge
	case errors.Is(err, ErrMissingFields):
		return StatusMissingFields
	default:
		return StatusWriteFailed
	}
}
