// Package report carries queue lifecycle events to diagnostic sinks.
//
// Sinks are optional collaborators: a failing or slow sink must never fail
// or stall the queue operation that produced the event. Wrap blocking sinks
// in Async before handing them to the queue.
package report

import (
	"context"
	"encoding/json"
	"time"
)

// Kind names a lifecycle transition.
type Kind string

const (
	KindSubmitted Kind = "submitted"
	KindRejected  Kind = "rejected"
	KindSucceeded Kind = "succeeded"
	KindRequeued  Kind = "requeued"
	KindDropped   Kind = "dropped"
	KindPurged    Kind = "purged"
)

// Event describes one lifecycle transition of an envelope (or of the whole
// namespace, for purges).
type Event struct {
	Kind      Kind            `json:"kind"`
	Namespace string          `json:"namespace"`
	Key       string          `json:"key,omitempty"`
	Operation string          `json:"operation,omitempty"`
	Sequence  int64           `json:"sequence,omitempty"`
	ID        string          `json:"id,omitempty"`
	Try       int             `json:"try,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Count     int             `json:"count,omitempty"`
	Envelope  json.RawMessage `json:"envelope,omitempty"`
	Time      time.Time       `json:"time"`
}

// Reporter receives lifecycle events.
type Reporter interface {
	Report(ctx context.Context, evt Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Report(context.Context, Event) error { return nil }

// Func adapts a function to Reporter.
type Func func(ctx context.Context, evt Event) error

func (f Func) Report(ctx context.Context, evt Event) error { return f(ctx, evt) }
