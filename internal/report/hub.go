package report

import (
	"context"
	"sync"
)

// Hub broadcasts events to live subscribers. Subscribers register for one
// operation or, with an empty operation, for everything. A subscriber that
// cannot keep up misses events rather than slowing the queue.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel of events for operation and a cancel func that
// unregisters and closes it.
func (h *Hub) Subscribe(operation string) (<-chan Event, func()) {
	ch := make(chan Event, 256)
	h.mu.Lock()
	if h.subs[operation] == nil {
		h.subs[operation] = make(map[chan Event]struct{})
	}
	h.subs[operation][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.subs[operation]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subs, operation)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Report publishes evt to matching subscribers. Envelope copies are not
// streamed.
func (h *Hub) Report(_ context.Context, evt Event) error {
	evt.Envelope = nil
	h.mu.RLock()
	defer h.mu.RUnlock()
	publish(h.subs[""], evt)
	if evt.Operation != "" {
		publish(h.subs[evt.Operation], evt)
	}
	return nil
}

// Subscribers counts registered channels.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}

func publish(subs map[chan Event]struct{}, evt Event) {
	for ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
