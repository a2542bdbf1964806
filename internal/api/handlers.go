package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/k8ika0s/envelope-queue/internal/queue"
	"github.com/k8ika0s/envelope-queue/internal/report"
)

// Queue is the queue surface exposed over HTTP.
type Queue interface {
	Submit(ctx context.Context, operation, id, from string, body []byte) (queue.Key, error)
	ListPending(ctx context.Context, operation string) ([]queue.Key, error)
	Operations(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, operation string) (queue.Stats, error)
	Read(ctx context.Context, key queue.Key) (queue.Envelope, error)
	Succeed(ctx context.Context, key queue.Key) error
	Fail(ctx context.Context, key queue.Key, env queue.Envelope) (queue.Outcome, error)
	PurgeAll(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	MaxPayload() int
}

// Handler wires HTTP routes to the queue.
type Handler struct {
	Queue Queue
	// Events, when set, backs the /api/events stream.
	Events *report.Hub
	Token  string
	Logger *slog.Logger
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", h.health)
	mux.HandleFunc("/api/submit", h.guard(h.submit))
	mux.HandleFunc("/api/pending", h.guard(h.pending))
	mux.HandleFunc("/api/operations", h.guard(h.operations))
	mux.HandleFunc("/api/stats", h.guard(h.stats))
	mux.HandleFunc("/api/envelope", h.guard(h.envelope))
	mux.HandleFunc("/api/envelope/succeed", h.guard(h.succeed))
	mux.HandleFunc("/api/envelope/fail", h.guard(h.fail))
	mux.HandleFunc("/api/purge", h.guard(h.purge))
	if h.Events != nil {
		mux.HandleFunc("/api/events", h.guard(h.events))
	}
}

// SubmitResponse is the body returned by /api/submit.
type SubmitResponse struct {
	Status queue.Status `json:"status"`
	Key    string       `json:"key,omitempty"`
}

// EnvelopeResponse is an envelope together with its key.
type EnvelopeResponse struct {
	Key string `json:"key"`
	queue.Envelope
}

// OutcomeResponse reports the result of a lifecycle call.
type OutcomeResponse struct {
	Key     string        `json:"key"`
	Outcome queue.Outcome `json:"outcome,omitempty"`
	Detail  string        `json:"detail,omitempty"`
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.Token != "" {
			tok := r.Header.Get("X-Api-Token")
			if tok == "" {
				tok = r.URL.Query().Get("token")
			}
			if tok != h.Token {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
				return
			}
		}
		next(w, r)
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.Queue.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// submit accepts the raw payload as the request body and operation, id and
// from as query parameters.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	q := r.URL.Query()
	op, id, from := q.Get("op"), q.Get("id"), q.Get("from")

	limit := int64(h.Queue.MaxPayload()) + 1
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, SubmitResponse{Status: queue.StatusTooLarge})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}

	key, err := h.Queue.Submit(r.Context(), op, id, from, body)
	status := queue.StatusOf(err)
	switch status {
	case queue.StatusOK:
		writeJSON(w, http.StatusOK, SubmitResponse{Status: status, Key: string(key)})
	case queue.StatusTooLarge:
		writeJSON(w, http.StatusRequestEntityTooLarge, SubmitResponse{Status: status})
	case queue.StatusMissingFields:
		writeJSON(w, http.StatusBadRequest, SubmitResponse{Status: status})
	default:
		h.logger().Error("submit", "op", op, "err", err)
		writeJSON(w, storeErrorCode(err), SubmitResponse{Status: status})
	}
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	keys, err := h.Queue.ListPending(r.Context(), r.URL.Query().Get("op"))
	if err != nil {
		writeJSON(w, storeErrorCode(err), map[string]string{"error": err.Error()})
		return
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) operations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	ops, err := h.Queue.Operations(r.Context())
	if err != nil {
		writeJSON(w, storeErrorCode(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ops)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	stats, err := h.Queue.Stats(r.Context(), r.URL.Query().Get("op"))
	if err != nil {
		writeJSON(w, storeErrorCode(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) envelope(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	env, err := h.Queue.Read(r.Context(), key)
	if err != nil {
		writeJSON(w, storeErrorCode(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, EnvelopeResponse{Key: string(key), Envelope: env})
}

func (h *Handler) succeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	if err := h.Queue.Succeed(r.Context(), key); err != nil {
		writeJSON(w, storeErrorCode(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, OutcomeResponse{Key: string(key), Detail: "deleted"})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	env, err := h.Queue.Read(r.Context(), key)
	if err != nil {
		writeJSON(w, storeErrorCode(err), map[string]string{"error": err.Error()})
		return
	}
	outcome, err := h.Queue.Fail(r.Context(), key, env)
	if err != nil {
		writeJSON(w, storeErrorCode(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, OutcomeResponse{Key: string(key), Outcome: outcome})
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	n, err := h.Queue.PurgeAll(r.Context())
	if err != nil {
		h.logger().Error("purge", "deleted", n, "err", err)
		writeJSON(w, storeErrorCode(err), map[string]any{"error": err.Error(), "deleted": n})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// events streams lifecycle events as server-sent events until the client
// goes away.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	ch, cancel := h.Events.Subscribe(r.URL.Query().Get("op"))
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func keyParam(w http.ResponseWriter, r *http.Request) (queue.Key, bool) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key required"})
		return "", false
	}
	return queue.Key(key), true
}

func storeErrorCode(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
