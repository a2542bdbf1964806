package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/k8ika0s/envelope-queue/internal/queue"
)

// WorkerRequest is the JSON body posted to a worker.
type WorkerRequest struct {
	Key       string `json:"key"`
	Operation string `json:"operation"`
	queue.Envelope
}

func (d *Dispatcher) deliver(ctx context.Context, workerURL string, key queue.Key, operation string, env queue.Envelope) error {
	body, err := json.Marshal(WorkerRequest{Key: string(key), Operation: operation, Envelope: env})
	if err != nil {
		return err
	}
	u, err := url.Parse(workerURL)
	if err != nil {
		return fmt.Errorf("worker url: %w", err)
	}
	q := u.Query()
	q.Set("key", string(key))
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.opts.Token != "" {
		req.Header.Set("X-Worker-Token", d.opts.Token)
	}
	resp, err := d.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s status %s", u.Redacted(), resp.Status)
	}
	return nil
}
