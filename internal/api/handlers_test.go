package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k8ika0s/envelope-queue/internal/kv"
	"github.com/k8ika0s/envelope-queue/internal/queue"
)

func newTestServer(t *testing.T, opts queue.Options, token string) (*httptest.Server, *queue.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kv.NewRedisStore("redis://"+mr.Addr(), time.Second)
	require.NoError(t, store.Connect(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	if opts.Namespace == "" {
		opts.Namespace = "ns"
	}
	q := queue.New(store, opts)
	mux := http.NewServeMux()
	(&Handler{Queue: q, Token: token}).Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, q
}

func submit(t *testing.T, ts *httptest.Server, query, body string) (int, SubmitResponse) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/submit?"+query, "application/octet-stream", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestSubmitStatuses(t *testing.T) {
	ts, _ := newTestServer(t, queue.Options{MaxPayload: 8}, "")

	code, out := submit(t, ts, "op=insert&id=cust1&from=crm", "hello")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, SubmitResponse{Status: queue.StatusOK, Key: "ns_insert:1"}, out)

	code, out = submit(t, ts, "op=insert&id=cust1", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, queue.StatusMissingFields, out.Status)

	code, out = submit(t, ts, "op=insert&id=cust1", "far more than eight bytes")
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, queue.StatusTooLarge, out.Status)

	// one byte over passes the reader limit and is rejected by the queue
	code, out = submit(t, ts, "op=insert&id=cust1", "123456789")
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, queue.StatusTooLarge, out.Status)

	resp, err := http.Get(ts.URL + "/api/submit?op=insert&id=x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPendingAndOperations(t *testing.T) {
	ts, _ := newTestServer(t, queue.Options{}, "")
	for _, op := range []string{"insert", "update", "insert"} {
		code, _ := submit(t, ts, "op="+op+"&id=a", "x")
		require.Equal(t, http.StatusOK, code, op)
	}

	var keys []string
	getJSON(t, ts.URL+"/api/pending?op=insert", http.StatusOK, &keys)
	assert.Equal(t, []string{"ns_insert:1", "ns_insert:3"}, keys)

	var ops []string
	getJSON(t, ts.URL+"/api/operations", http.StatusOK, &ops)
	assert.Equal(t, []string{"insert", "update"}, ops)

	var stats queue.Stats
	getJSON(t, ts.URL+"/api/stats", http.StatusOK, &stats)
	assert.Equal(t, 3, stats.Length)
}

func TestEnvelopeLifecycle(t *testing.T) {
	ts, _ := newTestServer(t, queue.Options{MaxRetries: 2}, "")
	_, out := submit(t, ts, "op=insert&id=cust1&from=crm", "payload")

	var env EnvelopeResponse
	getJSON(t, ts.URL+"/api/envelope?key="+out.Key, http.StatusOK, &env)
	assert.Equal(t, "cust1", env.ID)
	assert.Equal(t, "crm", env.From)
	assert.Equal(t, "payload", string(env.Body))
	assert.Zero(t, env.Try)

	var outcome OutcomeResponse
	postJSON(t, ts.URL+"/api/envelope/fail?key="+out.Key, http.StatusOK, &outcome)
	assert.Equal(t, queue.OutcomeRequeued, outcome.Outcome)
	getJSON(t, ts.URL+"/api/envelope?key="+out.Key, http.StatusOK, &env)
	assert.Equal(t, 1, env.Try)

	postJSON(t, ts.URL+"/api/envelope/fail?key="+out.Key, http.StatusOK, &outcome)
	assert.Equal(t, queue.OutcomeDropped, outcome.Outcome)
	getJSON(t, ts.URL+"/api/envelope?key="+out.Key, http.StatusNotFound, nil)
	postJSON(t, ts.URL+"/api/envelope/fail?key="+out.Key, http.StatusNotFound, nil)

	_, out = submit(t, ts, "op=insert&id=cust2", "payload")
	postJSON(t, ts.URL+"/api/envelope/succeed?key="+out.Key, http.StatusOK, &outcome)
	getJSON(t, ts.URL+"/api/envelope?key="+out.Key, http.StatusNotFound, nil)

	postJSON(t, ts.URL+"/api/envelope/succeed", http.StatusBadRequest, nil)
}

func TestPurge(t *testing.T) {
	ts, q := newTestServer(t, queue.Options{}, "")
	submit(t, ts, "op=insert&id=a", "x")
	submit(t, ts, "op=update&id=b", "y")

	var res map[string]int
	postJSON(t, ts.URL+"/api/purge", http.StatusOK, &res)
	assert.Equal(t, 2, res["deleted"])
	keys, err := q.ListPending(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, out := submit(t, ts, "op=insert&id=a", "x")
	assert.Equal(t, "ns_insert:1", out.Key, "counter restarts after purge")
}

func TestTokenGuard(t *testing.T) {
	ts, _ := newTestServer(t, queue.Options{}, "s3cret")

	resp, err := http.Post(ts.URL+"/api/submit?op=insert&id=a", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/submit?op=insert&id=a", strings.NewReader("x"))
	require.NoError(t, err)
	req.Header.Set("X-Api-Token", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	getJSON(t, ts.URL+"/api/pending?token=s3cret", http.StatusOK, nil)
	getJSON(t, ts.URL+"/api/health", http.StatusOK, nil)
}

func TestUnavailableStore(t *testing.T) {
	q := queue.New(kv.NewRedisStore("", 0), queue.Options{})
	mux := http.NewServeMux()
	(&Handler{Queue: q}).Routes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	getJSON(t, ts.URL+"/api/health", http.StatusServiceUnavailable, nil)
	getJSON(t, ts.URL+"/api/pending", http.StatusServiceUnavailable, nil)

	resp, err := http.Post(ts.URL+"/api/submit?op=insert&id=a", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, queue.StatusWriteFailed, out.Status)
}

func getJSON(t *testing.T, url string, wantCode int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantCode, resp.StatusCode, "GET %s", url)
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
}

func postJSON(t *testing.T, url string, wantCode int, v any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantCode, resp.StatusCode, "POST %s", url)
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
}
