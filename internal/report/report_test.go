package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func droppedEvent() Event {
	return Event{
		Kind:      KindDropped,
		Namespace: "ns",
		Key:       "ns_insert:7",
		Operation: "insert",
		Sequence:  7,
		ID:        "cust1",
		Try:       20,
		Envelope:  json.RawMessage(`{"id":"cust1","from":"","body":"eA==","date":1,"try":20}`),
		Time:      testTime,
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	var calls int
	ok := Func(func(context.Context, Event) error { calls++; return nil })
	bad := Func(func(context.Context, Event) error { calls++; return errors.New("boom") })

	err := Multi{ok, nil, bad, ok}.Report(context.Background(), Event{Kind: KindSubmitted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 3, calls)
	assert.NoError(t, Multi{}.Report(context.Background(), Event{}))
}

func TestAsyncDeliversAndFlushesOnClose(t *testing.T) {
	var mu sync.Mutex
	var got []Kind
	a := NewAsync(Func(func(_ context.Context, evt Event) error {
		mu.Lock()
		got = append(got, evt.Kind)
		mu.Unlock()
		return errors.New("ignored")
	}), 8, 0, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	require.NoError(t, a.Report(context.Background(), Event{Kind: KindSubmitted}))
	require.NoError(t, a.Report(context.Background(), Event{Kind: KindSucceeded}))
	a.Close()
	a.Close()

	assert.Equal(t, []Kind{KindSubmitted, KindSucceeded}, got)
	require.NoError(t, a.Report(context.Background(), Event{Kind: KindPurged}))
	assert.Equal(t, int64(1), a.Dropped())
}

func TestAsyncNeverBlocksOnSlowSink(t *testing.T) {
	release := make(chan struct{})
	a := NewAsync(Func(func(context.Context, Event) error {
		<-release
		return nil
	}), 1, 0, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = a.Report(context.Background(), Event{Kind: KindSubmitted})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked on a stalled sink")
	}
	close(release)
	a.Close()
	assert.GreaterOrEqual(t, a.Dropped(), int64(8))
}

func TestAsyncBoundsBufferedEnvelopeBytes(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var sizes []int
	a := NewAsync(Func(func(_ context.Context, evt Event) error {
		<-release
		mu.Lock()
		sizes = append(sizes, len(evt.Envelope))
		mu.Unlock()
		return nil
	}), 8, 100, slog.New(slog.NewTextHandler(io.Discard, nil)))

	evt := droppedEvent()
	evt.Envelope = json.RawMessage(`"` + strings.Repeat("x", 60) + `"`)
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Report(context.Background(), evt))
	}
	close(release)
	a.Close()

	assert.Equal(t, []int{62, 0, 0}, sizes, "events past the byte limit lose only their envelope")
	assert.Equal(t, int64(2), a.Stripped())
	assert.Zero(t, a.Dropped())
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := LogReporter{Logger: slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	require.NoError(t, r.Report(context.Background(), droppedEvent()))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "dropped", line["kind"])
	assert.Equal(t, "ns_insert:7", line["key"])
	assert.EqualValues(t, 20, line["try"])
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaReporterPublishesJSON(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaReporter{writer: w}
	require.NoError(t, k.Report(context.Background(), droppedEvent()))
	require.NoError(t, k.Close())

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "insert", string(w.msgs[0].Key))
	var evt Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &evt))
	assert.Equal(t, KindDropped, evt.Kind)
	assert.Equal(t, int64(7), evt.Sequence)
	assert.True(t, w.closed)
}

func TestKafkaReporterOmitsEnvelope(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaReporter{writer: w}
	evt := droppedEvent()
	body := bytes.Repeat([]byte("x"), 900<<10)
	envelope, err := json.Marshal(map[string]any{"id": "cust1", "body": body, "try": 20})
	require.NoError(t, err)
	evt.Envelope = envelope

	require.NoError(t, k.Report(context.Background(), evt))
	require.Len(t, w.msgs, 1)
	assert.Less(t, len(w.msgs[0].Value), 1<<10)
	var got Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Empty(t, got.Envelope)
	assert.Equal(t, "ns_insert:7", got.Key)
	assert.Equal(t, 20, got.Try)
	assert.NotEmpty(t, evt.Envelope, "caller's event is not modified")
}

func TestNewKafkaReporterRequiresBrokers(t *testing.T) {
	_, err := NewKafkaReporter("", "topic")
	assert.Error(t, err)
	k, err := NewKafkaReporter("b1:9092,b2:9092", "")
	require.NoError(t, err)
	assert.NotNil(t, k)
}

func TestJournalReporter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := NewJournal(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS envq_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, j.Migrate(ctx))

	evt := droppedEvent()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO envq_events")).
		WithArgs("dropped", "ns", "ns_insert:7", "insert", int64(7), "cust1", 20, "", 0, testTime).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, j.Report(ctx, evt))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO envq_events")).
		WillReturnError(errors.New("connection refused"))
	assert.Error(t, j.Report(ctx, evt))

	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeObjects struct {
	puts map[string][]byte
	err  error
}

func (f *fakeObjects) Put(_ context.Context, key string, data []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = data
	return nil
}

func TestArchiveReporterStoresDroppedOnly(t *testing.T) {
	store := &fakeObjects{}
	a := ArchiveReporter{Store: store}
	ctx := context.Background()

	require.NoError(t, a.Report(ctx, Event{Kind: KindSucceeded, Namespace: "ns", Key: "ns_insert:1"}))
	assert.Empty(t, store.puts)

	evt := droppedEvent()
	require.NoError(t, a.Report(ctx, evt))
	assert.JSONEq(t, string(evt.Envelope), string(store.puts["ns/insert/7.json"]))

	store.err = errors.New("bucket gone")
	assert.Error(t, a.Report(ctx, evt))
}
