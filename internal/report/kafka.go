package report

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter publishes events as JSON to a topic, keyed by operation so
// one operation's events stay on one partition.
type KafkaReporter struct {
	writer messageWriter
}

// NewKafkaReporter builds a reporter for a comma-separated broker list.
func NewKafkaReporter(brokers, topic string) (*KafkaReporter, error) {
	if brokers == "" {
		return nil, errors.New("kafka brokers not configured")
	}
	if topic == "" {
		topic = "envq.events"
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaReporter{writer: w}, nil
}

// Report publishes evt without its envelope copy. A dropped envelope can be
// far larger than a broker accepts; ArchiveReporter keeps that copy.
func (k *KafkaReporter) Report(ctx context.Context, evt Event) error {
	evt.Envelope = nil
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Operation),
		Value: data,
		Time:  evt.Time,
	})
}

func (k *KafkaReporter) Close() error { return k.writer.Close() }
