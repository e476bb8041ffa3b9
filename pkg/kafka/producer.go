package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/config"
)

// Header names written on every import record.
const (
	HeaderContentType = "content-type"
	HeaderEventID     = "event-id"
	HeaderOp          = "op"
)

// Event is one import record. Events sharing a Key (the import origin) land
// on the same partition and keep their relative order. Headers are copied
// onto the record next to the content type.
type Event struct {
	Key     string
	Value   any
	Headers map[string]string
}

// Producer writes import records to one topic. PublishBatch returns only
// after every in-sync replica has the batch.
type Producer struct {
	writer    *kafka.Writer
	published atomic.Int64
	logger    *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    500,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "import-producer", "topic", topic),
	}
}

// encodeMessages turns events into records. Headers are emitted in name
// order so identical events produce identical records.
func encodeMessages(events []Event) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(events))
	for i, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding import record %d (key %q): %w", i, event.Key, err)
		}
		headers := []kafka.Header{{Key: HeaderContentType, Value: []byte("application/json")}}
		for _, k := range slices.Sorted(maps.Keys(event.Headers)) {
			if k == HeaderContentType {
				continue
			}
			headers = append(headers, kafka.Header{Key: k, Value: []byte(event.Headers[k])})
		}
		messages = append(messages, kafka.Message{
			Key:     []byte(event.Key),
			Value:   value,
			Headers: headers,
		})
	}
	return messages, nil
}

// PublishBatch writes events in one synchronous call. An empty batch is a
// no-op. Nothing is written when any event fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages, err := encodeMessages(events)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("import batch not published",
			"count", len(messages),
			"first_key", events[0].Key,
			"error", err,
		)
		return fmt.Errorf("publishing %d import records: %w", len(messages), err)
	}
	total := p.published.Add(int64(len(messages)))
	p.logger.Debug("import batch published", "count", len(messages), "total", total)
	return nil
}

// Published is the number of records acknowledged so far.
func (p *Producer) Published() int64 { return p.published.Load() }

func (p *Producer) Close() error {
	return p.writer.Close()
}
