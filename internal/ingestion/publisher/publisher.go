// Package publisher validates translation-unit import events and publishes
// them to the Kafka import topic in batches.
package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/kafka"
)

const defaultBatchSize = 500

// Producer is the part of kafka.Producer the publisher needs.
type Producer interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	producer  Producer
	locales   *locale.Table
	batchSize int
	pending   []kafka.Event
	published int
	logger    *slog.Logger
}

// New returns a Publisher. locales may be nil to accept any well-formed tag.
func New(producer Producer, locales *locale.Table, batchSize int) *Publisher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Publisher{
		producer:  producer,
		locales:   locales,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Add validates ev and queues it, flushing when the batch is full. Events
// are keyed by origin so one file's changes stay ordered on one partition.
func (p *Publisher) Add(ctx context.Context, ev ingestion.ImportEvent) error {
	if err := validator.ValidateImportEvent(&ev, p.locales); err != nil {
		return err
	}
	p.pending = append(p.pending, kafka.Event{
		Key:   ev.Origin,
		Value: ev,
		Headers: map[string]string{
			kafka.HeaderEventID: ev.EventID,
			kafka.HeaderOp:      ev.Op,
		},
	})
	if len(p.pending) >= p.batchSize {
		return p.Flush(ctx)
	}
	return nil
}

// Flush publishes everything queued so far.
func (p *Publisher) Flush(ctx context.Context) error {
	if len(p.pending) == 0 {
		return nil
	}
	if err := p.producer.PublishBatch(ctx, p.pending); err != nil {
		return fmt.Errorf("publishing %d import events: %w", len(p.pending), err)
	}
	p.published += len(p.pending)
	p.logger.Debug("import batch published", "count", len(p.pending), "total", p.published)
	p.pending = p.pending[:0]
	return nil
}

// Published is the number of events successfully handed to Kafka.
func (p *Publisher) Published() int {
	return p.published
}
