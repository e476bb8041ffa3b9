package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/kafka"
)

type fakeProducer struct {
	batches [][]kafka.Event
	err     error
}

func (f *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]kafka.Event(nil), events...))
	return nil
}

func insert(source string) ingestion.ImportEvent {
	return ingestion.NewImportEvent(ingestion.OpInsert, &ingestion.UnitPayload{Source: source}, 0, "memory.jsonl")
}

func TestPublisherBatches(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod, nil, 2)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, insert("one")))
	assert.Empty(t, prod.batches)
	require.NoError(t, p.Add(ctx, insert("two")))
	require.Len(t, prod.batches, 1)
	require.NoError(t, p.Add(ctx, insert("three")))
	require.NoError(t, p.Flush(ctx))
	require.NoError(t, p.Flush(ctx))

	require.Len(t, prod.batches, 2)
	assert.Len(t, prod.batches[0], 2)
	assert.Len(t, prod.batches[1], 1)
	assert.Equal(t, 3, p.Published())
	assert.Equal(t, "memory.jsonl", prod.batches[0][0].Key)
	ev, ok := prod.batches[1][0].Value.(ingestion.ImportEvent)
	require.True(t, ok)
	assert.Equal(t, "three", ev.Unit.Source)
	assert.Equal(t, ev.EventID, prod.batches[1][0].Headers[kafka.HeaderEventID])
	assert.Equal(t, ingestion.OpInsert, prod.batches[1][0].Headers[kafka.HeaderOp])
}

func TestPublisherRejectsInvalid(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod, nil, 10)
	err := p.Add(context.Background(), insert(""))
	var verr *validator.ValidationError
	assert.ErrorAs(t, err, &verr)
	require.NoError(t, p.Flush(context.Background()))
	assert.Empty(t, prod.batches)
}

func TestPublisherKeepsPendingOnFailure(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker down")}
	p := New(prod, nil, 10)
	ctx := context.Background()
	require.NoError(t, p.Add(ctx, insert("one")))
	assert.Error(t, p.Flush(ctx))
	assert.Zero(t, p.Published())

	prod.err = nil
	require.NoError(t, p.Flush(ctx))
	assert.Equal(t, 1, p.Published())
}
