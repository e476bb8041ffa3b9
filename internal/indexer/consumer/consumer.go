// Package consumer applies translation-unit import events from Kafka to the
// index engine and records each outcome in the import ledger.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/metrics"
)

// Engine is the set of index mutations an import can perform.
type Engine interface {
	Insert(entry index.Entry) (index.DocID, error)
	InsertUnique(entry index.Entry) (index.DocID, error)
	InsertOverwrite(entry index.Entry) (index.DocID, []index.DocID, error)
	Update(id index.DocID, entry index.Entry) (index.DocID, error)
	Remove(id index.DocID) (bool, error)
}

// Ledger remembers applied events. A nil Ledger disables deduplication.
type Ledger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, o ingestion.Outcome) error
}

type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "import-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("import consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a MessageHandler that applies each ImportEvent to
// engine. Malformed and rejected events are logged and committed; only
// infrastructure failures (closed engine, unreachable ledger) are returned
// so the message is retried.
func HandleMessage(engine Engine, ledger Ledger, table *locale.Table, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "import-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[ingestion.ImportEvent](value)
		if err != nil {
			logger.Error("failed to decode import event", "error", err, "key", string(key))
			count(m, "unknown", ingestion.StatusRejected)
			return nil
		}

		if ledger != nil && ev.EventID != "" {
			seen, err := ledger.Seen(ctx, ev.EventID)
			if err != nil {
				return fmt.Errorf("checking ledger for %s: %w", ev.EventID, err)
			}
			if seen {
				logger.Debug("import event already applied", "event_id", ev.EventID)
				count(m, ev.Op, ingestion.StatusSkipped)
				return nil
			}
		}

		out := Apply(engine, table, &ev)
		if out.Status == ingestion.StatusRejected && errors.Is(out.err, apperrors.ErrAlreadyClosed) {
			return out.err
		}
		count(m, ev.Op, out.Status)

		if out.Status == ingestion.StatusApplied {
			logger.Debug("import event applied", "event_id", ev.EventID, "op", ev.Op, "doc_id", out.DocID)
		} else {
			logger.Warn("import event not applied",
				"event_id", ev.EventID,
				"op", ev.Op,
				"status", out.Status,
				"error", out.Error,
			)
		}

		if ledger != nil && ev.EventID != "" {
			if err := ledger.Record(ctx, out.Outcome); err != nil {
				return fmt.Errorf("recording outcome of %s: %w", ev.EventID, err)
			}
		}
		return nil
	}
}

// Result carries the Outcome of Apply and the error that produced it.
type Result struct {
	ingestion.Outcome
	err error
}

func (r Result) Err() error { return r.err }

// Apply validates ev and performs its operation on engine.
func Apply(engine Engine, table *locale.Table, ev *ingestion.ImportEvent) Result {
	r := Result{Outcome: ingestion.Outcome{EventID: ev.EventID, Op: ev.Op, Origin: ev.Origin}}
	fail := func(status string, err error) Result {
		r.Status = status
		r.Error = err.Error()
		r.err = err
		return r
	}

	if err := validator.ValidateImportEvent(ev, table); err != nil {
		return fail(ingestion.StatusRejected, err)
	}

	var entry index.Entry
	if ev.Unit != nil {
		entry = toEntry(ev.Unit, ev.Origin, table)
	}

	var (
		id  index.DocID
		err error
	)
	switch ev.Op {
	case ingestion.OpInsert:
		id, err = engine.Insert(entry)
	case ingestion.OpUnique:
		id, err = engine.InsertUnique(entry)
	case ingestion.OpOverwrite:
		var replaced []index.DocID
		id, replaced, err = engine.InsertOverwrite(entry)
		for _, old := range replaced {
			r.Replaced = append(r.Replaced, uint64(old))
		}
	case ingestion.OpUpdate:
		id, err = engine.Update(index.DocID(ev.DocID), entry)
	case ingestion.OpRemove:
		var ok bool
		ok, err = engine.Remove(index.DocID(ev.DocID))
		if err == nil && !ok {
			return fail(ingestion.StatusNotFound, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "document %d", ev.DocID))
		}
		id = index.DocID(ev.DocID)
	}

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrDuplicateNotAllowed):
		return fail(ingestion.StatusDuplicate, err)
	case errors.Is(err, apperrors.ErrNotFound):
		return fail(ingestion.StatusNotFound, err)
	default:
		return fail(ingestion.StatusRejected, err)
	}
	r.Status = ingestion.StatusApplied
	r.DocID = uint64(id)
	return r
}

// toEntry converts a validated payload. Locales are stored in canonical
// form; the origin is kept as metadata when the unit does not name one.
func toEntry(u *ingestion.UnitPayload, origin string, table *locale.Table) index.Entry {
	canonical := func(s string) string {
		if table == nil {
			return locale.Format(locale.Parse(s))
		}
		tag, _ := table.Resolve(s)
		return locale.Format(tag)
	}
	md := u.Metadata
	if origin != "" {
		if _, ok := md["origin"]; !ok {
			md = make(map[string]string, len(u.Metadata)+1)
			for k, v := range u.Metadata {
				md[k] = v
			}
			md["origin"] = origin
		}
	}
	return index.Entry{
		Source:       fragment.Parse(u.Source),
		Target:       fragment.Parse(u.Target),
		SourceLocale: canonical(u.SourceLocale),
		TargetLocale: canonical(u.TargetLocale),
		Metadata:     md,
	}
}

func count(m *metrics.Metrics, op, status string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.ImportEventsTotal.WithLabelValues(op, status).Inc()
}
