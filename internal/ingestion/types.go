// Package ingestion defines the import event published to Kafka by tmctl
// and applied to the index by the tmserver import consumer.
package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// Import operations.
const (
	OpInsert    = "insert"
	OpUnique    = "insert_unique"
	OpOverwrite = "overwrite"
	OpUpdate    = "update"
	OpRemove    = "remove"
)

// UnitPayload is a translation unit in transit. Fragments are markup
// strings.
type UnitPayload struct {
	Source       string            `json:"source"`
	Target       string            `json:"target"`
	SourceLocale string            `json:"source_locale,omitempty"`
	TargetLocale string            `json:"target_locale,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ImportEvent is one change to apply to the index. DocID is required for
// update and remove; Unit for everything else.
type ImportEvent struct {
	EventID     string       `json:"event_id"`
	Op          string       `json:"op"`
	Unit        *UnitPayload `json:"unit,omitempty"`
	DocID       uint64       `json:"doc_id,omitempty"`
	Origin      string       `json:"origin,omitempty"`
	PublishedAt time.Time    `json:"published_at"`
}

// NewImportEvent stamps an event with a fresh id and the current time.
func NewImportEvent(op string, unit *UnitPayload, docID uint64, origin string) ImportEvent {
	return ImportEvent{
		EventID:     uuid.NewString(),
		Op:          op,
		Unit:        unit,
		DocID:       docID,
		Origin:      origin,
		PublishedAt: time.Now().UTC(),
	}
}

// Import outcome statuses recorded in the ledger and in metrics.
const (
	StatusApplied   = "applied"
	StatusRejected  = "rejected"
	StatusDuplicate = "duplicate"
	StatusNotFound  = "not_found"
	StatusSkipped   = "skipped"
)

// Outcome is the result of applying one event.
type Outcome struct {
	EventID  string
	Op       string
	Origin   string
	Status   string
	DocID    uint64
	Replaced []uint64
	Error    string
}
