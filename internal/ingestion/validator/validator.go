// Package validator checks import events before they reach the index and
// reports per-field errors.
package validator

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
)

const (
	maxFragmentLength = 65536
	maxMetadataKeys   = 64
	maxEventIDLength  = 255
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// ValidateImportEvent checks ev against its operation's requirements.
// Locales are checked against table when it is non-nil.
func ValidateImportEvent(ev *ingestion.ImportEvent, table *locale.Table) error {
	errs := make(map[string]string)

	if ev.EventID == "" {
		errs["event_id"] = "event id is required"
	} else if len(ev.EventID) > maxEventIDLength {
		errs["event_id"] = fmt.Sprintf("event id must be at most %d characters", maxEventIDLength)
	}

	switch ev.Op {
	case ingestion.OpInsert, ingestion.OpUnique, ingestion.OpOverwrite:
		validateUnit(ev.Unit, table, errs)
	case ingestion.OpUpdate:
		if ev.DocID == 0 {
			errs["doc_id"] = "doc id is required for update"
		}
		validateUnit(ev.Unit, table, errs)
	case ingestion.OpRemove:
		if ev.DocID == 0 {
			errs["doc_id"] = "doc id is required for remove"
		}
	default:
		errs["op"] = fmt.Sprintf("unknown operation %q", ev.Op)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func validateUnit(u *ingestion.UnitPayload, table *locale.Table, errs map[string]string) {
	if u == nil {
		errs["unit"] = "unit is required"
		return
	}
	if strings.TrimSpace(u.Source) == "" {
		errs["unit.source"] = "source is required and must not be empty"
	} else if len(u.Source) > maxFragmentLength {
		errs["unit.source"] = fmt.Sprintf("source must be at most %d bytes", maxFragmentLength)
	}
	if len(u.Target) > maxFragmentLength {
		errs["unit.target"] = fmt.Sprintf("target must be at most %d bytes", maxFragmentLength)
	}
	if len(u.Metadata) > maxMetadataKeys {
		errs["unit.metadata"] = fmt.Sprintf("at most %d metadata keys", maxMetadataKeys)
	}
	if table != nil {
		if _, err := table.Resolve(u.SourceLocale); err != nil {
			errs["unit.source_locale"] = err.Error()
		}
		if _, err := table.Resolve(u.TargetLocale); err != nil {
			errs["unit.target_locale"] = err.Error()
		}
	}
}
