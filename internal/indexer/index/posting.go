package index

import (
	"maps"
	"time"

	"golang.org/x/text/language"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
)

// DocID identifies a stored unit. IDs start at 1 and are never reused
// within an index.
type DocID uint64

// Posting records one occurrence of a term in a unit's source tokens.
type Posting struct {
	DocID    DocID `json:"doc_id"`
	Position int   `json:"position"`
}

// Entry is the caller-supplied content of a translation unit.
type Entry struct {
	Source       *fragment.Fragment `json:"source"`
	Target       *fragment.Fragment `json:"target"`
	SourceLocale string             `json:"source_locale,omitempty"`
	TargetLocale string             `json:"target_locale,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
}

// Unit is a stored translation unit. It is never modified after it is
// inserted; callers must treat every field as read-only.
type Unit struct {
	ID           DocID
	Source       *fragment.Fragment
	Target       *fragment.Fragment
	SourceLocale string
	TargetLocale string
	Metadata     map[string]string
	CreatedAt    time.Time

	tokens      []tokenizer.Token
	sourceTag   language.Tag
	targetTag   language.Tag
	fingerprint uint64
}

// newUnit copies the entry's fragments so later changes by the caller
// cannot reach the stored unit.
func newUnit(id DocID, e Entry, createdAt time.Time) *Unit {
	source := e.Source.Clone()
	return &Unit{
		ID:           id,
		Source:       source,
		Target:       e.Target.Clone(),
		SourceLocale: e.SourceLocale,
		TargetLocale: e.TargetLocale,
		Metadata:     maps.Clone(e.Metadata),
		CreatedAt:    createdAt,
		tokens:       tokenizer.Tokenize(source),
		sourceTag:    locale.Parse(e.SourceLocale),
		targetTag:    locale.Parse(e.TargetLocale),
		fingerprint:  source.Fingerprint(),
	}
}

// Tokens returns the cached source token sequence. The slice is shared.
func (u *Unit) Tokens() []tokenizer.Token { return u.tokens }

func (u *Unit) TokenLength() int { return len(u.tokens) }

func (u *Unit) SourceTag() language.Tag { return u.sourceTag }

func (u *Unit) TargetTag() language.Tag { return u.targetTag }

// Fingerprint hashes the source fragment, codes included.
func (u *Unit) Fingerprint() uint64 { return u.fingerprint }

// Entry returns a copy of the unit's content, for re-insertion or
// persistence.
func (u *Unit) Entry() Entry {
	return Entry{
		Source:       u.Source.Clone(),
		Target:       u.Target.Clone(),
		SourceLocale: u.SourceLocale,
		TargetLocale: u.TargetLocale,
		Metadata:     maps.Clone(u.Metadata),
	}
}

func (u *Unit) sameSource(e Entry, fp uint64) bool {
	return u.fingerprint == fp &&
		u.SourceLocale == e.SourceLocale &&
		u.TargetLocale == e.TargetLocale &&
		fragment.Equal(u.Source, e.Source)
}
