// Package ranker defines the ranked hit returned by every search path and
// the deterministic ordering applied to hit lists.
package ranker

import (
	"maps"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/scorer"
)

type MatchType string

const (
	// MatchExact: same text and same inline markup.
	MatchExact MatchType = "exact"
	// MatchExactCodeVariant: same text and code positions, different markup.
	MatchExactCodeVariant MatchType = "exact_code_variant"
	// MatchExactNormalized: same tokens, differing in case, spacing or
	// punctuation.
	MatchExactNormalized MatchType = "exact_normalized"
	MatchFuzzy           MatchType = "fuzzy"
	MatchConcordance     MatchType = "concordance"
)

// IsExact reports whether the match type carries a score of 100.
func (m MatchType) IsExact() bool {
	switch m {
	case MatchExact, MatchExactCodeVariant, MatchExactNormalized:
		return true
	}
	return false
}

type Hit struct {
	DocID        index.DocID        `json:"doc_id"`
	Score        int                `json:"score"`
	MatchType    MatchType          `json:"match_type"`
	Source       *fragment.Fragment `json:"source"`
	Target       *fragment.Fragment `json:"target"`
	SourceLocale string             `json:"source_locale,omitempty"`
	TargetLocale string             `json:"target_locale,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
	Origin       string             `json:"origin,omitempty"`
}

// NewHit builds a hit for a stored unit. The hit owns copies of the
// unit's fragments and metadata.
func NewHit(u *index.Unit, score int, mt MatchType) Hit {
	return Hit{
		DocID:        u.ID,
		Score:        score,
		MatchType:    mt,
		Source:       u.Source.Clone(),
		Target:       u.Target.Clone(),
		SourceLocale: u.SourceLocale,
		TargetLocale: u.TargetLocale,
		Metadata:     maps.Clone(u.Metadata),
	}
}

// Classify names the kind of match a score represents for query against u.
func Classify(query *fragment.Fragment, u *index.Unit, score int) MatchType {
	if score < scorer.Exact {
		return MatchFuzzy
	}
	switch {
	case fragment.Equal(query, u.Source):
		return MatchExact
	case query.PlainText() == u.Source.PlainText():
		return MatchExactCodeVariant
	default:
		return MatchExactNormalized
	}
}

// Compare orders hits by score descending, then document id ascending.
func Compare(a, b Hit) int {
	if a.Score != b.Score {
		return b.Score - a.Score
	}
	switch {
	case a.DocID < b.DocID:
		return -1
	case a.DocID > b.DocID:
		return 1
	}
	return 0
}

// Rank sorts hits in place and keeps at most maxHits of them. maxHits <= 0
// keeps everything.
func Rank(hits []Hit, maxHits int) []Hit {
	slices.SortStableFunc(hits, Compare)
	if maxHits > 0 && len(hits) > maxHits {
		hits = hits[:maxHits]
	}
	return hits
}
