package connector

import (
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/ranker"
)

// AltTranslation is a candidate translation for a segment.
type AltTranslation struct {
	Source        *fragment.Fragment `json:"source"`
	Target        *fragment.Fragment `json:"target"`
	CombinedScore int                `json:"combined_score"`
	MatchType     ranker.MatchType   `json:"match_type"`
	Origin        string             `json:"origin,omitempty"`
}

// Verbatim reports whether the candidate is an exact match.
func (a AltTranslation) Verbatim() bool { return a.CombinedScore == 100 }

// AltTranslations is an append-only list of candidates, best first when
// built by Leverage. The zero value is an empty list.
type AltTranslations struct {
	items []AltTranslation
}

func (l *AltTranslations) Add(a AltTranslation) {
	l.items = append(l.items, a)
}

func (l *AltTranslations) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// All returns a copy of the candidates.
func (l *AltTranslations) All() []AltTranslation {
	if l == nil {
		return nil
	}
	out := make([]AltTranslation, len(l.items))
	copy(out, l.items)
	return out
}

// Best returns the first candidate.
func (l *AltTranslations) Best() (AltTranslation, bool) {
	if l.Len() == 0 {
		return AltTranslation{}, false
	}
	return l.items[0], true
}

// Leverage queries q for f and collects every returned hit as a candidate
// translation. q must be open.
func Leverage(q TmQuery, f *fragment.Fragment) (*AltTranslations, error) {
	if _, err := q.Query(f); err != nil {
		return nil, err
	}
	hits, err := drain(q)
	if err != nil {
		return nil, err
	}
	alts := &AltTranslations{items: make([]AltTranslation, 0, len(hits))}
	for _, h := range hits {
		alts.Add(AltTranslation{
			Source:        h.Source,
			Target:        h.Target,
			CombinedScore: h.Score,
			MatchType:     h.MatchType,
			Origin:        h.Origin,
		})
	}
	return alts, nil
}
