// Package scorer computes the 0-100 fuzzy similarity between a query token
// sequence and a stored unit's source tokens.
//
// Identical sequences score 100. Anything else is scored on its words with
// a Dice coefficient scaled by how much of the shared vocabulary appears in
// the same order, minus a small penalty per inline code that one side has
// and the other lacks. The result never reaches 100 unless the sequences
// are identical.
package scorer

import (
	"math"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/tokenizer"
)

const (
	DefaultOrderPenaltyFloor   = 0.8
	DefaultCodeMismatchPenalty = 0.5

	// Exact is the score reserved for identical token sequences.
	Exact = 100
	// MaxFuzzy is the best score a non-identical candidate can get.
	MaxFuzzy = 99

	// first rune handed out when mapping terms to runes; above the BMP so
	// no mapped rune is a surrogate
	runeBase = 0x10000
	maxTerms = 0x10FFFF - runeBase
)

type Scorer struct {
	// OrderPenaltyFloor is the order factor applied when none of the shared
	// tokens appear in the same order.
	OrderPenaltyFloor float64
	// CodeMismatchPenalty is subtracted once per code-count difference.
	CodeMismatchPenalty float64
}

func New(orderPenaltyFloor, codeMismatchPenalty float64) Scorer {
	return Scorer{
		OrderPenaltyFloor:   orderPenaltyFloor,
		CodeMismatchPenalty: codeMismatchPenalty,
	}
}

func Default() Scorer {
	return New(DefaultOrderPenaltyFloor, DefaultCodeMismatchPenalty)
}

// Score returns a similarity in [0,100]. It never fails.
func (s Scorer) Score(query, candidate []tokenizer.Token) int {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	if tokenizer.SameTerms(query, candidate) {
		return Exact
	}

	qWords := tokenizer.WordsOnly(query)
	cWords := tokenizer.WordsOnly(candidate)
	if len(qWords) == 0 || len(cWords) == 0 {
		return clamp(s.similarity(query, candidate))
	}

	score := s.similarity(qWords, cWords)
	codeDiff := tokenizer.CodeCount(query) - tokenizer.CodeCount(candidate)
	if codeDiff < 0 {
		codeDiff = -codeDiff
	}
	score -= s.CodeMismatchPenalty * float64(codeDiff)
	return clamp(score)
}

// similarity is the order-weighted Dice coefficient on a 0-100 scale.
func (s Scorer) similarity(a, b []tokenizer.Token) float64 {
	overlap := Overlap(a, b)
	if overlap == 0 {
		return 0
	}
	base := 100 * float64(2*overlap) / float64(len(a)+len(b))
	ordered := OrderedOverlap(a, b)
	orderFactor := s.OrderPenaltyFloor + (1-s.OrderPenaltyFloor)*float64(ordered)/float64(overlap)
	return base * orderFactor
}

func clamp(score float64) int {
	r := int(math.Round(score))
	if r < 0 {
		return 0
	}
	if r > MaxFuzzy {
		return MaxFuzzy
	}
	return r
}

// Overlap is the size of the multiset intersection of both term sequences.
func Overlap(a, b []tokenizer.Token) int {
	counts := make(map[string]int, len(a))
	for _, t := range a {
		counts[t.Term]++
	}
	n := 0
	for _, t := range b {
		if counts[t.Term] > 0 {
			counts[t.Term]--
			n++
		}
	}
	return n
}

// OrderedOverlap is the length of the longest common subsequence of both
// term sequences. Each distinct term is mapped to one rune so the LCS can
// run over strings.
func OrderedOverlap(a, b []tokenizer.Token) int {
	runes := make(map[string]rune, len(a))
	encode := func(tokens []tokenizer.Token, addNew bool) (string, bool) {
		var sb strings.Builder
		sb.Grow(len(tokens) * 4)
		for _, t := range tokens {
			r, ok := runes[t.Term]
			if !ok {
				if !addNew {
					// absent from the other side, cannot be in the LCS
					continue
				}
				if len(runes) >= maxTerms {
					return "", false
				}
				r = rune(runeBase + len(runes))
				runes[t.Term] = r
			}
			sb.WriteRune(r)
		}
		return sb.String(), true
	}
	sa, ok := encode(a, true)
	if !ok {
		return Overlap(a, b)
	}
	sb, _ := encode(b, false)
	if sa == "" || sb == "" {
		return 0
	}
	return edlib.LCS(sa, sb)
}
