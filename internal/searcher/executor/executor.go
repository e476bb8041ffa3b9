package executor

import (
	"log/slog"
	"math"
	"sort"

	"golang.org/x/text/language"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/scorer"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

// Source hands out consistent index views.
type Source interface {
	Snapshot() *index.Snapshot
}

// Filter restricts which stored units may be returned. Zero values match
// everything.
type Filter struct {
	SourceLocale language.Tag
	TargetLocale language.Tag
	Metadata     map[string]string
}

func (f Filter) Accept(u *index.Unit) bool {
	if !locale.Compatible(f.SourceLocale, u.SourceTag()) || !locale.Compatible(f.TargetLocale, u.TargetTag()) {
		return false
	}
	for k, v := range f.Metadata {
		if u.Metadata[k] != v {
			return false
		}
	}
	return true
}

type Options struct {
	Threshold int
	MaxHits   int
	Filter    Filter
}

func (o Options) Validate() error {
	if o.Threshold < 0 || o.Threshold > scorer.Exact {
		return apperrors.Invalidf("threshold %d outside [0,100]", o.Threshold)
	}
	return nil
}

// Result is a ranked hit list with the figures behind it.
type Result struct {
	Hits       []ranker.Hit
	Candidates int
	Generation uint64
}

type Executor struct {
	source Source
	scorer scorer.Scorer
	logger *slog.Logger
}

func New(source Source, sc scorer.Scorer) *Executor {
	return &Executor{
		source: source,
		scorer: sc,
		logger: slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Scorer() scorer.Scorer { return e.scorer }

// Generation returns the generation of the current index view.
func (e *Executor) Generation() uint64 {
	return e.source.Snapshot().Generation()
}

// Search scores every unit sharing at least one token with query and
// returns those at or above the threshold, best first.
func (e *Executor) Search(query *fragment.Fragment, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	snap := e.source.Snapshot()
	res := &Result{Generation: snap.Generation()}
	tokens := tokenizer.Tokenize(query)
	if len(tokens) == 0 {
		return res, nil
	}

	candidates := unionPostings(snap, tokenizer.Distinct(tokens))
	res.Candidates = len(candidates)
	hits := make([]ranker.Hit, 0, len(candidates))
	for _, id := range candidates {
		u, err := snap.Unit(id)
		if err != nil || !opts.Filter.Accept(u) {
			continue
		}
		score := e.scorer.Score(tokens, u.Tokens())
		if score < opts.Threshold {
			continue
		}
		hits = append(hits, ranker.NewHit(u, score, ranker.Classify(query, u, score)))
	}
	res.Hits = ranker.Rank(hits, opts.MaxHits)
	e.logger.Debug("query executed",
		"tokens", len(tokens),
		"candidates", res.Candidates,
		"results", len(res.Hits),
		"threshold", opts.Threshold,
	)
	return res, nil
}

// SearchExact returns only units whose token sequence equals the query's.
// Threshold in opts is ignored.
func (e *Executor) SearchExact(query *fragment.Fragment, opts Options) (*Result, error) {
	snap := e.source.Snapshot()
	res := &Result{Generation: snap.Generation()}
	tokens := tokenizer.Tokenize(query)
	if len(tokens) == 0 {
		return res, nil
	}
	candidates := intersectPostings(snap, tokenizer.Distinct(tokens))
	res.Candidates = len(candidates)
	var hits []ranker.Hit
	for _, id := range candidates {
		u, err := snap.Unit(id)
		if err != nil || !opts.Filter.Accept(u) || !tokenizer.SameTerms(tokens, u.Tokens()) {
			continue
		}
		hits = append(hits, ranker.NewHit(u, scorer.Exact, ranker.Classify(query, u, scorer.Exact)))
	}
	res.Hits = ranker.Rank(hits, opts.MaxHits)
	return res, nil
}

// Concordance finds units whose source contains the words of text as a
// contiguous phrase. The score is the share of the unit's tokens covered
// by the phrase.
func (e *Executor) Concordance(text string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	snap := e.source.Snapshot()
	res := &Result{Generation: snap.Generation()}
	words := tokenizer.TokenizeText(text)
	if len(words) == 0 {
		return res, nil
	}

	lists := make([][]index.Posting, len(words))
	for i, w := range words {
		lists[i] = snap.PostingsFor(w.Term)
		if len(lists[i]) == 0 {
			return res, nil
		}
	}

	var hits []ranker.Hit
	var last index.DocID
	for _, start := range lists[0] {
		if start.DocID == last {
			continue
		}
		if !phraseAt(lists, start) {
			continue
		}
		last = start.DocID
		res.Candidates++
		u, err := snap.Unit(start.DocID)
		if err != nil || !opts.Filter.Accept(u) {
			continue
		}
		score := int(math.Round(100 * float64(len(words)) / float64(u.TokenLength())))
		if score > scorer.Exact {
			score = scorer.Exact
		}
		if score < opts.Threshold {
			continue
		}
		hits = append(hits, ranker.NewHit(u, score, ranker.MatchConcordance))
	}
	res.Hits = ranker.Rank(hits, opts.MaxHits)
	return res, nil
}

func phraseAt(lists [][]index.Posting, start index.Posting) bool {
	for i := 1; i < len(lists); i++ {
		if !containsPosting(lists[i], index.Posting{DocID: start.DocID, Position: start.Position + i}) {
			return false
		}
	}
	return true
}

func containsPosting(list []index.Posting, want index.Posting) bool {
	i := sort.Search(len(list), func(i int) bool {
		p := list[i]
		return p.DocID > want.DocID || (p.DocID == want.DocID && p.Position >= want.Position)
	})
	return i < len(list) && list[i] == want
}

// unionPostings returns the distinct document ids of all postings for terms,
// in ascending order.
func unionPostings(snap *index.Snapshot, terms []string) []index.DocID {
	seen := make(map[index.DocID]struct{})
	for _, term := range terms {
		for _, p := range snap.PostingsFor(term) {
			seen[p.DocID] = struct{}{}
		}
	}
	return sortedIDs(seen)
}

func intersectPostings(snap *index.Snapshot, terms []string) []index.DocID {
	if len(terms) == 0 {
		return nil
	}
	shortest := terms[0]
	for _, term := range terms[1:] {
		if len(snap.PostingsFor(term)) < len(snap.PostingsFor(shortest)) {
			shortest = term
		}
	}
	candidates := make(map[index.DocID]struct{})
	for _, p := range snap.PostingsFor(shortest) {
		candidates[p.DocID] = struct{}{}
	}
	for _, term := range terms {
		if term == shortest {
			continue
		}
		docSet := make(map[index.DocID]struct{})
		for _, p := range snap.PostingsFor(term) {
			docSet[p.DocID] = struct{}{}
		}
		for id := range candidates {
			if _, ok := docSet[id]; !ok {
				delete(candidates, id)
			}
		}
	}
	return sortedIDs(candidates)
}

func sortedIDs(set map[index.DocID]struct{}) []index.DocID {
	ids := make([]index.DocID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
