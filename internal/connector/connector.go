// Package connector exposes translation memories through the stateful
// open / query / iterate protocol used by pipeline steps.
//
// Every backend implements TmQuery: Session queries a local index,
// RemoteSession queries a tmserver over RPC and Manager fans a query out
// to several TmQuery resources. None of them is safe for concurrent use;
// open one per goroutine.
package connector

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

// QueryResult is one ranked hit. Score is the fuzzy score; 100 means a
// verbatim match.
type QueryResult = ranker.Hit

type TmQuery interface {
	// Open binds the session to a locale pair. Empty strings match any
	// locale.
	Open(sourceLocale, targetLocale string) error
	Close() error
	// SetThreshold sets the minimum score, 0 to 100, for later queries.
	SetThreshold(percent int) error
	// SetMaximumHits caps the number of buffered results; n <= 0 is
	// unlimited.
	SetMaximumHits(n int) error
	// Query runs a search, buffers the ranked hits and returns how many
	// there are. A nil or empty fragment yields 0 and clears the buffer.
	Query(f *fragment.Fragment) (int, error)
	// QueryText is Query for plain text.
	QueryText(text string) (int, error)
	HasNext() bool
	Next() (QueryResult, error)
	// BatchQuery runs Query for each fragment in turn and returns the
	// ranked lists in input order.
	BatchQuery(fs []*fragment.Fragment) ([][]QueryResult, error)
}

type state int

const (
	stateNew state = iota
	stateOpen
	stateClosed
)

// lifecycle tracks the New -> Open -> Closed state machine shared by all
// connectors.
type lifecycle struct {
	state state
}

func (l *lifecycle) requireOpen() error {
	switch l.state {
	case stateOpen:
		return nil
	case stateClosed:
		return apperrors.New(apperrors.ErrAlreadyClosed, http.StatusGone, "connector is closed")
	default:
		return apperrors.New(apperrors.ErrNotOpen, http.StatusServiceUnavailable, "connector is not open")
	}
}

func (l *lifecycle) beginOpen() error {
	switch l.state {
	case stateOpen:
		return apperrors.Invalidf("connector is already open")
	case stateClosed:
		return apperrors.New(apperrors.ErrAlreadyClosed, http.StatusGone, "connector is closed and cannot be reopened")
	}
	return nil
}

func checkThreshold(percent int) error {
	if percent < 0 || percent > 100 {
		return apperrors.Invalidf("threshold %d outside [0,100]", percent)
	}
	return nil
}

// cursor is the pull iterator over a buffered hit list.
type cursor struct {
	hits []QueryResult
	pos  int
}

func (c *cursor) reset(hits []QueryResult) int {
	c.hits = hits
	c.pos = 0
	return len(hits)
}

func (c *cursor) hasNext() bool { return c.pos < len(c.hits) }

func (c *cursor) next() (QueryResult, error) {
	if c.pos >= len(c.hits) {
		return QueryResult{}, apperrors.Newf(apperrors.ErrIteratorExhausted, http.StatusGone,
			"no more results (%d returned)", len(c.hits))
	}
	h := c.hits[c.pos]
	c.pos++
	return h, nil
}

// drain collects every remaining result of q.
func drain(q TmQuery) ([]QueryResult, error) {
	var out []QueryResult
	for q.HasNext() {
		r, err := q.Next()
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// batch runs query over fs and drains each result list from q.
func batch(q TmQuery, fs []*fragment.Fragment) ([][]QueryResult, error) {
	out := make([][]QueryResult, 0, len(fs))
	for _, f := range fs {
		if _, err := q.Query(f); err != nil {
			return out, err
		}
		hits, err := drain(q)
		if err != nil {
			return out, err
		}
		out = append(out, hits)
	}
	return out, nil
}
