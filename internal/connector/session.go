package connector

import (
	"log/slog"
	"maps"

	"golang.org/x/text/language"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/scorer"
)

// DefaultThreshold is the minimum score of a session that never called
// SetThreshold, unless a threshold option says otherwise.
const DefaultThreshold = 75

// Backend is the index a local session reads from. *indexer.Engine
// satisfies it.
type Backend interface {
	Snapshot() *index.Snapshot
	// Acquire registers the session; release is called on Close.
	Acquire() (release func(), err error)
}

// Session is a TmQuery over a local index.
type Session struct {
	lifecycle
	cursor

	backend   Backend
	exec      *executor.Executor
	locales   *locale.Table
	name      string
	threshold int
	maxHits   int
	metadata  map[string]string
	srcTag    language.Tag
	tgtTag    language.Tag
	release   func()
	logger    *slog.Logger
}

type SessionOption func(*Session)

// WithScorer replaces the default scorer constants.
func WithScorer(sc scorer.Scorer) SessionOption {
	return func(s *Session) { s.exec = executor.New(s.backend, sc) }
}

// WithLocales validates Open's locales against t instead of accepting any
// well-formed tag.
func WithLocales(t *locale.Table) SessionOption {
	return func(s *Session) { s.locales = t }
}

// WithThreshold sets the initial minimum score. Values outside [0,100]
// are ignored.
func WithThreshold(percent int) SessionOption {
	return func(s *Session) {
		if checkThreshold(percent) == nil {
			s.threshold = percent
		}
	}
}

// WithName labels hits with the name of the memory they came from.
func WithName(name string) SessionOption {
	return func(s *Session) { s.name = name }
}

// WithMetadataFilter only returns units whose metadata contains every
// key/value pair of md.
func WithMetadataFilter(md map[string]string) SessionOption {
	return func(s *Session) { s.metadata = maps.Clone(md) }
}

func NewSession(backend Backend, opts ...SessionOption) *Session {
	s := &Session{
		backend:   backend,
		exec:      executor.New(backend, scorer.Default()),
		threshold: DefaultThreshold,
		logger:    slog.Default().With("component", "tm-session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Open(sourceLocale, targetLocale string) error {
	if err := s.beginOpen(); err != nil {
		return err
	}
	src, err := s.resolve(sourceLocale)
	if err != nil {
		return err
	}
	tgt, err := s.resolve(targetLocale)
	if err != nil {
		return err
	}
	release, err := s.backend.Acquire()
	if err != nil {
		return err
	}
	s.srcTag, s.tgtTag = src, tgt
	s.release = release
	s.state = stateOpen
	s.logger.Info("session opened",
		"name", s.name,
		"source_locale", src.String(),
		"target_locale", tgt.String(),
	)
	return nil
}

func (s *Session) resolve(loc string) (language.Tag, error) {
	if s.locales != nil {
		return s.locales.Resolve(loc)
	}
	return locale.Parse(loc), nil
}

func (s *Session) Close() error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	s.state = stateClosed
	s.reset(nil)
	if s.release != nil {
		s.release()
		s.release = nil
	}
	s.logger.Info("session closed", "name", s.name)
	return nil
}

func (s *Session) SetThreshold(percent int) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if err := checkThreshold(percent); err != nil {
		return err
	}
	s.threshold = percent
	return nil
}

func (s *Session) Threshold() int { return s.threshold }

func (s *Session) SetMaximumHits(n int) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	s.maxHits = max(n, 0)
	return nil
}

func (s *Session) options() executor.Options {
	return executor.Options{
		Threshold: s.threshold,
		MaxHits:   s.maxHits,
		Filter: executor.Filter{
			SourceLocale: s.srcTag,
			TargetLocale: s.tgtTag,
			Metadata:     s.metadata,
		},
	}
}

func (s *Session) Query(f *fragment.Fragment) (int, error) {
	if err := s.requireOpen(); err != nil {
		return 0, err
	}
	res, err := s.exec.Search(f, s.options())
	if err != nil {
		s.reset(nil)
		return 0, err
	}
	return s.reset(s.label(res.Hits)), nil
}

func (s *Session) QueryText(text string) (int, error) {
	return s.Query(fragment.FromText(text))
}

// QueryExact buffers only verbatim matches of f.
func (s *Session) QueryExact(f *fragment.Fragment) (int, error) {
	if err := s.requireOpen(); err != nil {
		return 0, err
	}
	res, err := s.exec.SearchExact(f, s.options())
	if err != nil {
		s.reset(nil)
		return 0, err
	}
	return s.reset(s.label(res.Hits)), nil
}

// QueryConcordance buffers the units containing text as a phrase.
func (s *Session) QueryConcordance(text string) (int, error) {
	if err := s.requireOpen(); err != nil {
		return 0, err
	}
	res, err := s.exec.Concordance(text, s.options())
	if err != nil {
		s.reset(nil)
		return 0, err
	}
	return s.reset(s.label(res.Hits)), nil
}

func (s *Session) label(hits []QueryResult) []QueryResult {
	if s.name == "" {
		return hits
	}
	for i := range hits {
		hits[i].Origin = s.name
	}
	return hits
}

func (s *Session) HasNext() bool {
	return s.state == stateOpen && s.hasNext()
}

func (s *Session) Next() (QueryResult, error) {
	if err := s.requireOpen(); err != nil {
		return QueryResult{}, err
	}
	return s.next()
}

func (s *Session) BatchQuery(fs []*fragment.Fragment) ([][]QueryResult, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	return batch(s, fs)
}
