package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/tracing"
)

// Engine is the index the service reads and mutates. *indexer.Engine
// satisfies it.
type Engine interface {
	Snapshot() *index.Snapshot
	InsertBatch(entries []index.Entry) ([]index.DocID, error)
	InsertUnique(entry index.Entry) (index.DocID, error)
	InsertOverwrite(entry index.Entry) (index.DocID, []index.DocID, error)
	Remove(id index.DocID) (bool, error)
	Update(id index.DocID, entry index.Entry) (index.DocID, error)
	Flush() error
	Stats() indexer.Stats
}

// Service runs searches for both the HTTP API and the RPC server.
type Service struct {
	engine   Engine
	exec     *executor.Executor
	cache    *cache.QueryCache
	locales  *locale.Table
	metrics  *metrics.Metrics
	matching config.MatchingConfig
	slow     time.Duration
}

// NewService wires the search path. queryCache, locales and m may be nil.
func NewService(
	engine Engine,
	exec *executor.Executor,
	queryCache *cache.QueryCache,
	locales *locale.Table,
	m *metrics.Metrics,
	matching config.MatchingConfig,
) *Service {
	return &Service{
		engine:   engine,
		exec:     exec,
		cache:    queryCache,
		locales:  locales,
		metrics:  m,
		matching: matching,
	}
}

// TraceSlowQueries logs the span tree of any search taking at least d.
func (s *Service) TraceSlowQueries(d time.Duration) {
	s.slow = d
}

func (s *Service) resolveLocale(loc string) (language.Tag, error) {
	if s.locales != nil {
		return s.locales.Resolve(loc)
	}
	return locale.Parse(loc), nil
}

func (s *Service) options(req *proto.SearchRequest) (executor.Options, error) {
	src, err := s.resolveLocale(req.SourceLocale)
	if err != nil {
		return executor.Options{}, err
	}
	tgt, err := s.resolveLocale(req.TargetLocale)
	if err != nil {
		return executor.Options{}, err
	}
	maxHits := req.MaxHits
	switch {
	case maxHits == 0:
		maxHits = s.matching.MaxHits
	case maxHits < 0:
		maxHits = 0
	}
	opts := executor.Options{
		Threshold: req.Threshold,
		MaxHits:   maxHits,
		Filter: executor.Filter{
			SourceLocale: src,
			TargetLocale: tgt,
			Metadata:     req.Metadata,
		},
	}
	return opts, opts.Validate()
}

// Search runs req against the current index. MaxHits 0 uses the configured
// default and a negative MaxHits is unlimited.
func (s *Service) Search(ctx context.Context, req *proto.SearchRequest) (*proto.SearchResponse, error) {
	start := time.Now()
	traceID := logger.RequestID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx, span := tracing.StartSpan(ctx, "search", traceID)
	defer func() {
		span.End()
		span.LogIfSlow(logger.FromContext(ctx), s.slow)
	}()
	if req.Mode == "" {
		req.Mode = proto.ModeFuzzy
	}
	opts, err := s.options(req)
	if err != nil {
		s.countQuery(req.Mode, "invalid")
		return nil, err
	}
	run := func() (*proto.SearchResponse, error) {
		_, exec := tracing.StartSpan(ctx, "execute", "")
		res, err := s.run(req, opts)
		exec.End()
		if err != nil {
			return nil, err
		}
		exec.SetAttr("candidates", res.Candidates)
		return &proto.SearchResponse{
			Hits:       ranker.ToProtoHits(res.Hits),
			Candidates: int32(res.Candidates),
			Generation: res.Generation,
		}, nil
	}

	var (
		resp        *proto.SearchResponse
		cacheStatus = "disabled"
	)
	if s.cache != nil {
		var cached bool
		resp, cached, err = s.cache.GetOrCompute(ctx, req, s.exec.Generation(), run)
		cacheStatus = "miss"
		if cached {
			cacheStatus = "hit"
		}
	} else {
		resp, err = run()
	}
	if err != nil {
		s.countQuery(req.Mode, "error")
		return nil, err
	}

	elapsed := time.Since(start)
	resp.LatencyMs = elapsed.Milliseconds()
	result := "hit"
	if len(resp.Hits) == 0 {
		result = "empty"
	}
	s.countQuery(req.Mode, result)
	span.SetAttr("mode", req.Mode)
	span.SetAttr("cache", cacheStatus)
	span.SetAttr("hits", len(resp.Hits))
	if s.metrics != nil {
		s.metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
		s.metrics.QueryHits.Observe(float64(len(resp.Hits)))
	}
	logger.FromContext(ctx).Debug("search completed",
		"mode", req.Mode,
		"threshold", req.Threshold,
		"candidates", resp.Candidates,
		"returned", len(resp.Hits),
		"cache", cacheStatus,
		"latency_ms", resp.LatencyMs,
	)
	return resp, nil
}

func (s *Service) run(req *proto.SearchRequest, opts executor.Options) (*executor.Result, error) {
	switch req.Mode {
	case proto.ModeFuzzy:
		return s.exec.Search(fragment.Parse(req.Query), opts)
	case proto.ModeExact:
		return s.exec.SearchExact(fragment.Parse(req.Query), opts)
	case proto.ModeConcordance:
		return s.exec.Concordance(req.Query, opts)
	}
	return nil, apperrors.Invalidf("unknown search mode %q", req.Mode)
}

func (s *Service) countQuery(mode, result string) {
	if s.metrics != nil {
		s.metrics.QueriesTotal.WithLabelValues(mode, result).Inc()
	}
}

func (s *Service) Stats() *proto.StatsResponse {
	return s.engine.Stats().Proto()
}

// unitRequest is the body of unit create and update calls. Fragments are
// markup strings.
type unitRequest struct {
	Source       string            `json:"source"`
	Target       string            `json:"target"`
	SourceLocale string            `json:"source_locale,omitempty"`
	TargetLocale string            `json:"target_locale,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (s *Service) entry(u unitRequest) (index.Entry, error) {
	if u.Source == "" {
		return index.Entry{}, apperrors.Invalidf("source is required")
	}
	src, err := s.resolveLocale(u.SourceLocale)
	if err != nil {
		return index.Entry{}, err
	}
	tgt, err := s.resolveLocale(u.TargetLocale)
	if err != nil {
		return index.Entry{}, err
	}
	return index.Entry{
		Source:       fragment.Parse(u.Source),
		Target:       fragment.Parse(u.Target),
		SourceLocale: locale.Format(src),
		TargetLocale: locale.Format(tgt),
		Metadata:     u.Metadata,
	}, nil
}
