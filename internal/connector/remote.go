package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/resilience"
)

// RemoteSession is a TmQuery served by a tmserver over RPC. A broken
// connection is redialled on the next call; repeated transport failures
// trip a circuit breaker so callers fail fast.
type RemoteSession struct {
	lifecycle
	cursor

	addr      string
	timeout   time.Duration
	mode      string
	name      string
	metadata  map[string]string
	threshold int
	maxHits   int
	src, tgt  string
	client    *grpc.Client
	breaker   *resilience.CircuitBreaker
	logger    *slog.Logger
}

type RemoteOption func(*RemoteSession)

// WithTimeout bounds each RPC round trip. Default 5s.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *RemoteSession) { r.timeout = d }
}

// WithMode selects proto.ModeFuzzy (default), ModeExact or
// ModeConcordance for Query.
func WithMode(mode string) RemoteOption {
	return func(r *RemoteSession) { r.mode = mode }
}

// WithRemoteThreshold sets the initial minimum score. Values outside
// [0,100] are ignored.
func WithRemoteThreshold(percent int) RemoteOption {
	return func(r *RemoteSession) {
		if checkThreshold(percent) == nil {
			r.threshold = percent
		}
	}
}

func WithRemoteName(name string) RemoteOption {
	return func(r *RemoteSession) { r.name = name }
}

func WithRemoteMetadataFilter(md map[string]string) RemoteOption {
	return func(r *RemoteSession) { r.metadata = maps.Clone(md) }
}

func NewRemoteSession(addr string, opts ...RemoteOption) *RemoteSession {
	r := &RemoteSession{
		addr:      addr,
		timeout:   5 * time.Second,
		mode:      proto.ModeFuzzy,
		threshold: DefaultThreshold,
		logger:    slog.Default().With("component", "tm-remote", "addr", addr),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.breaker = resilience.NewCircuitBreaker("tm-remote:"+addr, resilience.CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     10 * time.Second,
		IsFailure: func(err error) bool {
			return errors.Is(err, apperrors.ErrUnavailable)
		},
	})
	return r
}

// Open connects and checks that the server is serving.
func (r *RemoteSession) Open(sourceLocale, targetLocale string) error {
	if err := r.beginOpen(); err != nil {
		return err
	}
	var health proto.HealthCheckResponse
	if err := r.call(proto.MethodHealth, struct{}{}, &health); err != nil {
		r.disconnect()
		return err
	}
	if health.Status != "SERVING" {
		r.disconnect()
		return apperrors.Newf(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "tm server %s is %s", r.addr, health.Status)
	}
	r.src, r.tgt = sourceLocale, targetLocale
	r.state = stateOpen
	r.logger.Info("remote session opened", "source_locale", sourceLocale, "target_locale", targetLocale)
	return nil
}

func (r *RemoteSession) Close() error {
	if err := r.requireOpen(); err != nil {
		return err
	}
	r.state = stateClosed
	r.reset(nil)
	return r.disconnect()
}

func (r *RemoteSession) disconnect() error {
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *RemoteSession) call(method string, params, result any) error {
	err := r.breaker.Execute(func() error {
		if r.client == nil {
			c, err := grpc.DialTimeout(r.addr, r.timeout)
			if err != nil {
				return err
			}
			r.client = c
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		err := r.client.Call(ctx, method, params, result)
		if errors.Is(err, apperrors.ErrUnavailable) {
			r.disconnect()
		}
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
	}
	return err
}

func (r *RemoteSession) SetThreshold(percent int) error {
	if err := r.requireOpen(); err != nil {
		return err
	}
	if err := checkThreshold(percent); err != nil {
		return err
	}
	r.threshold = percent
	return nil
}

func (r *RemoteSession) SetMaximumHits(n int) error {
	if err := r.requireOpen(); err != nil {
		return err
	}
	r.maxHits = max(n, 0)
	return nil
}

func (r *RemoteSession) Query(f *fragment.Fragment) (int, error) {
	if err := r.requireOpen(); err != nil {
		return 0, err
	}
	if f.IsEmpty() {
		return r.reset(nil), nil
	}
	query := f.String()
	if r.mode == proto.ModeConcordance {
		query = f.PlainText()
	}
	maxHits := r.maxHits
	if maxHits == 0 {
		maxHits = -1
	}
	req := proto.SearchRequest{
		Query:        query,
		Mode:         r.mode,
		Threshold:    r.threshold,
		MaxHits:      maxHits,
		SourceLocale: r.src,
		TargetLocale: r.tgt,
		Metadata:     r.metadata,
	}
	var resp proto.SearchResponse
	if err := r.call(proto.MethodSearch, req, &resp); err != nil {
		r.reset(nil)
		return 0, err
	}
	hits := make([]QueryResult, len(resp.Hits))
	for i, p := range resp.Hits {
		hits[i] = ranker.FromProto(p)
		hits[i].Origin = r.name
	}
	return r.reset(hits), nil
}

func (r *RemoteSession) QueryText(text string) (int, error) {
	return r.Query(fragment.FromText(text))
}

// Stats fetches the remote index statistics.
func (r *RemoteSession) Stats() (*proto.StatsResponse, error) {
	if err := r.requireOpen(); err != nil {
		return nil, err
	}
	var resp proto.StatsResponse
	if err := r.call(proto.MethodStats, proto.StatsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *RemoteSession) HasNext() bool {
	return r.state == stateOpen && r.hasNext()
}

func (r *RemoteSession) Next() (QueryResult, error) {
	if err := r.requireOpen(); err != nil {
		return QueryResult{}, err
	}
	return r.next()
}

func (r *RemoteSession) BatchQuery(fs []*fragment.Fragment) ([][]QueryResult, error) {
	if err := r.requireOpen(); err != nil {
		return nil, err
	}
	return batch(r, fs)
}
