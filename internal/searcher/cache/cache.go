// Package cache keeps search responses in Redis. Keys include the index
// generation, so any mutation makes older entries unreachable and they
// expire by TTL instead of being deleted.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/resilience"
)

const keyPrefix = "search"

type QueryCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	epoch   string
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache. Each process uses its own key epoch because
// generations of an index that was not flushed before exit can repeat.
func New(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	c := &QueryCache{
		client:  client,
		ttl:     ttl,
		epoch:   uuid.NewString(),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     15 * time.Second,
		IsFailure: func(err error) bool {
			return err != nil && !pkgredis.IsNilError(err)
		},
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

func (c *QueryCache) Get(ctx context.Context, key string) (*proto.SearchResponse, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, key)
		return err
	})
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var resp proto.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &resp, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) Set(ctx context.Context, key string, resp *proto.SearchResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute serves req at generation gen from the cache, or runs
// compute once for all concurrent callers with the same key and stores the
// result.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req *proto.SearchRequest,
	gen uint64,
	compute func() (*proto.SearchResponse, error),
) (*proto.SearchResponse, bool, error) {
	key := c.Key(req, gen)
	if resp, ok := c.Get(ctx, key); ok {
		return resp, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*proto.SearchResponse), false, nil
}

// Invalidate deletes every entry in the cache namespace.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushNamespace(ctx)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key derives the cache key for req against index generation gen.
func (c *QueryCache) Key(req *proto.SearchRequest, gen uint64) string {
	var b strings.Builder
	b.WriteString(req.Mode)
	b.WriteByte(0)
	b.WriteString(req.Query)
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(req.Threshold))
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(req.MaxHits))
	b.WriteByte(0)
	b.WriteString(req.SourceLocale)
	b.WriteByte(0)
	b.WriteString(req.TargetLocale)
	keys := make([]string, 0, len(req.Metadata))
	for k := range req.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(req.Metadata[k])
	}
	sum := xxhash.Sum64String(b.String())
	return c.client.Key(keyPrefix, c.epoch, strconv.FormatUint(gen, 10), strconv.FormatUint(sum, 16))
}
