package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/redis"
)

// unreachable returns a client whose every command fails quickly.
func unreachable(t *testing.T) *pkgredis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := pkgredis.Wrap(rdb, "tm-test")
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKeyIsStableForSameRequest(t *testing.T) {
	c := New(unreachable(t), time.Minute, nil)
	req := &proto.SearchRequest{
		Query:     "Elephants cannot fly.",
		Mode:      proto.ModeFuzzy,
		Threshold: 75,
		Metadata:  map[string]string{"project": "zoo", "file": "a.xlf"},
	}
	same := &proto.SearchRequest{
		Query:     "Elephants cannot fly.",
		Mode:      proto.ModeFuzzy,
		Threshold: 75,
		Metadata:  map[string]string{"file": "a.xlf", "project": "zoo"},
	}
	assert.Equal(t, c.Key(req, 3), c.Key(same, 3))
	assert.Contains(t, c.Key(req, 3), "tm-test:search:")
}

func TestKeyChangesWithGenerationAndRequest(t *testing.T) {
	c := New(unreachable(t), time.Minute, nil)
	req := &proto.SearchRequest{Query: "fly", Threshold: 75}
	base := c.Key(req, 1)

	assert.NotEqual(t, base, c.Key(req, 2))
	assert.NotEqual(t, base, c.Key(&proto.SearchRequest{Query: "fly", Threshold: 80}, 1))
	assert.NotEqual(t, base, c.Key(&proto.SearchRequest{Query: "fly", Threshold: 75, MaxHits: 1}, 1))
	assert.NotEqual(t, base, c.Key(&proto.SearchRequest{Query: "fly", Threshold: 75, Mode: proto.ModeExact}, 1))
}

func TestKeyEpochDiffersPerCache(t *testing.T) {
	client := unreachable(t)
	req := &proto.SearchRequest{Query: "fly"}
	assert.NotEqual(t, New(client, time.Minute, nil).Key(req, 1), New(client, time.Minute, nil).Key(req, 1))
}

func TestGetOrComputeFallsBackWhenRedisIsDown(t *testing.T) {
	m := metrics.NewForTest()
	c := New(unreachable(t), time.Minute, m)
	var calls atomic.Int32
	compute := func() (*proto.SearchResponse, error) {
		calls.Add(1)
		return &proto.SearchResponse{Candidates: 2, Hits: []proto.Hit{{DocID: 1, Score: 100}}}, nil
	}

	for range 8 {
		resp, cached, err := c.GetOrCompute(context.Background(), &proto.SearchRequest{Query: "fly"}, 1, compute)
		require.NoError(t, err)
		assert.False(t, cached)
		require.Len(t, resp.Hits, 1)
	}
	assert.EqualValues(t, 8, calls.Load())
	hits, misses := c.Stats()
	assert.Zero(t, hits)
	assert.EqualValues(t, 8, misses)
}

func TestGetOrComputeRoundTrip(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skip("redis not available:", err)
	}
	client := pkgredis.Wrap(rdb, "tm-cache-test")
	defer client.Close()
	defer client.FlushNamespace(ctx)

	c := New(client, time.Minute, metrics.NewForTest())
	req := &proto.SearchRequest{Query: "Elephants cannot fly.", Threshold: 100}
	want := &proto.SearchResponse{Hits: []proto.Hit{{DocID: 7, Score: 100, Target: "Les éléphants ne peuvent pas voler."}}}

	resp, cached, err := c.GetOrCompute(ctx, req, 5, func() (*proto.SearchResponse, error) { return want, nil })
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, want, resp)

	resp, cached, err = c.GetOrCompute(ctx, req, 5, func() (*proto.SearchResponse, error) {
		t.Fatal("compute called on a warm key")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, want.Hits, resp.Hits)

	require.NoError(t, c.Invalidate(ctx))
	_, ok := c.Get(ctx, c.Key(req, 5))
	assert.False(t, ok)
}
