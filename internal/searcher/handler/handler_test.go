package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/scorer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
)

type testServer struct {
	mux    *http.ServeMux
	svc    *Service
	engine *indexer.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	engine, err := indexer.NewEngine(config.IndexConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	table, err := locale.NewTable("en-US", "fr-FR")
	require.NoError(t, err)
	matching := config.Default().Matching
	svc := NewService(engine, executor.New(engine, scorer.Default()), nil, table, metrics.NewForTest(), matching)
	mux := http.NewServeMux()
	New(svc).Register(mux)
	return &testServer{mux: mux, svc: svc, engine: engine}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type createResp struct {
	Units []unitResult `json:"units"`
}

func (ts *testServer) seed(t *testing.T) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/units", map[string]any{
		"units": []map[string]any{
			{"source": "Elephants cannot fly.", "target": "Les éléphants ne peuvent pas voler.", "source_locale": "en-US", "target_locale": "fr-FR"},
			{"source": "Elephants <b>cannot</b> fly.", "target": "Les éléphants <b>ne peuvent pas</b> voler.", "source_locale": "en-US", "target_locale": "fr-FR"},
			{"source": "Elephants can swim.", "target": "Les éléphants savent nager.", "source_locale": "en-US", "target_locale": "fr-FR"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateAndGetUnit(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/units/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	u := decodeBody[unitResponse](t, rec)
	assert.EqualValues(t, 2, u.DocID)
	assert.Equal(t, "Elephants <b>cannot</b> fly.", u.Source)
	assert.Equal(t, "en-US", u.SourceLocale)

	rec = ts.do(t, http.MethodGet, "/api/v1/units/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[map[string]string](t, rec)["code"])

	rec = ts.do(t, http.MethodGet, "/api/v1/units/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUnitsValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/units", map[string]any{"units": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/units", map[string]any{
		"units": []map[string]any{{"source": "Hello", "source_locale": "de-DE"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/units", map[string]any{
		"mode":  "sideways",
		"units": []map[string]any{{"source": "Hello"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, ts.engine.Stats().Units)
}

func TestCreateUnitsUniqueAndOverwrite(t *testing.T) {
	ts := newTestServer(t)
	unit := map[string]any{"source": "Open the file.", "target": "Ouvrez le fichier."}

	rec := ts.do(t, http.MethodPost, "/api/v1/units", map[string]any{"mode": "unique", "units": []any{unit}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/units", map[string]any{"mode": "unique", "units": []any{unit}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/units", map[string]any{
		"mode":  "overwrite",
		"units": []any{map[string]any{"source": "Open the file.", "target": "Ouvrir le fichier."}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[createResp](t, rec)
	require.Len(t, created.Units, 1)
	assert.EqualValues(t, 2, created.Units[0].DocID)
	assert.Equal(t, []uint64{1}, toUint64s(created.Units[0].Replaced))
	assert.Equal(t, 1, ts.engine.Stats().Units)
}

func toUint64s[T ~uint64](ids []T) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

func TestQueryExactRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/query", map[string]any{"query": "Elephants cannot fly.", "threshold": 100})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[proto.SearchResponse](t, rec)
	require.Len(t, resp.Hits, 1)
	assert.EqualValues(t, 100, resp.Hits[0].Score)
	assert.Equal(t, "Les éléphants ne peuvent pas voler.", resp.Hits[0].Target)
	assert.Equal(t, "exact", resp.Hits[0].MatchType)
}

func TestQueryDefaultsAndErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/query", map[string]any{"query": "Elephants <g0>cannot</g0> fly."})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[proto.SearchResponse](t, rec)
	require.Len(t, resp.Hits, 2)
	assert.EqualValues(t, 2, resp.Hits[0].DocID)
	assert.Equal(t, "exact_code_variant", resp.Hits[0].MatchType)

	rec = ts.do(t, http.MethodPost, "/api/v1/query", map[string]any{"query": "fly", "threshold": 101})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/query", map[string]any{"query": "fly", "mode": "psychic"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/query", map[string]any{"query": "", "threshold": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[proto.SearchResponse](t, rec).Hits)

	rec = ts.do(t, http.MethodPost, "/api/v1/query", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryRejectsThresholdBeyondInt32(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	// 1<<32 + 50 would read as 50 if narrowed to 32 bits.
	rec := ts.do(t, http.MethodPost, "/api/v1/query", map[string]any{"query": "Elephants cannot fly.", "threshold": int64(4294967346)})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/concordance?q=cannot+fly&threshold=4294967346", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/query", map[string]any{"query": "Elephants", "threshold": 0, "max_hits": int64(4294967297)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[proto.SearchResponse](t, rec).Hits, 3)
}

func TestBatchQuery(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/query/batch", map[string]any{
		"queries":   []string{"Elephants cannot fly.", "Otters can swim.", ""},
		"threshold": 90,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Results []proto.SearchResponse `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 3)
	assert.Len(t, body.Results[0].Hits, 2)
	assert.Empty(t, body.Results[1].Hits)
	assert.Empty(t, body.Results[2].Hits)
}

func TestConcordance(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/concordance?q=cannot+fly", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[proto.SearchResponse](t, rec)
	// The inline code in unit 2 sits between the two words.
	require.Len(t, resp.Hits, 1)
	assert.EqualValues(t, 1, resp.Hits[0].DocID)
	assert.EqualValues(t, 67, resp.Hits[0].Score)
	assert.Equal(t, "concordance", resp.Hits[0].MatchType)

	rec = ts.do(t, http.MethodGet, "/api/v1/concordance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/concordance?q=fly&max_hits=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAndDeleteUnit(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodPut, "/api/v1/units/3", map[string]any{"source": "Elephants can paint.", "target": "Les éléphants savent peindre."})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, decodeBody[unitResult](t, rec).DocID)

	rec = ts.do(t, http.MethodPut, "/api/v1/units/3", map[string]any{"source": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/units/4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["removed"])

	rec = ts.do(t, http.MethodDelete, "/api/v1/units/4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody[map[string]any](t, rec)["removed"])
}

func TestStatsAndFlush(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[proto.StatsResponse](t, rec)
	assert.EqualValues(t, 3, stats.Units)
	assert.EqualValues(t, 4, stats.NextDocID)

	rec = ts.do(t, http.MethodPost, "/api/v1/index/flush", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/cache/stats", nil)
	assert.Equal(t, "disabled", decodeBody[map[string]string](t, rec)["status"])
	rec = ts.do(t, http.MethodPost, "/api/v1/cache/invalidate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServiceSearchMaxHits(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	resp, err := ts.svc.Search(context.Background(), &proto.SearchRequest{Query: "Elephants", Threshold: 0, MaxHits: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 1)

	resp, err = ts.svc.Search(context.Background(), &proto.SearchRequest{Query: "Elephants", Threshold: 0, MaxHits: -1})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 3)
}
