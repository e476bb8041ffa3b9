package connector

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/scorer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
)

func startTMServer(t *testing.T) string {
	t.Helper()
	engine := newEngine(t, append(elephants(), localized("Open the file.", "Öffnen Sie die Datei.", "en-US", "de-DE"))...)
	table, err := locale.NewTable("en-US", "fr-FR", "de-DE")
	require.NoError(t, err)
	svc := handler.NewService(engine, executor.New(engine, scorer.Default()), nil, table, nil, config.Default().Matching)

	srv := grpc.NewServer(time.Second)
	handler.RegisterRPC(srv, svc, nil)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	go srv.Accept()
	t.Cleanup(srv.Stop)
	return srv.Addr()
}

func TestRemoteSessionQuery(t *testing.T) {
	r := NewRemoteSession(startTMServer(t), WithRemoteName("remote"))
	require.NoError(t, r.Open("en-US", "fr-FR"))
	defer r.Close()
	require.NoError(t, r.SetThreshold(98))

	n, err := r.Query(fragment.Parse("Elephants <b>cannot</b> fly."))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	hits := collect(t, r)
	assert.EqualValues(t, 2, hits[0].DocID)
	assert.Equal(t, 100, hits[0].Score)
	assert.Equal(t, ranker.MatchExact, hits[0].MatchType)
	assert.Equal(t, "Les éléphants <b>ne peuvent pas</b> voler.", hits[0].Target.String())
	assert.Equal(t, "remote", hits[0].Origin)
	assert.Equal(t, 100, hits[1].Score)
	assert.Less(t, hits[2].Score, 100)

	_, err = r.Next()
	assert.ErrorIs(t, err, apperrors.ErrIteratorExhausted)

	n, err = r.QueryText("")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoteSessionLocaleFilterAndErrors(t *testing.T) {
	addr := startTMServer(t)

	r := NewRemoteSession(addr)
	require.NoError(t, r.Open("en-US", "fr-FR"))
	require.NoError(t, r.SetThreshold(100))
	n, err := r.QueryText("Open the file.")
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, r.Close())

	bad := NewRemoteSession(addr)
	require.NoError(t, bad.Open("en-US", "ja-JP"))
	defer bad.Close()
	_, err = bad.QueryText("Open the file.")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	assert.ErrorIs(t, bad.SetThreshold(200), apperrors.ErrInvalidArgument)
}

func TestRemoteSessionModesAndStats(t *testing.T) {
	addr := startTMServer(t)

	exact := NewRemoteSession(addr, WithMode(proto.ModeExact))
	require.NoError(t, exact.Open("", ""))
	defer exact.Close()
	n, err := exact.QueryText("elephants CANNOT fly")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	r, err := exact.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 1, r.DocID)
	assert.Equal(t, ranker.MatchExactNormalized, r.MatchType)

	conc := NewRemoteSession(addr, WithMode(proto.ModeConcordance))
	require.NoError(t, conc.Open("", ""))
	defer conc.Close()
	require.NoError(t, conc.SetThreshold(0))
	n, err = conc.QueryText("the file")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := conc.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.Units)
}

func TestRemoteSessionUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	r := NewRemoteSession(addr, WithTimeout(200*time.Millisecond))
	err = r.Open("", "")
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	_, err = r.QueryText("fly")
	assert.ErrorIs(t, err, apperrors.ErrNotOpen)
}

func TestRemoteSessionInManager(t *testing.T) {
	local := NewSession(newEngine(t, unit("Elephants can swim.", "Les éléphants savent nager.")), WithName("local"))
	m := NewManager()
	require.NoError(t, m.AddResource("local", local))
	require.NoError(t, m.AddResource("remote", NewRemoteSession(startTMServer(t))))
	require.NoError(t, m.Open("", ""))
	defer m.Close()
	require.NoError(t, m.SetThreshold(60))

	n, err := m.QueryText("Elephants can swim.")
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)
	hits := collect(t, m)
	assert.Equal(t, "local", hits[0].Origin)
	assert.Equal(t, 100, hits[0].Score)
}
