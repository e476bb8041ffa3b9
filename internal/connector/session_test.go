package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

func newEngine(t *testing.T, entries ...index.Entry) *indexer.Engine {
	t.Helper()
	e, err := indexer.NewEngine(config.IndexConfig{})
	require.NoError(t, err)
	_, err = e.InsertBatch(entries)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func unit(src, tgt string) index.Entry {
	return index.Entry{Source: fragment.Parse(src), Target: fragment.Parse(tgt)}
}

func localized(src, tgt, srcLoc, tgtLoc string) index.Entry {
	e := unit(src, tgt)
	e.SourceLocale, e.TargetLocale = srcLoc, tgtLoc
	return e
}

func elephants() []index.Entry {
	return []index.Entry{
		unit("Elephants cannot fly.", "Les éléphants ne peuvent pas voler."),
		unit("Elephants <b>cannot</b> fly.", "Les éléphants <b>ne peuvent pas</b> voler."),
		unit("Elephants <g0>cannot</g0> fly.", "Les éléphants <g0>ne peuvent pas</g0> voler."),
	}
}

func openSession(t *testing.T, e *indexer.Engine, opts ...SessionOption) *Session {
	t.Helper()
	s := NewSession(e, opts...)
	require.NoError(t, s.Open("en-US", "fr-FR"))
	t.Cleanup(func() {
		if s.state == stateOpen {
			s.Close()
		}
	})
	return s
}

func collect(t *testing.T, q TmQuery) []QueryResult {
	t.Helper()
	hits, err := drain(q)
	require.NoError(t, err)
	return hits
}

func TestSessionExactRoundTrip(t *testing.T) {
	s := openSession(t, newEngine(t, unit("Elephants cannot fly.", "Les éléphants ne peuvent pas voler.")))
	require.NoError(t, s.SetThreshold(100))

	n, err := s.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, s.HasNext())
	r, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, 100, r.Score)
	assert.Equal(t, "Les éléphants ne peuvent pas voler.", r.Target.String())
	assert.False(t, s.HasNext())

	_, err = s.Next()
	assert.ErrorIs(t, err, apperrors.ErrIteratorExhausted)
}

func TestSessionHitsDoNotAliasStoredUnits(t *testing.T) {
	e := newEngine(t, unit("Elephants cannot fly.", "Les éléphants ne peuvent pas voler."))
	s := openSession(t, e)
	require.NoError(t, s.SetThreshold(100))

	_, err := s.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	h, err := s.Next()
	require.NoError(t, err)
	h.Target.AppendText(" MUTATED")
	h.Source.AppendText(" Otters swim.")

	u, err := e.Snapshot().Unit(h.DocID)
	require.NoError(t, err)
	assert.Equal(t, "Les éléphants ne peuvent pas voler.", u.Target.String())
	assert.Equal(t, "Elephants cannot fly.", u.Source.String())
	assert.Empty(t, e.Snapshot().PostingsFor("otters"))

	_, err = s.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	again, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, 100, again.Score)
	assert.Equal(t, "Les éléphants ne peuvent pas voler.", again.Target.String())
}

func TestSessionEmptyQueryClearsBuffer(t *testing.T) {
	s := openSession(t, newEngine(t, elephants()...))
	require.NoError(t, s.SetThreshold(0))

	n, err := s.QueryText("Elephants")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	for _, q := range []*fragment.Fragment{nil, fragment.FromText(""), fragment.FromText("  ... ")} {
		n, err = s.Query(q)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.False(t, s.HasNext())
	}
	n, err = s.QueryText("")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionDisjointVocabulary(t *testing.T) {
	s := openSession(t, newEngine(t, elephants()...))
	require.NoError(t, s.SetThreshold(1))
	n, err := s.QueryText("Otters can swim.")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionCodeCountSensitivity(t *testing.T) {
	s := openSession(t, newEngine(t, elephants()...))
	require.NoError(t, s.SetThreshold(98))

	n, err := s.Query(fragment.Parse("Elephants <b>cannot</b> fly."))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	hits := collect(t, s)

	assert.EqualValues(t, 2, hits[0].DocID)
	assert.Equal(t, 100, hits[0].Score)
	assert.Equal(t, ranker.MatchExact, hits[0].MatchType)
	assert.EqualValues(t, 3, hits[1].DocID)
	assert.Equal(t, 100, hits[1].Score)
	assert.Equal(t, ranker.MatchExactCodeVariant, hits[1].MatchType)
	assert.EqualValues(t, 1, hits[2].DocID)
	assert.Less(t, hits[2].Score, 100)
	assert.GreaterOrEqual(t, hits[2].Score, 98)
}

func TestSessionThresholdMonotonic(t *testing.T) {
	s := openSession(t, newEngine(t,
		unit("Elephants cannot fly.", "a"),
		unit("Elephants can fly.", "b"),
		unit("Birds can fly.", "c"),
		unit("Fly, elephants, fly!", "d"),
		unit("Nothing in common.", "e"),
	))
	prev := -1
	for threshold := 100; threshold >= 0; threshold -= 5 {
		require.NoError(t, s.SetThreshold(threshold))
		n, err := s.QueryText("Elephants cannot fly.")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, prev, "threshold %d", threshold)
		prev = n
	}
}

func TestSessionDuplicatesAreIndependent(t *testing.T) {
	e := newEngine(t,
		unit("Elephants cannot fly.", "Les éléphants ne peuvent pas voler."),
		unit("Elephants cannot fly.", "Les éléphants ne peuvent pas voler."),
	)
	s := openSession(t, e)
	require.NoError(t, s.SetThreshold(100))
	n, err := s.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	hits := collect(t, s)
	assert.EqualValues(t, 1, hits[0].DocID)
	assert.EqualValues(t, 2, hits[1].DocID)

	_, err = e.Remove(1)
	require.NoError(t, err)
	n, err = s.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	r, err := s.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 2, r.DocID)
}

func TestSessionMaximumHits(t *testing.T) {
	s := openSession(t, newEngine(t, elephants()...))
	require.NoError(t, s.SetThreshold(0))
	require.NoError(t, s.SetMaximumHits(2))
	n, err := s.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.SetMaximumHits(-4))
	n, err = s.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSessionStateMachine(t *testing.T) {
	e := newEngine(t, elephants()...)
	s := NewSession(e)

	assert.False(t, s.HasNext())
	_, err := s.QueryText("fly")
	assert.ErrorIs(t, err, apperrors.ErrNotOpen)
	assert.ErrorIs(t, s.SetThreshold(50), apperrors.ErrNotOpen)
	_, err = s.Next()
	assert.ErrorIs(t, err, apperrors.ErrNotOpen)
	assert.ErrorIs(t, s.Close(), apperrors.ErrNotOpen)

	require.NoError(t, s.Open("", ""))
	assert.ErrorIs(t, s.Open("", ""), apperrors.ErrInvalidArgument)
	assert.EqualValues(t, 1, e.Leases())

	assert.ErrorIs(t, s.SetThreshold(-1), apperrors.ErrInvalidArgument)
	assert.ErrorIs(t, s.SetThreshold(101), apperrors.ErrInvalidArgument)
	assert.Equal(t, DefaultThreshold, s.Threshold())

	require.NoError(t, s.Close())
	assert.Zero(t, e.Leases())
	assert.ErrorIs(t, s.Close(), apperrors.ErrAlreadyClosed)
	assert.ErrorIs(t, s.Open("", ""), apperrors.ErrAlreadyClosed)
	_, err = s.QueryText("fly")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyClosed)
	assert.False(t, s.HasNext())
}

func TestThresholdOptions(t *testing.T) {
	e := newEngine(t, elephants()...)

	assert.Equal(t, 40, NewSession(e, WithThreshold(40)).Threshold())
	assert.Equal(t, DefaultThreshold, NewSession(e, WithThreshold(101)).Threshold())
	assert.Equal(t, 0, NewRemoteSession("127.0.0.1:1", WithRemoteThreshold(0)).threshold)
	assert.Equal(t, DefaultThreshold, NewRemoteSession("127.0.0.1:1", WithRemoteThreshold(-1)).threshold)
	assert.Equal(t, DefaultThreshold, NewManager(WithManagerThreshold(500)).threshold)

	strict := openSession(t, e, WithThreshold(100))
	n, err := strict.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	local := NewSession(e)
	m := NewManager(WithManagerThreshold(100))
	require.NoError(t, m.AddResource("local", local))
	require.NoError(t, m.Open("", ""))
	defer m.Close()
	assert.Equal(t, 100, local.Threshold())
	n, err = m.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSessionLocaleFilter(t *testing.T) {
	e := newEngine(t,
		localized("Open the file.", "Ouvrez le fichier.", "en-US", "fr-FR"),
		localized("Open the file.", "Öffnen Sie die Datei.", "en-US", "de-DE"),
		unit("Open the file.", "Ouvrir le fichier."),
	)
	table, err := locale.NewTable("en-US", "fr-FR", "de-DE")
	require.NoError(t, err)

	s := NewSession(e, WithLocales(table))
	assert.ErrorIs(t, s.Open("en-US", "ja-JP"), apperrors.ErrInvalidArgument)
	require.NoError(t, s.Open("en-US", "fr-FR"))
	defer s.Close()
	require.NoError(t, s.SetThreshold(100))

	n, err := s.QueryText("Open the file.")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	hits := collect(t, s)
	assert.EqualValues(t, 1, hits[0].DocID)
	assert.EqualValues(t, 3, hits[1].DocID)
}

func TestSessionMetadataFilterAndName(t *testing.T) {
	a := unit("Save the file.", "Enregistrez le fichier.")
	a.Metadata = map[string]string{"project": "editor"}
	b := unit("Save the file.", "Sauvegarder le fichier.")
	b.Metadata = map[string]string{"project": "browser"}
	s := openSession(t, newEngine(t, a, b), WithMetadataFilter(map[string]string{"project": "browser"}), WithName("main"))
	require.NoError(t, s.SetThreshold(100))

	n, err := s.QueryText("Save the file.")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	r, err := s.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 2, r.DocID)
	assert.Equal(t, "main", r.Origin)
}

func TestSessionBatchQuery(t *testing.T) {
	s := openSession(t, newEngine(t, elephants()...))
	require.NoError(t, s.SetThreshold(100))

	lists, err := s.BatchQuery([]*fragment.Fragment{
		fragment.FromText("Elephants cannot fly."),
		nil,
		fragment.FromText("Otters can swim."),
		fragment.Parse("Elephants <x/>cannot fly."),
	})
	require.NoError(t, err)
	require.Len(t, lists, 4)
	assert.Len(t, lists[0], 1)
	assert.Empty(t, lists[1])
	assert.Empty(t, lists[2])
	assert.Empty(t, lists[3])
}

func TestSessionExactAndConcordance(t *testing.T) {
	s := openSession(t, newEngine(t, elephants()...))
	require.NoError(t, s.SetThreshold(0))

	n, err := s.QueryExact(fragment.FromText("ELEPHANTS cannot fly"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	r, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, ranker.MatchExactNormalized, r.MatchType)

	n, err = s.QueryConcordance("cannot fly")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	r, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, ranker.MatchConcordance, r.MatchType)
	assert.EqualValues(t, 1, r.DocID)
}
