package connector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

// failingQuery opens fine but fails every query.
type failingQuery struct {
	Session
	err error
}

func (f *failingQuery) Query(*fragment.Fragment) (int, error) { return 0, f.err }

func newManager(t *testing.T) (*Manager, *Session, *Session) {
	t.Helper()
	main := NewSession(newEngine(t,
		unit("Elephants cannot fly.", "Les éléphants ne peuvent pas voler."),
		unit("Elephants can swim.", "Les éléphants savent nager."),
	), WithName("main"))
	legacy := NewSession(newEngine(t,
		unit("Elephants cannot fly.", "Les éléphants ne peuvent pas voler."),
		unit("Elephants cannot fly!", "Les éléphants ne volent pas !"),
	), WithName("legacy"))

	m := NewManager()
	require.NoError(t, m.AddResource("main", main))
	require.NoError(t, m.AddResource("legacy", legacy))
	return m, main, legacy
}

func TestManagerMergesAndDedupes(t *testing.T) {
	m, _, _ := newManager(t)
	require.NoError(t, m.Open("", ""))
	defer m.Close()
	require.NoError(t, m.SetThreshold(90))

	n, err := m.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	hits := collect(t, m)

	assert.Equal(t, "main", hits[0].Origin)
	assert.Equal(t, 100, hits[0].Score)
	assert.Equal(t, "legacy", hits[1].Origin)
	assert.Equal(t, "Les éléphants ne volent pas !", hits[1].Target.String())
}

func TestManagerMaximumHitsAppliesAfterMerge(t *testing.T) {
	m, _, _ := newManager(t)
	require.NoError(t, m.Open("", ""))
	defer m.Close()
	require.NoError(t, m.SetThreshold(0))
	require.NoError(t, m.SetMaximumHits(1))

	n, err := m.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManagerSetEnabled(t *testing.T) {
	m, _, _ := newManager(t)
	require.NoError(t, m.SetEnabled("main", false))
	assert.ErrorIs(t, m.SetEnabled("missing", false), apperrors.ErrNotFound)
	require.NoError(t, m.Open("", ""))
	defer m.Close()
	require.NoError(t, m.SetThreshold(90))

	n, err := m.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	for _, h := range collect(t, m) {
		assert.Equal(t, "legacy", h.Origin)
	}

	require.NoError(t, m.SetEnabled("main", true))
	n, err = m.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	r, err := m.Next()
	require.NoError(t, err)
	assert.Equal(t, "main", r.Origin)
}

func TestManagerResourceRegistration(t *testing.T) {
	m, main, _ := newManager(t)
	assert.Equal(t, []string{"main", "legacy"}, m.Resources())
	assert.ErrorIs(t, m.AddResource("main", main), apperrors.ErrInvalidArgument)
	assert.ErrorIs(t, m.AddResource("", main), apperrors.ErrInvalidArgument)

	require.NoError(t, m.Open("", ""))
	assert.ErrorIs(t, m.AddResource("late", NewSession(newEngine(t))), apperrors.ErrInvalidArgument)
	require.NoError(t, m.Close())
}

func TestManagerCloseClosesResources(t *testing.T) {
	m, main, legacy := newManager(t)
	require.NoError(t, m.Open("en", "fr"))
	require.NoError(t, m.Close())

	_, err := main.QueryText("fly")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyClosed)
	_, err = legacy.QueryText("fly")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyClosed)
	assert.ErrorIs(t, m.Close(), apperrors.ErrAlreadyClosed)
}

func TestManagerSkipsFailingResource(t *testing.T) {
	boom := errors.New("boom")
	m, _, _ := newManager(t)
	bad := &failingQuery{Session: *NewSession(newEngine(t)), err: boom}
	require.NoError(t, m.AddResource("bad", bad))
	require.NoError(t, m.Open("", ""))
	defer m.Close()
	require.NoError(t, m.SetThreshold(100))

	n, err := m.QueryText("Elephants cannot fly.")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, m.SetEnabled("main", false))
	require.NoError(t, m.SetEnabled("legacy", false))
	_, err = m.QueryText("Elephants cannot fly.")
	assert.ErrorIs(t, err, boom)
	assert.False(t, m.HasNext())
}

func TestManagerEmptyQuery(t *testing.T) {
	m, _, _ := newManager(t)
	require.NoError(t, m.Open("", ""))
	defer m.Close()

	n, err := m.Query(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = m.Next()
	assert.ErrorIs(t, err, apperrors.ErrIteratorExhausted)
}

func TestManagerBatchQuery(t *testing.T) {
	m, _, _ := newManager(t)
	require.NoError(t, m.Open("", ""))
	defer m.Close()
	require.NoError(t, m.SetThreshold(100))

	lists, err := m.BatchQuery([]*fragment.Fragment{
		fragment.FromText("Elephants can swim."),
		fragment.FromText("Elephants cannot fly!"),
	})
	require.NoError(t, err)
	require.Len(t, lists, 2)
	require.Len(t, lists[0], 1)
	assert.Equal(t, "main", lists[0][0].Origin)
	require.Len(t, lists[1], 2)
}
