package index

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

func entry(src, tgt string) Entry {
	return Entry{
		Source:       fragment.Parse(src),
		Target:       fragment.Parse(tgt),
		SourceLocale: "en-US",
		TargetLocale: "fr-FR",
	}
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	m := NewMemoryIndex()
	a := m.Insert(entry("Elephants cannot fly.", "Les éléphants ne peuvent pas voler."))
	b := m.Insert(entry("Elephants cannot fly.", "Les éléphants ne peuvent pas voler."))
	assert.Equal(t, DocID(1), a)
	assert.Equal(t, DocID(2), b)
	assert.Equal(t, 2, m.DocCount())

	u, err := m.UnitFor(a)
	require.NoError(t, err)
	assert.Equal(t, 3, u.TokenLength())
	assert.Equal(t, "Les éléphants ne peuvent pas voler.", u.Target.PlainText())
}

func TestPostingsCanonicalOrder(t *testing.T) {
	m := NewMemoryIndex()
	m.Insert(entry("fly fly away", "x"))
	m.Insert(entry("birds fly", "y"))

	got := m.PostingsFor("fly")
	want := []Posting{{DocID: 1, Position: 0}, {DocID: 1, Position: 1}, {DocID: 2, Position: 1}}
	assert.Equal(t, want, got)
	assert.Empty(t, m.PostingsFor("unknown"))
}

func TestPostingsReconstructOccurrences(t *testing.T) {
	m := NewMemoryIndex()
	texts := []string{"a b <x/> a", "b c", "<i>a</i> c c"}
	for _, s := range texts {
		m.Insert(entry(s, ""))
	}
	snap := m.Snapshot()
	for _, u := range snap.Units() {
		for _, tok := range u.Tokens() {
			assert.Contains(t, snap.PostingsFor(tok.Term), Posting{DocID: u.ID, Position: tok.Position})
		}
	}
	assert.Len(t, snap.PostingsFor(tokenizer.CodeTerm), 3)
}

func TestStoredUnitIgnoresCallerChanges(t *testing.T) {
	m := NewMemoryIndex()
	e := entry("Elephants cannot fly.", "Les éléphants ne peuvent pas voler.")
	e.Metadata = map[string]string{"project": "zoo"}
	id := m.Insert(e)

	e.Source.AppendText(" Otters swim.")
	e.Target.AppendCode(fragment.Code{Kind: fragment.Placeholder, Tag: "x"})
	e.Metadata["project"] = "aquarium"

	u, err := m.UnitFor(id)
	require.NoError(t, err)
	assert.Equal(t, "Elephants cannot fly.", u.Source.String())
	assert.Equal(t, "Les éléphants ne peuvent pas voler.", u.Target.String())
	assert.Equal(t, "zoo", u.Metadata["project"])
	assert.Empty(t, m.PostingsFor("otters"))

	for _, tok := range u.Tokens() {
		assert.Contains(t, m.PostingsFor(tok.Term), Posting{DocID: id, Position: tok.Position})
	}
	assert.Equal(t, tokenizer.Tokenize(u.Source), u.Tokens())

	out := u.Entry()
	out.Source.AppendText(" Again.")
	assert.Equal(t, "Elephants cannot fly.", u.Source.String())
}

func TestRemove(t *testing.T) {
	m := NewMemoryIndex()
	a := m.Insert(entry("Elephants cannot fly.", "x"))
	b := m.Insert(entry("Elephants can swim.", "y"))

	before := m.Snapshot()
	assert.True(t, m.Remove(a))
	assert.False(t, m.Remove(a), "second remove is a no-op")
	assert.False(t, m.Remove(999))

	_, err := m.UnitFor(a)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, []Posting{{DocID: b, Position: 0}}, m.PostingsFor("elephants"))
	assert.Empty(t, m.PostingsFor("fly"))

	// the earlier snapshot is untouched
	_, err = before.Unit(a)
	assert.NoError(t, err)
	assert.Len(t, before.PostingsFor("fly"), 1)

	c := m.Insert(entry("Elephants cannot fly.", "x"))
	assert.Equal(t, DocID(3), c, "ids are never reused")
}

func TestInsertUniqueAndOverwrite(t *testing.T) {
	m := NewMemoryIndex()
	first, err := m.InsertUnique(entry("Save the <b>file</b>.", "a"))
	require.NoError(t, err)

	_, err = m.InsertUnique(entry("Save the <b>file</b>.", "b"))
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateNotAllowed))

	_, err = m.InsertUnique(entry("Save the <i>file</i>.", "c"))
	assert.NoError(t, err, "different code markup is a different source")

	id, replaced := m.InsertOverwrite(entry("Save the <b>file</b>.", "d"))
	assert.Equal(t, []DocID{first}, replaced)
	u, err := m.UnitFor(id)
	require.NoError(t, err)
	assert.Equal(t, "d", u.Target.PlainText())
	assert.Equal(t, 2, m.DocCount())

	e := entry("", "empty")
	m.Insert(e)
	_, replaced = m.InsertOverwrite(e)
	assert.Len(t, replaced, 1)
}

func TestUpdate(t *testing.T) {
	m := NewMemoryIndex()
	id := m.Insert(entry("Open the door.", "Ouvrez la porte."))
	newID, err := m.Update(id, entry("Open the window.", "Ouvrez la fenêtre."))
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)
	assert.Empty(t, m.PostingsFor("door"))
	assert.Len(t, m.PostingsFor("window"), 1)

	_, err = m.Update(id, entry("x", "y"))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestInsertBatchIsAtomic(t *testing.T) {
	m := NewMemoryIndex()
	gen := m.Snapshot().Generation()
	ids := m.InsertBatch([]Entry{entry("one", "1"), entry("two", "2"), entry("three", "3")})
	assert.Equal(t, []DocID{1, 2, 3}, ids)
	assert.Equal(t, gen+1, m.Snapshot().Generation())
	assert.Nil(t, m.InsertBatch(nil))
}

func TestRestore(t *testing.T) {
	m := NewMemoryIndex()
	m.Insert(entry("alpha", "a"))
	b := m.Insert(entry("beta", "b"))
	m.Insert(entry("gamma", "c"))
	m.Remove(b)
	snap := m.Snapshot()

	restored := NewMemoryIndex()
	require.NoError(t, restored.Restore(snap.Records(), snap.NextID(), snap.Generation()))
	rs := restored.Snapshot()
	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, snap.NextID(), rs.NextID())
	assert.Equal(t, snap.Generation(), rs.Generation())
	assert.Equal(t, []Posting{{DocID: 3, Position: 0}}, rs.PostingsFor("gamma"))
	assert.Equal(t, DocID(4), restored.Insert(entry("delta", "d")))

	bad := []Record{{ID: 2}, {ID: 1}}
	assert.Error(t, restored.Restore(bad, 5, 0))
	assert.Error(t, restored.Restore([]Record{{ID: 9}}, 5, 0))
}

func TestReset(t *testing.T) {
	m := NewMemoryIndex()
	m.Insert(entry("alpha", "a"))
	m.Reset()
	assert.Equal(t, 0, m.DocCount())
	assert.Empty(t, m.PostingsFor("alpha"))
	assert.Equal(t, DocID(2), m.Insert(entry("alpha", "a")))
}

func TestConcurrentReadersSeeWholeMutations(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewMemoryIndex()
	const writes = 200
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			id := m.Insert(entry("shared words here", "t"))
			if i%3 == 0 {
				m.Remove(id)
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				snap := m.Snapshot()
				shared := snap.PostingsFor("shared")
				words := snap.PostingsFor("words")
				here := snap.PostingsFor("here")
				if len(shared) != snap.Len() || len(words) != len(shared) || len(here) != len(shared) {
					t.Errorf("partial mutation observed: %d/%d/%d units=%d", len(shared), len(words), len(here), snap.Len())
					return
				}
				for _, p := range shared {
					if _, err := snap.Unit(p.DocID); err != nil {
						t.Errorf("posting for missing unit %d", p.DocID)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
