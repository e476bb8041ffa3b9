// Package index is the in-memory translation-unit store and positional
// inverted index. Writers are serialised by a mutex and publish a complete
// new Snapshot on every mutation; readers load the current snapshot
// atomically and never block.
package index

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

type MemoryIndex struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	now     func() time.Time
	logger  *slog.Logger
}

func NewMemoryIndex() *MemoryIndex {
	m := &MemoryIndex{
		now:    time.Now,
		logger: slog.Default().With("component", "tm-index"),
	}
	m.current.Store(emptySnapshot())
	return m
}

// Snapshot returns the current immutable view.
func (m *MemoryIndex) Snapshot() *Snapshot {
	return m.current.Load()
}

// Insert stores e under the next document id. Identical sources are kept
// side by side.
func (m *MemoryIndex) Insert(e Entry) DocID {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := begin(m.current.Load())
	u := newUnit(t.next.nextID, e, m.now())
	t.add(u)
	m.current.Store(t.next)
	m.logger.Debug("unit inserted", "doc_id", u.ID, "tokens", len(u.tokens))
	return u.ID
}

// InsertBatch stores all entries in one mutation. Readers see either none
// or all of them.
func (m *MemoryIndex) InsertBatch(entries []Entry) []DocID {
	if len(entries) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := begin(m.current.Load())
	now := m.now()
	ids := make([]DocID, len(entries))
	for i, e := range entries {
		u := newUnit(t.next.nextID, e, now)
		t.add(u)
		ids[i] = u.ID
	}
	m.current.Store(t.next)
	m.logger.Debug("units inserted", "count", len(ids), "first_doc_id", ids[0])
	return ids
}

// InsertUnique inserts e unless a unit with the same source fragment and
// locale pair already exists.
func (m *MemoryIndex) InsertUnique(e Entry) (DocID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.current.Load()
	u := newUnit(cur.nextID, e, m.now())
	if dup := cur.findSameSource(e, u); len(dup) > 0 {
		return 0, apperrors.Newf(apperrors.ErrDuplicateNotAllowed, http.StatusConflict,
			"source already stored as document %d", dup[0])
	}
	t := begin(cur)
	t.add(u)
	m.current.Store(t.next)
	return u.ID, nil
}

// InsertOverwrite removes every unit with the same source fragment and
// locale pair, then inserts e, all in one mutation.
func (m *MemoryIndex) InsertOverwrite(e Entry) (DocID, []DocID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.current.Load()
	u := newUnit(cur.nextID, e, m.now())
	replaced := cur.findSameSource(e, u)
	t := begin(cur)
	for _, id := range replaced {
		t.remove(id)
	}
	t.add(u)
	m.current.Store(t.next)
	if len(replaced) > 0 {
		m.logger.Debug("units overwritten", "doc_id", u.ID, "replaced", replaced)
	}
	return u.ID, replaced
}

// Remove deletes the unit and its postings. Unknown ids are ignored; the
// return value reports whether anything was removed.
func (m *MemoryIndex) Remove(id DocID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.current.Load()
	if cur.lookup(id) == nil {
		return false
	}
	t := begin(cur)
	t.remove(id)
	m.current.Store(t.next)
	m.logger.Debug("unit removed", "doc_id", id)
	return true
}

// Update replaces the unit stored under id with e. The replacement gets a
// new id, which is returned.
func (m *MemoryIndex) Update(id DocID, e Entry) (DocID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.current.Load()
	if cur.lookup(id) == nil {
		return 0, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "document %d", id)
	}
	t := begin(cur)
	t.remove(id)
	u := newUnit(t.next.nextID, e, m.now())
	t.add(u)
	m.current.Store(t.next)
	return u.ID, nil
}

func (m *MemoryIndex) PostingsFor(term string) []Posting {
	return m.Snapshot().PostingsFor(term)
}

func (m *MemoryIndex) UnitFor(id DocID) (*Unit, error) {
	return m.Snapshot().Unit(id)
}

func (m *MemoryIndex) DocCount() int {
	return m.Snapshot().Len()
}

// Record is a unit as persisted: its id, creation time and content.
type Record struct {
	ID        DocID     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Entry
}

// Records returns the persisted form of every live unit.
func (s *Snapshot) Records() []Record {
	units := s.Units()
	out := make([]Record, len(units))
	for i, u := range units {
		out[i] = Record{ID: u.ID, CreatedAt: u.CreatedAt, Entry: u.Entry()}
	}
	return out
}

// Restore replaces the whole index content. Records must be in strictly
// ascending id order and below nextID.
func (m *MemoryIndex) Restore(records []Record, nextID DocID, generation uint64) error {
	var last DocID
	for _, r := range records {
		if r.ID <= last {
			return fmt.Errorf("restoring index: document %d out of order", r.ID)
		}
		if r.ID >= nextID {
			return fmt.Errorf("restoring index: document %d not below next id %d", r.ID, nextID)
		}
		last = r.ID
	}

	s := emptySnapshot()
	t := &txn{next: s}
	for _, r := range records {
		for DocID(len(s.units))+1 < r.ID {
			s.units = append(s.units, nil)
		}
		t.next.nextID = r.ID
		t.add(newUnit(r.ID, r.Entry, r.CreatedAt))
	}
	for DocID(len(s.units))+1 < nextID {
		s.units = append(s.units, nil)
	}
	s.nextID = nextID
	s.generation = generation

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Store(s)
	m.logger.Info("index restored", "units", s.live, "next_doc_id", nextID, "generation", generation)
	return nil
}

// Reset drops every unit. Document ids keep increasing.
func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.current.Load()
	s := emptySnapshot()
	s.nextID = cur.nextID
	s.generation = cur.generation + 1
	s.units = make([]*Unit, len(cur.units))
	m.current.Store(s)
}
