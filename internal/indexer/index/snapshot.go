package index

import (
	"maps"
	"net/http"

	"github.com/cespare/xxhash/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

const shardCount = 64

type shard map[string][]Posting

func shardOf(term string) int {
	return int(xxhash.Sum64String(term) % shardCount)
}

// Snapshot is an immutable view of the index. Readers may hold one for as
// long as they like; later mutations publish new snapshots and never touch
// this one.
type Snapshot struct {
	generation uint64
	nextID     DocID
	live       int
	units      []*Unit
	shards     [shardCount]shard
}

func emptySnapshot() *Snapshot {
	return &Snapshot{nextID: 1}
}

// Generation increases by one for every mutation.
func (s *Snapshot) Generation() uint64 { return s.generation }

// NextID is the id the next insert will receive.
func (s *Snapshot) NextID() DocID { return s.nextID }

// Len returns the number of live units.
func (s *Snapshot) Len() int { return s.live }

// TermCount returns the number of distinct terms with postings.
func (s *Snapshot) TermCount() int {
	n := 0
	for _, sh := range s.shards {
		n += len(sh)
	}
	return n
}

// PostingsFor returns the postings of term in ascending document then
// position order. An unknown term yields an empty list. The returned slice
// must not be modified.
func (s *Snapshot) PostingsFor(term string) []Posting {
	p := s.shards[shardOf(term)][term]
	return p[:len(p):len(p)]
}

// Unit returns the stored unit for id.
func (s *Snapshot) Unit(id DocID) (*Unit, error) {
	if u := s.lookup(id); u != nil {
		return u, nil
	}
	return nil, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "document %d", id)
}

func (s *Snapshot) lookup(id DocID) *Unit {
	if id == 0 || int(id) > len(s.units) {
		return nil
	}
	return s.units[id-1]
}

// Units returns every live unit in id order.
func (s *Snapshot) Units() []*Unit {
	out := make([]*Unit, 0, s.live)
	for _, u := range s.units {
		if u != nil {
			out = append(out, u)
		}
	}
	return out
}

// findSameSource returns the ids of live units whose source fragment and
// locale pair match e.
func (s *Snapshot) findSameSource(e Entry, probe *Unit) []DocID {
	var ids []DocID
	if len(probe.tokens) == 0 {
		for _, u := range s.units {
			if u != nil && u.sameSource(e, probe.fingerprint) {
				ids = append(ids, u.ID)
			}
		}
		return ids
	}

	rarest := s.PostingsFor(probe.tokens[0].Term)
	for _, tok := range probe.tokens[1:] {
		if p := s.PostingsFor(tok.Term); len(p) < len(rarest) {
			rarest = p
		}
	}
	var last DocID
	for _, p := range rarest {
		if p.DocID == last {
			continue
		}
		last = p.DocID
		if u := s.lookup(p.DocID); u != nil && u.sameSource(e, probe.fingerprint) {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

// txn builds the next snapshot. Shards are cloned the first time a
// mutation touches them, so untouched shards stay shared.
type txn struct {
	next   *Snapshot
	cloned [shardCount]bool
	units  bool
}

func begin(cur *Snapshot) *txn {
	next := *cur
	next.generation++
	return &txn{next: &next}
}

func (t *txn) shard(term string) shard {
	i := shardOf(term)
	if !t.cloned[i] {
		if t.next.shards[i] == nil {
			t.next.shards[i] = make(shard)
		} else {
			t.next.shards[i] = maps.Clone(t.next.shards[i])
		}
		t.cloned[i] = true
	}
	return t.next.shards[i]
}

// add appends u. u.ID must equal next.nextID.
func (t *txn) add(u *Unit) {
	t.next.units = append(t.next.units, u)
	t.next.nextID = u.ID + 1
	t.next.live++
	for _, tok := range u.tokens {
		sh := t.shard(tok.Term)
		sh[tok.Term] = append(sh[tok.Term], Posting{DocID: u.ID, Position: tok.Position})
	}
}

func (t *txn) remove(id DocID) *Unit {
	u := t.next.lookup(id)
	if u == nil {
		return nil
	}
	if !t.units {
		t.next.units = append([]*Unit(nil), t.next.units...)
		t.units = true
	}
	t.next.units[id-1] = nil
	t.next.live--

	seen := make(map[string]struct{}, len(u.tokens))
	for _, tok := range u.tokens {
		if _, ok := seen[tok.Term]; ok {
			continue
		}
		seen[tok.Term] = struct{}{}
		sh := t.shard(tok.Term)
		old := sh[tok.Term]
		kept := make([]Posting, 0, len(old))
		for _, p := range old {
			if p.DocID != id {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(sh, tok.Term)
			continue
		}
		sh[tok.Term] = kept
	}
	return u
}
