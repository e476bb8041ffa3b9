// Package merger combines ranked hit lists from several translation
// memories into one list.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/ranker"
)

// Merge performs a k-way merge of lists that are each already ordered by
// ranker.Compare. Ties on score go to the earlier list, then the lower
// document id. Hits whose source and target, inline codes included, repeat
// an earlier hit are dropped. limit <= 0 keeps everything.
func Merge(lists [][]ranker.Hit, limit int) []ranker.Hit {
	h := make(cursorHeap, 0, len(lists))
	total := 0
	for i, l := range lists {
		total += len(l)
		if len(l) > 0 {
			h = append(h, cursor{list: i, hits: l})
		}
	}
	heap.Init(&h)

	if limit > 0 && limit < total {
		total = limit
	}
	out := make([]ranker.Hit, 0, total)
	seen := make(map[dedupeKey]struct{}, total)
	for h.Len() > 0 {
		c := &h[0]
		hit := c.hits[0]
		c.hits = c.hits[1:]
		if len(c.hits) == 0 {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}

		k := keyOf(hit)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, hit)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

type dedupeKey struct {
	source string
	target string
}

func keyOf(h ranker.Hit) dedupeKey {
	return dedupeKey{source: h.Source.String(), target: h.Target.String()}
}

type cursor struct {
	list int
	hits []ranker.Hit
}

type cursorHeap []cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].hits[0], h[j].hits[0]
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if h[i].list != h[j].list {
		return h[i].list < h[j].list
	}
	return a.DocID < b.DocID
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) {
	*h = append(*h, x.(cursor))
}

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
