// Package merge implements the n-way merge used by both Range reads
// (spec §4.E.6) and compaction (spec §4.E.4): several ascending
// kv.Iterator sources are combined into a single ascending stream,
// resolving duplicate keys by picking the entry from the
// highest-priority source (lowest Priority value), per the recency
// order in spec §3 (MemTable > L0 newest-to-oldest > L1 > L2 > ...).
package merge

import (
	"container/heap"

	"github.com/anchorkv/lsmkv/internal/kv"
)

// Source pairs an iterator with its recency priority. Lower Priority
// values win ties on the same key.
type Source struct {
	Iter     kv.Iterator
	Priority int
}

type heapItem struct {
	entry    kv.Entry
	iter     kv.Iterator
	priority int
}

type mergeHeap []heapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].entry.Key != h[j].entry.Key {
		return h[i].entry.Key < h[j].entry.Key
	}
	return h[i].priority < h[j].priority
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)        { *h = append(*h, x.(heapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Merger walks a priority-ordered set of sources in ascending key
// order, yielding exactly one entry per distinct key: the one from the
// source with the lowest Priority value. It implements kv.Iterator so
// callers (Range, compaction) can treat it like any other source.
type Merger struct {
	h              mergeHeap
	dropTombstones bool
	cur            kv.Entry
	err            error
	started        bool
}

// New builds a Merger over sources. If dropTombstones is true, entries
// with Tombstone set are skipped entirely rather than surfaced — used
// by compaction into the deepest level (spec §4.E.4/§9).
func New(sources []Source, dropTombstones bool) *Merger {
	m := &Merger{dropTombstones: dropTombstones}
	for _, s := range sources {
		if s.Iter.Next() {
			m.h = append(m.h, heapItem{entry: s.Iter.Entry(), iter: s.Iter, priority: s.Priority})
		}
	}
	heap.Init(&m.h)
	return m
}

// Next advances to the next distinct key, skipping duplicate and
// (if configured) tombstone entries. Returns false at end of stream or
// on error.
func (m *Merger) Next() bool {
	if m.err != nil {
		return false
	}
	for m.h.Len() > 0 {
		top := heap.Pop(&m.h).(heapItem)
		m.refill(top)

		// Drain any other sources' entries for the same key: the
		// surfaced entry is always the lowest-Priority-value (newest) one,
		// which was popped first since priority is the heap tiebreak.
		for m.h.Len() > 0 && m.h[0].entry.Key == top.entry.Key {
			dup := heap.Pop(&m.h).(heapItem)
			m.refill(dup)
		}

		if m.dropTombstones && top.entry.Tombstone {
			continue
		}
		m.cur = top.entry
		m.started = true
		return true
	}
	return false
}

func (m *Merger) refill(popped heapItem) {
	if popped.iter.Next() {
		heap.Push(&m.h, heapItem{entry: popped.iter.Entry(), iter: popped.iter, priority: popped.priority})
		return
	}
	if err := popped.iter.Err(); err != nil && m.err == nil {
		m.err = err
	}
}

func (m *Merger) Entry() kv.Entry { return m.cur }
func (m *Merger) Err() error      { return m.err }
func (m *Merger) Close() error    { return nil }
