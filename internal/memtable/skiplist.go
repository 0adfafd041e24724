package memtable

import (
	"math"
	"math/rand"

	"github.com/anchorkv/lsmkv/internal/kv"
)

// A single-threaded skip list keyed by string, holding one kv.Entry per
// key. Adapted from the towered, randomized-height design used by
// concurrent, arena-backed skip lists in the wild (lock-free CAS chains,
// precomputed level probabilities) but stripped of atomics and the arena:
// the memtable is only ever touched by the engine's single calling
// goroutine, so a plain pointer-chasing structure is simpler and just as
// fast here.
const (
	maxHeight = 16
	pValue    = 1 / math.E
)

type node struct {
	key     string
	entry   kv.Entry
	forward []*node
}

type skipList struct {
	head   *node
	height int
	rnd    *rand.Rand
}

func newSkipList() *skipList {
	return &skipList{
		head:   &node{forward: make([]*node, maxHeight)},
		height: 1,
		rnd:    rand.New(rand.NewSource(1)),
	}
}

func (s *skipList) randomHeight() int {
	h := 1
	for h < maxHeight && s.rnd.Float64() < pValue {
		h++
	}
	return h
}

// find locates, for each level, the last node whose key is < key. It
// returns those predecessor nodes and the first node (if any) whose key
// is >= key.
func (s *skipList) find(key string) (update [maxHeight]*node, next *node) {
	cur := s.head
	for level := s.height - 1; level >= 0; level-- {
		for cur.forward[level] != nil && cur.forward[level].key < key {
			cur = cur.forward[level]
		}
		update[level] = cur
	}
	next = cur.forward[0]
	return
}

// set inserts or overwrites the entry for key, returning the previous
// entry and whether one existed.
func (s *skipList) set(key string, entry kv.Entry) (prev kv.Entry, existed bool) {
	update, next := s.find(key)
	if next != nil && next.key == key {
		prev, existed = next.entry, true
		next.entry = entry
		return
	}

	height := s.randomHeight()
	if height > s.height {
		for level := s.height; level < height; level++ {
			update[level] = s.head
		}
		s.height = height
	}

	nd := &node{key: key, entry: entry, forward: make([]*node, height)}
	for level := 0; level < height; level++ {
		nd.forward[level] = update[level].forward[level]
		update[level].forward[level] = nd
	}
	return
}

func (s *skipList) get(key string) (kv.Entry, bool) {
	_, next := s.find(key)
	if next != nil && next.key == key {
		return next.entry, true
	}
	return kv.Entry{}, false
}

func (s *skipList) len() int {
	n := 0
	for cur := s.head.forward[0]; cur != nil; cur = cur.forward[0] {
		n++
	}
	return n
}

// all returns every entry in ascending key order.
func (s *skipList) all() []kv.Entry {
	var out []kv.Entry
	for cur := s.head.forward[0]; cur != nil; cur = cur.forward[0] {
		out = append(out, cur.entry)
	}
	return out
}

// rang returns entries with lo <= key <= hi (empty bound skips that side).
func (s *skipList) rang(lo, hi string) []kv.Entry {
	cur := s.head
	if lo != "" {
		for level := s.height - 1; level >= 0; level-- {
			for cur.forward[level] != nil && cur.forward[level].key < lo {
				cur = cur.forward[level]
			}
		}
	}
	cur = cur.forward[0]

	var out []kv.Entry
	for cur != nil {
		if hi != "" && cur.key > hi {
			break
		}
		out = append(out, cur.entry)
		cur = cur.forward[0]
	}
	return out
}
