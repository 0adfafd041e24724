// Package memtable implements the ordered in-memory write buffer (spec
// component A): a sorted key→value-or-tombstone map with range iteration
// and a running approximate byte size used by the engine to decide when
// to flush.
package memtable

import "github.com/anchorkv/lsmkv/internal/kv"

// entryOverhead approximates the bookkeeping cost of a skip-list node
// (key/value headers, forward pointers) beyond the raw key/value bytes.
const entryOverhead = 24

// MemTable is an ordered mapping from key to value-or-tombstone, with a
// tracked approximate byte size (spec §3/§4.A). It is not safe for
// concurrent use — the engine is its only caller and never calls it from
// more than one goroutine at a time.
type MemTable struct {
	skl   *skipList
	bytes int
}

func New() *MemTable {
	return &MemTable{skl: newSkipList()}
}

func sizeOf(key string, value []byte) int {
	return len(key) + len(value) + entryOverhead
}

// Set inserts or overwrites key with value. The prior entry's
// contribution to ApproxBytes, if any, is subtracted first.
func (m *MemTable) Set(key string, value []byte) {
	entry := kv.Entry{Key: key, Value: value}
	prev, existed := m.skl.set(key, entry)
	if existed {
		m.bytes -= sizeOf(prev.Key, prev.Value)
	}
	m.bytes += sizeOf(key, value)
}

// Delete stores a tombstone for key.
func (m *MemTable) Delete(key string) {
	entry := kv.Entry{Key: key, Tombstone: true}
	prev, existed := m.skl.set(key, entry)
	if existed {
		m.bytes -= sizeOf(prev.Key, prev.Value)
	}
	m.bytes += sizeOf(key, nil)
}

// Get returns the entry for key, if any. The returned bool is false only
// when the key is absent entirely; a tombstone is returned as a present
// entry with Tombstone set, per spec §3 ("Tombstone... participates in
// ordering... like any other value").
func (m *MemTable) Get(key string) (kv.Entry, bool) {
	return m.skl.get(key)
}

// Range returns entries with lo <= key <= hi in ascending order,
// including tombstones (suppression is the caller's responsibility, per
// the reader/engine split described in spec §4.D).
func (m *MemTable) Range(lo, hi string) []kv.Entry {
	return m.skl.rang(lo, hi)
}

// All returns every entry in ascending key order, tombstones included.
func (m *MemTable) All() []kv.Entry {
	return m.skl.all()
}

// ApproxBytes returns the running approximate live-memory size used to
// trigger flush.
func (m *MemTable) ApproxBytes() int {
	return m.bytes
}

// Len returns the number of entries (including tombstones), reported via
// Engine.Stats.
func (m *MemTable) Len() int {
	return m.skl.len()
}
