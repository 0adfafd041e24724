// Package lsmkv is an embedded, single-process, ordered key-value
// storage engine built on the Log-Structured Merge-Tree pattern: a
// write-ahead log and in-memory buffer absorb writes, which are
// periodically flushed to immutable sorted files organized into
// levels and merged back together by compaction.
package lsmkv

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anchorkv/lsmkv/internal/compaction"
	"github.com/anchorkv/lsmkv/internal/kv"
	"github.com/anchorkv/lsmkv/internal/level"
	"github.com/anchorkv/lsmkv/internal/memtable"
	"github.com/anchorkv/lsmkv/internal/merge"
	"github.com/anchorkv/lsmkv/internal/sstable"
	"github.com/anchorkv/lsmkv/internal/wal"
)

const walFileName = "wal.log"

var sstNamePattern = regexp.MustCompile(`^level(\d+)_(\d+)\.st$`)

// Engine is the top-level handle spec §4.E describes: MemTable, WAL,
// per-level table lists, a monotonic file sequence counter, and
// configuration. It is single-threaded and synchronous (spec §5): every
// operation, including flush and compaction, runs to completion on the
// calling goroutine before returning. Callers must not share an Engine
// across goroutines without external synchronization.
type Engine struct {
	dir        string
	instanceID uuid.UUID
	opts       Options
	logger     *zap.Logger
	closed     bool

	mem     *memtable.MemTable
	w       *wal.WAL
	levels  *level.Manager
	nextSeq uint64
	walSeq  uint64

	stats Stats
}

// InstanceID returns the random identifier generated for this open
// session, useful for correlating log lines across engine instances
// run side by side (e.g. one per cmd/lsmbench worker).
func (e *Engine) InstanceID() uuid.UUID { return e.instanceID }

// Open creates the data directory if needed, recovers any existing
// Sorted Tables and WAL, and returns a ready Engine (spec §4.E.1).
func Open(dir string, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "lsmkv: create data directory")
	}

	e := &Engine{
		dir:        dir,
		instanceID: uuid.New(),
		opts:       opts,
		logger:     opts.Logger,
		levels:     level.New(opts.LevelsMax - 1),
		mem:        memtable.New(),
	}

	maxSeq, err := e.loadTables()
	if err != nil {
		return nil, err
	}
	e.nextSeq = maxSeq + 1

	walPath := filepath.Join(dir, walFileName)
	recovering := wal.Exists(walPath)
	w, err := wal.Open(walPath, e.logger)
	if err != nil {
		return nil, errors.Wrap(err, "lsmkv: open WAL")
	}
	e.w = w

	records, err := w.Replay()
	if err != nil {
		return nil, errors.Wrap(err, "lsmkv: replay WAL")
	}
	for _, rec := range records {
		if rec.Deleted {
			e.mem.Delete(rec.Key)
		} else {
			e.mem.Set(rec.Key, rec.Value)
		}
	}

	e.logger.Info("lsmkv engine opened",
		zap.String("dir", dir),
		zap.String("instance_id", e.instanceID.String()),
		zap.Bool("recovered_wal", recovering),
		zap.Int("replayed_records", len(records)),
		zap.Uint64("next_seq", e.nextSeq),
	)
	return e, nil
}

// loadTables enumerates level<L>_<seq>.st files and opens a reader for
// each (spec §4.E.1 step 2). Level 0 keeps every table found; each
// level >= 1 keeps a single table, so no min-key sort is done. Files
// with a bad footer are fatal per spec §7: the engine does not silently
// drop a level.
func (e *Engine) loadTables() (uint64, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return 0, errors.Wrap(err, "lsmkv: read data directory")
	}

	type found struct {
		level int
		seq   uint64
		path  string
	}
	var files []found
	var maxSeq uint64

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		m := sstNamePattern.FindStringSubmatch(ent.Name())
		if m == nil {
			continue
		}
		lvl, _ := strconv.Atoi(m[1])
		seq, _ := strconv.ParseUint(m[2], 10, 64)
		if lvl > e.levels.Max() {
			continue
		}
		files = append(files, found{level: lvl, seq: seq, path: filepath.Join(e.dir, ent.Name())})
		if seq > maxSeq {
			maxSeq = seq
		}
	}

	// Add prepends for L0, so feeding it ascending-seq order leaves
	// Tables(0) newest-first after the loop, matching the runtime flush
	// path. For deeper levels Add replaces rather than appends, so if
	// more than one table is found at such a level, the one with the
	// highest sequence number is the one kept.
	sort.Slice(files, func(i, j int) bool {
		if files[i].level != files[j].level {
			return files[i].level < files[j].level
		}
		return files[i].seq < files[j].seq
	})

	for _, f := range files {
		r, err := sstable.Open(f.path, f.level, f.seq)
		if err != nil {
			wrapped := errors.Wrapf(err, "lsmkv: open sstable %s", f.path)
			return 0, errors.Mark(wrapped, ErrCorrupt)
		}
		e.levels.Add(f.level, r)
	}
	return maxSeq, nil
}

func sstablePath(dir string, lvl int, seq uint64) string {
	return filepath.Join(dir, fmt.Sprintf("level%d_%d.st", lvl, seq))
}

// Set inserts or overwrites key with value. Durable on return: the WAL
// append is fsync'd before the MemTable is mutated and before Set
// returns (spec §4.E.2, §8 property 3).
func (e *Engine) Set(key string, value []byte) error {
	if e.closed {
		return ErrClosed
	}
	if key == "" {
		return ErrKeyEmpty
	}

	if err := e.w.AppendSet(key, value, e.nextWalSeq()); err != nil {
		return errors.Wrap(err, "lsmkv: append WAL set")
	}
	e.mem.Set(key, value)
	e.stats.WriteCount++

	if e.mem.ApproxBytes() >= e.opts.MemTableMaxBytes {
		if err := e.flush(); err != nil {
			return err
		}
	}
	return nil
}

// Delete records a tombstone for key (spec §4.E.2).
func (e *Engine) Delete(key string) error {
	if e.closed {
		return ErrClosed
	}
	if key == "" {
		return ErrKeyEmpty
	}

	if err := e.w.AppendDelete(key, e.nextWalSeq()); err != nil {
		return errors.Wrap(err, "lsmkv: append WAL delete")
	}
	e.mem.Delete(key)
	e.stats.WriteCount++

	if e.mem.ApproxBytes() >= e.opts.MemTableMaxBytes {
		if err := e.flush(); err != nil {
			return err
		}
	}
	return nil
}

// nextWalSeq is a monotonic, informational record sequence distinct
// from the file sequence counter; the WAL format carries it as the
// "ts"-equivalent field (spec §6 calls the reference field ts, used
// here purely as an ordering aid for diagnostics, not for recency).
func (e *Engine) nextWalSeq() uint64 {
	e.walSeq++
	return e.walSeq
}

// Get returns the value for key, or (nil, false) if absent — including
// when the key was explicitly deleted (spec §4.E.5).
func (e *Engine) Get(key string) ([]byte, bool, error) {
	if e.closed {
		return nil, false, ErrClosed
	}
	if key == "" {
		return nil, false, ErrKeyEmpty
	}
	e.stats.ReadCount++

	if entry, ok := e.mem.Get(key); ok {
		if entry.Tombstone {
			return nil, false, nil
		}
		return entry.Value, true, nil
	}

	for _, r := range e.levels.Tables(0) {
		entry, found, err := r.Get(key)
		if err != nil {
			return nil, false, errors.Wrap(err, "lsmkv: read level 0")
		}
		if found {
			if entry.Tombstone {
				return nil, false, nil
			}
			return entry.Value, true, nil
		}
	}

	for lvl := 1; lvl <= e.levels.Max(); lvl++ {
		for _, r := range e.levels.Tables(lvl) {
			if !r.Overlaps(key, key) {
				continue
			}
			entry, found, err := r.Get(key)
			if err != nil {
				return nil, false, errors.Wrapf(err, "lsmkv: read level %d", lvl)
			}
			if found {
				if entry.Tombstone {
					return nil, false, nil
				}
				return entry.Value, true, nil
			}
		}
	}
	return nil, false, nil
}

// Range returns live entries with lo <= key <= hi in ascending order,
// tombstones suppressed (spec §4.E.6). It collects each source's
// in-range entries (the MemTable and every overlapping table) and
// combines them with a priority-ordered k-way merge, rather than
// overlaying per-level results one level at a time.
func (e *Engine) Range(lo, hi string) ([]kv.Entry, error) {
	if e.closed {
		return nil, ErrClosed
	}
	e.stats.ReadCount++

	var sources []merge.Source
	priority := 0

	memEntries := e.mem.Range(lo, hi)
	sources = append(sources, merge.Source{Iter: kv.NewSliceIterator(memEntries), Priority: priority})
	priority++

	for _, r := range e.levels.Tables(0) {
		entries, err := r.Range(lo, hi)
		if err != nil {
			return nil, errors.Wrap(err, "lsmkv: range level 0")
		}
		sources = append(sources, merge.Source{Iter: kv.NewSliceIterator(entries), Priority: priority})
		priority++
	}

	for lvl := 1; lvl <= e.levels.Max(); lvl++ {
		for _, r := range e.levels.Tables(lvl) {
			if !r.Overlaps(lo, hi) {
				continue
			}
			entries, err := r.Range(lo, hi)
			if err != nil {
				return nil, errors.Wrapf(err, "lsmkv: range level %d", lvl)
			}
			sources = append(sources, merge.Source{Iter: kv.NewSliceIterator(entries), Priority: priority})
		}
		priority++
	}

	m := merge.New(sources, true)
	var out []kv.Entry
	for m.Next() {
		out = append(out, m.Entry())
	}
	if err := m.Err(); err != nil {
		return nil, errors.Wrap(err, "lsmkv: merge range sources")
	}
	return out, nil
}

// flush streams the MemTable into a new Level-0 Sorted Table, installs
// it, replaces the WAL, and compacts L0 into L1 if L0 now holds at least
// Level0MaxFiles tables (spec §4.E.3).
func (e *Engine) flush() error {
	entries := e.mem.All()
	if len(entries) == 0 {
		return nil
	}

	seq := e.nextSeq
	e.nextSeq++
	path := sstablePath(e.dir, 0, seq)

	w, err := sstable.NewWriter(path, e.opts.BlockSizeBytes, len(entries))
	if err != nil {
		return errors.Wrap(err, "lsmkv: open sstable writer for flush")
	}
	for _, ent := range entries {
		if err := w.Add(ent.Key, ent.Value, ent.Tombstone); err != nil {
			_ = w.Abort()
			return errors.Wrap(err, "lsmkv: write flushed entry")
		}
	}
	if err := w.Finish(); err != nil {
		return errors.Wrap(err, "lsmkv: finish flushed sstable")
	}

	r, err := sstable.Open(path, 0, seq)
	if err != nil {
		return errors.Wrap(err, "lsmkv: open flushed sstable")
	}
	e.levels.Add(0, r)
	e.stats.FlushCount++

	e.mem = memtable.New()

	if err := e.w.Remove(); err != nil {
		return errors.Wrap(err, "lsmkv: truncate WAL after flush")
	}
	newWAL, err := wal.Open(filepath.Join(e.dir, walFileName), e.logger)
	if err != nil {
		return errors.Wrap(err, "lsmkv: open fresh WAL")
	}
	e.w = newWAL

	e.logger.Info("memtable flushed",
		zap.Uint64("seq", seq),
		zap.Int("entries", len(entries)),
	)

	if e.levels.ShouldCompactL0(e.opts.Level0MaxFiles) {
		if err := e.compactLevel(0); err != nil {
			return err
		}
	}
	return nil
}

// compactLevel merges level lvl into lvl+1 (spec §4.E.4). Because every
// level >= 1 holds at most one table under the whole-level-merge policy
// (spec §9), a compaction into level n+1 always collapses it back down
// to a single file — there is nothing left to cascade into beyond that
// one merge, matching the reference's choice not to cascade explicitly.
func (e *Engine) compactLevel(lvl int) error {
	if lvl >= e.levels.Max() {
		return nil
	}
	target := lvl + 1
	dropTombstones := target == e.levels.Max()

	oldLevel := e.levels.Tables(lvl)
	var targetTable *sstable.Reader
	if ts := e.levels.Tables(target); len(ts) > 0 {
		targetTable = ts[0]
	}
	if len(oldLevel) == 0 && targetTable == nil {
		return nil
	}

	seq := e.nextSeq
	e.nextSeq++

	merged, err := compaction.MergeLevel(e.dir, oldLevel, targetTable, target, seq, dropTombstones, e.opts.BlockSizeBytes)
	if err != nil {
		return errors.Wrapf(err, "lsmkv: compact level %d into %d", lvl, target)
	}

	for _, r := range oldLevel {
		if err := r.Remove(); err != nil {
			e.logger.Warn("failed to remove compacted input", zap.String("path", r.Path()), zap.Error(err))
		}
	}
	if targetTable != nil {
		if err := targetTable.Remove(); err != nil {
			e.logger.Warn("failed to remove compacted target", zap.String("path", targetTable.Path()), zap.Error(err))
		}
	}

	e.levels.Replace(lvl, target, merged)
	e.stats.CompactCount++

	e.logger.Info("compaction complete",
		zap.Int("from_level", lvl),
		zap.Int("to_level", target),
		zap.Bool("produced_table", merged != nil),
	)

	return nil
}

// Compact manually compacts Level 0 into Level 1, useful for tests and
// operators who don't want to wait for the file-count trigger
// (supplemented operation, spec §4.E.4 + SPEC_FULL.md §7). It does
// nothing when Level 0 is empty, and deeper levels are not compacted.
func (e *Engine) Compact() error {
	if e.closed {
		return ErrClosed
	}
	if len(e.levels.Tables(0)) == 0 {
		return nil
	}
	return e.compactLevel(0)
}

// Stats returns the engine's current counters (spec §6).
func (e *Engine) Stats() Stats {
	s := e.stats
	s.MemtableBytes = e.mem.ApproxBytes()
	s.MemtableEntries = e.mem.Len()
	s.PerLevelFileCounts = e.levels.FileCounts()
	s.PerLevelEntryCounts = e.levels.EntryCounts()
	return s
}

// Close closes the WAL and releases every reader handle (spec §4.E.7).
// On-disk state is left as-is; a subsequent Open replays the WAL and
// reconstructs the levels unchanged.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if err := e.w.Sync(); err != nil {
		firstErr = errors.Wrap(err, "lsmkv: sync WAL")
	}
	if err := e.w.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "lsmkv: close WAL")
	}
	if err := e.levels.CloseAll(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "lsmkv: close level readers")
	}
	return firstErr
}
