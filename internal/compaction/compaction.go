// Package compaction implements whole-level merge compaction (spec
// §4.E.4/§9): every table of one level is merged with the table of the
// next level, always consuming the entirety of both input levels and
// producing at most one output table. The engine calls this only to
// merge level 0 (which may hold several overlapping tables) into level
// 1; levels >= 1 are not merged further down. Tombstones survive every
// merge except one that writes into the deepest configured level, where
// they are dropped.
package compaction

import (
	"fmt"
	"path/filepath"

	"github.com/anchorkv/lsmkv/internal/merge"
	"github.com/anchorkv/lsmkv/internal/sstable"
	"github.com/cockroachdb/errors"
)

// MergeLevel merges the tables in oldLevel (priority order, newest
// first — as returned by level.Manager.Tables(0)) with the single table
// in targetLevel (if any) and writes the result as one new Sorted Table
// under dir using seq as its file sequence number, targeting
// blockSizeBytes per data block (the engine's configured
// Options.BlockSizeBytes, so compacted tables honor the same block size
// as flushed ones). dropTombstones should be true only when
// targetLevel is the deepest configured level. A nil result with a nil
// error means the merge produced no entries (every input key was
// tombstoned away) and nothing was written to disk.
func MergeLevel(dir string, oldLevel []*sstable.Reader, target *sstable.Reader, targetLevelNum int, seq uint64, dropTombstones bool, blockSizeBytes int) (*sstable.Reader, error) {
	if len(oldLevel) == 0 && target == nil {
		return nil, nil
	}

	var sources []merge.Source
	priority := 0
	for _, r := range oldLevel {
		sources = append(sources, merge.Source{Iter: r.Iterator(), Priority: priority})
		priority++
	}
	if target != nil {
		sources = append(sources, merge.Source{Iter: target.Iterator(), Priority: priority})
	}

	m := merge.New(sources, dropTombstones)

	estimate := 0
	for _, r := range oldLevel {
		estimate += r.EntryCount()
	}
	if target != nil {
		estimate += target.EntryCount()
	}
	if estimate < 1 {
		estimate = 1
	}

	path := filepath.Join(dir, fmt.Sprintf("level%d_%d.st", targetLevelNum, seq))
	w, err := sstable.NewWriter(path, blockSizeBytes, estimate)
	if err != nil {
		return nil, errors.Wrap(err, "compaction: open writer")
	}

	wrote := false
	for m.Next() {
		e := m.Entry()
		if err := w.Add(e.Key, e.Value, e.Tombstone); err != nil {
			_ = w.Abort()
			return nil, errors.Wrap(err, "compaction: write entry")
		}
		wrote = true
	}
	if err := m.Err(); err != nil {
		_ = w.Abort()
		return nil, errors.Wrap(err, "compaction: merge sources")
	}

	if !wrote {
		_ = w.Abort()
		return nil, nil
	}

	if err := w.Finish(); err != nil {
		return nil, errors.Wrap(err, "compaction: finish table")
	}

	r, err := sstable.Open(path, targetLevelNum, seq)
	if err != nil {
		return nil, errors.Wrap(err, "compaction: reopen merged table")
	}
	return r, nil
}
