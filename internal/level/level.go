// Package level tracks which Sorted Tables live at which level of the
// tree, per spec §3/§4.F. It is a plain, single-threaded registry: the
// engine is the only caller and is itself synchronous (spec §5), so
// unlike the teacher's LevelManager this one carries no mutex.
package level

import (
	"github.com/anchorkv/lsmkv/internal/sstable"
)

// Manager holds, for each level 0..Max, the tables currently resident
// there. L0 may hold multiple overlapping tables ordered newest-first;
// every level >= 1 holds at most one table spanning the whole key space
// (the whole-level-merge policy from spec §9).
type Manager struct {
	levels [][]*sstable.Reader
}

// New creates a Manager with levels 0..max inclusive (max+1 levels).
func New(max int) *Manager {
	return &Manager{levels: make([][]*sstable.Reader, max+1)}
}

// Max returns the deepest level index.
func (m *Manager) Max() int { return len(m.levels) - 1 }

// Add installs a table at level. For L0 it is prepended so index 0 is
// always the newest file; for level >= 1 it replaces whatever table was
// there, since each such level holds at most one table at a time.
func (m *Manager) Add(lvl int, r *sstable.Reader) {
	if lvl == 0 {
		m.levels[0] = append([]*sstable.Reader{r}, m.levels[0]...)
		return
	}
	m.levels[lvl] = []*sstable.Reader{r}
}

// Tables returns the tables at lvl, newest first for L0.
func (m *Manager) Tables(lvl int) []*sstable.Reader {
	return m.levels[lvl]
}

// Replace clears source (whose tables a compaction just consumed) and
// installs merged as the sole table at target, or clears target too if
// the merge produced no output (every input key was tombstoned away).
func (m *Manager) Replace(source, target int, merged *sstable.Reader) {
	m.levels[source] = nil
	if merged != nil {
		m.levels[target] = []*sstable.Reader{merged}
	} else {
		m.levels[target] = nil
	}
}

// ShouldCompactL0 reports whether L0 has reached its file-count trigger.
func (m *Manager) ShouldCompactL0(maxFiles int) bool {
	return len(m.levels[0]) >= maxFiles
}

// FileCounts returns the number of tables at each level, for Stats().
func (m *Manager) FileCounts() []int {
	counts := make([]int, len(m.levels))
	for i, lvl := range m.levels {
		counts[i] = len(lvl)
	}
	return counts
}

// EntryCounts returns the approximate entry count at each level, for
// Stats(). Entry counts include tombstones still pending collection.
func (m *Manager) EntryCounts() []int {
	counts := make([]int, len(m.levels))
	for i, lvl := range m.levels {
		for _, r := range lvl {
			counts[i] += r.EntryCount()
		}
	}
	return counts
}

// CloseAll closes every table at every level.
func (m *Manager) CloseAll() error {
	var firstErr error
	for _, lvl := range m.levels {
		for _, r := range lvl {
			if err := r.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
