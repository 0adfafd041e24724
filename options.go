package lsmkv

import (
	"go.uber.org/zap"

	"github.com/cockroachdb/errors"
)

// Options configures an Engine (spec §6). Zero-value fields are filled
// in by DefaultOptions; Open applies DefaultOptions to any field left
// at its zero value rather than requiring callers to specify every
// field themselves.
type Options struct {
	// MemTableMaxBytes is the MemTable flush threshold.
	MemTableMaxBytes int
	// Level0MaxFiles is the compaction trigger for Level 0.
	Level0MaxFiles int
	// LevelsMax is the number of levels; tombstones are dropped only at
	// depth LevelsMax-1.
	LevelsMax int
	// BlockSizeBytes is the Sorted Table block target size.
	BlockSizeBytes int
	// Logger receives structured diagnostics (WAL corruption, flush and
	// compaction progress). Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultOptions returns the reference defaults from spec §6.
func DefaultOptions() Options {
	return Options{
		MemTableMaxBytes: 4 * 1024 * 1024,
		Level0MaxFiles:   4,
		LevelsMax:        7,
		BlockSizeBytes:   4096,
		Logger:           zap.NewNop(),
	}
}

// withDefaults fills any zero-valued field with the reference default.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MemTableMaxBytes <= 0 {
		o.MemTableMaxBytes = d.MemTableMaxBytes
	}
	if o.Level0MaxFiles <= 0 {
		o.Level0MaxFiles = d.Level0MaxFiles
	}
	if o.LevelsMax <= 0 {
		o.LevelsMax = d.LevelsMax
	}
	if o.BlockSizeBytes <= 0 {
		o.BlockSizeBytes = d.BlockSizeBytes
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}

// Validate reports a usage error for any option outside its sane range.
func (o Options) Validate() error {
	if o.MemTableMaxBytes <= 0 {
		return errors.Newf("lsmkv: MemTableMaxBytes must be positive, got %d", o.MemTableMaxBytes)
	}
	if o.Level0MaxFiles <= 0 {
		return errors.Newf("lsmkv: Level0MaxFiles must be positive, got %d", o.Level0MaxFiles)
	}
	if o.LevelsMax < 2 {
		return errors.Newf("lsmkv: LevelsMax must be at least 2, got %d", o.LevelsMax)
	}
	if o.BlockSizeBytes <= 0 {
		return errors.Newf("lsmkv: BlockSizeBytes must be positive, got %d", o.BlockSizeBytes)
	}
	return nil
}
