package lsmkv

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBasicDurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, e.Set("user:1", []byte(`{"name":"Alice"}`)))
	require.NoError(t, e.Set("user:2", []byte(`{"name":"Bob"}`)))
	require.NoError(t, e.Set("counter", []byte("42")))
	require.NoError(t, e.Close())

	e2, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer e2.Close()

	v, ok, err := e2.Get("user:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"name":"Alice"}`, string(v))

	v, ok, err = e2.Get("counter")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "42", string(v))
}

func TestDeleteSurvivesCrash(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, e.Set("user:2", []byte("Bob")))
	require.NoError(t, e.Delete("user:2"))
	require.NoError(t, e.Close())

	e2, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer e2.Close()

	_, ok, err := e2.Get("user:2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFlushTriggersOnMemTableThreshold(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.MemTableMaxBytes = 2048
	e, err := Open(dir, opts)
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("data:%04d", i+10)
		value := make([]byte, 60)
		require.NoError(t, e.Set(key, value))
	}

	stats := e.Stats()
	require.Greater(t, stats.PerLevelFileCounts[0], 0)
}

func TestRangeAcrossMemTableAndTables(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.MemTableMaxBytes = 2048
	e, err := Open(dir, opts)
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("data:%04d", i+10)
		value := make([]byte, 60)
		require.NoError(t, e.Set(key, value))
	}

	entries, err := e.Range("data:0015", "data:0020")
	require.NoError(t, err)

	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	require.Equal(t, []string{
		"data:0015", "data:0016", "data:0017", "data:0018", "data:0019", "data:0020",
	}, keys)
}

func TestCompactionReducesFileCount(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.MemTableMaxBytes = 700
	opts.Level0MaxFiles = 3
	e, err := Open(dir, opts)
	require.NoError(t, err)
	defer e.Close()

	for flush := 0; flush < 3; flush++ {
		for i := 0; i < 10; i++ {
			key := fmt.Sprintf("k:%d:%03d", flush, i)
			require.NoError(t, e.Set(key, make([]byte, 40)))
		}
	}

	stats := e.Stats()
	require.Equal(t, 0, stats.PerLevelFileCounts[0])
	require.Equal(t, 1, stats.PerLevelFileCounts[1])
}

func TestTombstoneDroppedAtDeepestLevel(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.LevelsMax = 2
	opts.Level0MaxFiles = 1
	opts.MemTableMaxBytes = 1
	e, err := Open(dir, opts)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Set("k", []byte("v")))
	require.NoError(t, e.Delete("k"))

	_, ok, err := e.Get("k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, e.Compact())

	stats := e.Stats()
	if stats.PerLevelFileCounts[1] > 0 {
		require.Zero(t, stats.PerLevelEntryCounts[1])
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer e.Close()

	require.ErrorIs(t, e.Set("", []byte("x")), ErrKeyEmpty)
	require.ErrorIs(t, e.Delete(""), ErrKeyEmpty)
	_, _, err = e.Get("")
	require.ErrorIs(t, err, ErrKeyEmpty)
}

func TestClosedEngineRejectsOps(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, e.Close())

	require.ErrorIs(t, e.Set("a", []byte("b")), ErrClosed)
	_, _, err = e.Get("a")
	require.ErrorIs(t, err, ErrClosed)
}

func TestReopenWithNoOpsIsANoOp(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, e.Set("a", []byte("1")))
	require.NoError(t, e.Close())

	e2, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, e2.Close())

	e3, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer e3.Close()

	v, ok, err := e3.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))
}

func TestReopenWithMultipleL0FilesPicksNewest(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.MemTableMaxBytes = 1
	opts.Level0MaxFiles = 4

	e, err := Open(dir, opts)
	require.NoError(t, err)
	require.NoError(t, e.Set("k", []byte("v1")))
	require.NoError(t, e.Set("k", []byte("v2")))
	require.NoError(t, e.Close())

	stats := func(e *Engine) int { return e.Stats().PerLevelFileCounts[0] }
	e2, err := Open(dir, opts)
	require.NoError(t, err)
	defer e2.Close()

	require.Equal(t, 2, stats(e2), "expected both flushes to have landed in L0 below the compaction trigger")

	v, ok, err := e2.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", string(v))
}

func TestDataDirLayout(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.MemTableMaxBytes = 1
	e, err := Open(dir, opts)
	require.NoError(t, err)
	require.NoError(t, e.Set("a", []byte("1")))
	require.NoError(t, e.Close())

	require.FileExists(t, filepath.Join(dir, "level0_1.st"))
}
