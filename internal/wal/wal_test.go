package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path, nil)
	require.NoError(t, err)

	require.NoError(t, w.AppendSet("a", []byte("1"), 1))
	require.NoError(t, w.AppendSet("b", []byte("2"), 2))
	require.NoError(t, w.AppendDelete("a", 3))
	require.NoError(t, w.Close())

	w2, err := Open(path, nil)
	require.NoError(t, err)
	defer w2.Close()

	records, err := w2.Replay()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "a", records[0].Key)
	require.False(t, records[0].Deleted)
	require.Equal(t, "b", records[1].Key)
	require.True(t, records[2].Deleted)
}

func TestReplayIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.AppendSet("k", []byte("v"), 1))

	first, err := w.Replay()
	require.NoError(t, err)
	second, err := w.Replay()
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.NoError(t, w.Close())
}

func TestReplaySkipsTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.AppendSet("good", []byte("v"), 1))
	require.NoError(t, w.Close())

	// Simulate a crash mid-record: append a few garbage bytes that look
	// like the start of a header but are missing the rest of the record.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w2, err := Open(path, nil)
	require.NoError(t, err)
	defer w2.Close()

	records, err := w2.Replay()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "good", records[0].Key)
}

func TestRemoveDeletesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.AppendSet("k", []byte("v"), 1))
	require.NoError(t, w.Remove())
	require.False(t, Exists(path))
}
