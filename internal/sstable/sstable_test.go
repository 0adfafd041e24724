package sstable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTable(t *testing.T, entries []struct {
	key       string
	value     string
	tombstone bool
}) (*Reader, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "000001.sst")
	w, err := NewWriter(path, 64, len(entries))
	require.NoError(t, err)
	for _, e := range entries {
		var v []byte
		if !e.tombstone {
			v = []byte(e.value)
		}
		require.NoError(t, w.Add(e.key, v, e.tombstone))
	}
	require.NoError(t, w.Finish())

	r, err := Open(path, 0, 1)
	require.NoError(t, err)
	return r, path
}

func TestWriteReadRoundTrip(t *testing.T) {
	entries := []struct {
		key       string
		value     string
		tombstone bool
	}{
		{"a", "1", false},
		{"b", "2", false},
		{"c", "", true},
		{"d", "4", false},
	}
	r, _ := buildTable(t, entries)
	defer r.Close()

	e, found, err := r.Get("a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("1"), e.Value)

	e, found, err = r.Get("c")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, e.Tombstone)

	_, found, err = r.Get("zzz")
	require.NoError(t, err)
	require.False(t, found)

	require.Equal(t, "a", r.MinKey())
	require.Equal(t, "d", r.MaxKey())
}

func TestRangeAcrossBlocks(t *testing.T) {
	var entries []struct {
		key       string
		value     string
		tombstone bool
	}
	for i := 0; i < 50; i++ {
		entries = append(entries, struct {
			key       string
			value     string
			tombstone bool
		}{key: string(rune('A'+i/26)) + string(rune('a'+i%26)), value: "v", tombstone: false})
	}
	r, _ := buildTable(t, entries)
	defer r.Close()

	all, err := r.Range("", "")
	require.NoError(t, err)
	require.Len(t, all, 50)
	for i := 1; i < len(all); i++ {
		require.True(t, all[i-1].Key < all[i].Key)
	}
}

func TestOutOfOrderRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000002.sst")
	w, err := NewWriter(path, 4096, 4)
	require.NoError(t, err)
	require.NoError(t, w.Add("b", []byte("1"), false))
	err = w.Add("a", []byte("2"), false)
	require.Error(t, err)
	_ = w.Abort()
}

func TestEmptyTableRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000003.sst")
	w, err := NewWriter(path, 4096, 1)
	require.NoError(t, err)
	err = w.Finish()
	require.Error(t, err)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestIteratorWalksAscending(t *testing.T) {
	entries := []struct {
		key       string
		value     string
		tombstone bool
	}{
		{"a", "1", false},
		{"b", "2", false},
		{"c", "3", false},
	}
	r, _ := buildTable(t, entries)
	defer r.Close()

	it := r.Iterator()
	var keys []string
	for it.Next() {
		keys = append(keys, it.Entry().Key)
	}
	require.NoError(t, it.Err())
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestBloomRejectsAbsentKey(t *testing.T) {
	entries := []struct {
		key       string
		value     string
		tombstone bool
	}{
		{"a", "1", false},
		{"z", "2", false},
	}
	r, _ := buildTable(t, entries)
	defer r.Close()

	require.False(t, r.bloom.MayContain("not-present-at-all"))
	_, found, err := r.Get("not-present-at-all")
	require.NoError(t, err)
	require.False(t, found)
}

func TestOverlaps(t *testing.T) {
	entries := []struct {
		key       string
		value     string
		tombstone bool
	}{
		{"f", "1", false},
		{"m", "2", false},
	}
	r, _ := buildTable(t, entries)
	defer r.Close()

	require.True(t, r.Overlaps("a", "z"))
	require.True(t, r.Overlaps("", ""))
	require.False(t, r.Overlaps("n", "z"))
	require.False(t, r.Overlaps("a", "e"))
}
