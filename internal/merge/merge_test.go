package merge

import (
	"testing"

	"github.com/anchorkv/lsmkv/internal/kv"
	"github.com/stretchr/testify/require"
)

func iter(entries ...kv.Entry) kv.Iterator {
	return kv.NewSliceIterator(entries)
}

func TestMergePicksHighestPriorityOnConflict(t *testing.T) {
	newer := iter(kv.Entry{Key: "a", Value: []byte("new")})
	older := iter(kv.Entry{Key: "a", Value: []byte("old")}, kv.Entry{Key: "b", Value: []byte("b")})

	m := New([]Source{{Iter: newer, Priority: 0}, {Iter: older, Priority: 1}}, false)

	var got []kv.Entry
	for m.Next() {
		got = append(got, m.Entry())
	}
	require.NoError(t, m.Err())
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Key)
	require.Equal(t, []byte("new"), got[0].Value)
	require.Equal(t, "b", got[1].Key)
}

func TestMergeDropsTombstonesWhenConfigured(t *testing.T) {
	src := iter(
		kv.Entry{Key: "a", Tombstone: true},
		kv.Entry{Key: "b", Value: []byte("v")},
	)
	m := New([]Source{{Iter: src, Priority: 0}}, true)

	var keys []string
	for m.Next() {
		keys = append(keys, m.Entry().Key)
	}
	require.Equal(t, []string{"b"}, keys)
}

func TestMergeKeepsTombstonesByDefault(t *testing.T) {
	src := iter(kv.Entry{Key: "a", Tombstone: true})
	m := New([]Source{{Iter: src, Priority: 0}}, false)

	require.True(t, m.Next())
	require.True(t, m.Entry().Tombstone)
	require.False(t, m.Next())
}

func TestMergeAscendingAcrossManySources(t *testing.T) {
	s1 := iter(kv.Entry{Key: "a"}, kv.Entry{Key: "d"})
	s2 := iter(kv.Entry{Key: "b"}, kv.Entry{Key: "e"})
	s3 := iter(kv.Entry{Key: "c"})

	m := New([]Source{{Iter: s1, Priority: 0}, {Iter: s2, Priority: 1}, {Iter: s3, Priority: 2}}, false)
	var keys []string
	for m.Next() {
		keys = append(keys, m.Entry().Key)
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, keys)
}
