package memtable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	m := New()
	m.Set("b", []byte("2"))
	m.Set("a", []byte("1"))
	m.Set("c", []byte("3"))

	entry, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, []byte("1"), entry.Value)
	require.False(t, entry.Tombstone)

	_, ok = m.Get("missing")
	require.False(t, ok)
}

func TestOverwriteUpdatesApproxBytes(t *testing.T) {
	m := New()
	m.Set("k", []byte("short"))
	afterFirst := m.ApproxBytes()

	m.Set("k", []byte("a-much-longer-value"))
	require.NotEqual(t, afterFirst, m.ApproxBytes())
	require.Equal(t, 1, m.Len())
}

func TestDeleteStoresTombstone(t *testing.T) {
	m := New()
	m.Set("k", []byte("v"))
	m.Delete("k")

	entry, ok := m.Get("k")
	require.True(t, ok)
	require.True(t, entry.Tombstone)
}

func TestRangeAscendingInclusive(t *testing.T) {
	m := New()
	for _, k := range []string{"d", "b", "a", "c", "e"} {
		m.Set(k, []byte(k))
	}

	got := m.Range("b", "d")
	require.Len(t, got, 3)
	require.Equal(t, "b", got[0].Key)
	require.Equal(t, "c", got[1].Key)
	require.Equal(t, "d", got[2].Key)
}

func TestRangeEmptyBoundsCoverAll(t *testing.T) {
	m := New()
	for _, k := range []string{"a", "b", "c"} {
		m.Set(k, []byte(k))
	}

	got := m.Range("", "")
	require.Len(t, got, 3)
}

func TestAllAscending(t *testing.T) {
	m := New()
	for _, k := range []string{"z", "a", "m"} {
		m.Set(k, []byte(k))
	}
	all := m.All()
	require.Equal(t, []string{"a", "m", "z"}, []string{all[0].Key, all[1].Key, all[2].Key})
}
