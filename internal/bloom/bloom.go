// Package bloom implements a probabilistic membership filter used by
// sstable readers as a fast rejection test before the real index/block
// search (spec §4.D). It is purely additive: deleting it, or a false
// positive from it, never changes the answer a Get or Range returns —
// only whether a block gets fetched unnecessarily. Bloom filters are
// listed as a deferred non-goal for the storage engine's required
// correctness contract (spec §1); this keeps the teacher's filter as a
// non-load-bearing accelerator rather than as something any invariant
// depends on.
package bloom

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// Filter is a Bloom filter using double hashing (two independent FNV
// hashes combined per Kirsch-Mitzenmacher) to derive k probe positions
// from two hash computations instead of k.
type Filter struct {
	bits      []byte
	numBits   uint64
	numHashes uint32
}

// New sizes a filter for expectedKeys entries at the given false positive
// rate using the standard m = -n*ln(p)/ln(2)^2, k = (m/n)*ln(2) formulas.
func New(expectedKeys int, falsePositiveRate float64) *Filter {
	if expectedKeys < 1 {
		expectedKeys = 1
	}
	numBits := uint64(math.Ceil(-float64(expectedKeys) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if numBits < 8 {
		numBits = 8
	}
	numHashes := uint32(math.Ceil(float64(numBits) / float64(expectedKeys) * math.Ln2))
	if numHashes == 0 {
		numHashes = 1
	}

	return &Filter{
		bits:      make([]byte, (numBits+7)/8),
		numBits:   numBits,
		numHashes: numHashes,
	}
}

func hashes(key string, numHashes uint32, numBits uint64) []uint64 {
	h1 := fnv.New64a()
	h1.Write([]byte(key))
	a := h1.Sum64()

	h2 := fnv.New64()
	h2.Write([]byte(key))
	b := h2.Sum64()

	out := make([]uint64, numHashes)
	for i := uint32(0); i < numHashes; i++ {
		out[i] = (a + uint64(i)*b) % numBits
	}
	return out
}

// Add inserts key into the filter.
func (f *Filter) Add(key string) {
	for _, h := range hashes(key, f.numHashes, f.numBits) {
		f.bits[h/8] |= 1 << (h % 8)
	}
}

// MayContain returns false only when key is definitely absent; true
// means present or a false positive.
func (f *Filter) MayContain(key string) bool {
	for _, h := range hashes(key, f.numHashes, f.numBits) {
		if f.bits[h/8]&(1<<(h%8)) == 0 {
			return false
		}
	}
	return true
}

// Encode serializes the filter: [numBits u64le][numHashes u32le][bits...].
func (f *Filter) Encode() []byte {
	buf := make([]byte, 12+len(f.bits))
	binary.LittleEndian.PutUint64(buf[0:], f.numBits)
	binary.LittleEndian.PutUint32(buf[8:], f.numHashes)
	copy(buf[12:], f.bits)
	return buf
}

// Decode deserializes a filter previously written by Encode.
func Decode(data []byte) *Filter {
	if len(data) < 12 {
		return nil
	}
	numBits := binary.LittleEndian.Uint64(data[0:])
	numHashes := binary.LittleEndian.Uint32(data[8:])
	bits := append([]byte(nil), data[12:]...)
	return &Filter{bits: bits, numBits: numBits, numHashes: numHashes}
}
