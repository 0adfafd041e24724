// Package sstable implements the Sorted Table writer and reader (spec
// components C and D): an immutable on-disk file holding data blocks, an
// index, and a footer, as described in spec §3/§4.C/§4.D/§6.
//
// File layout:
//
//	[block_0][block_1]...[block_{N-1}][index][bloom][footer][footer_len u32le]
//
// Block: [num_entries u32le]{[key_len u32le][value_len u32le][tombstone u8][key][value]}*
// Index: [num_entries u32le]{[start_key_len u32le][start_key][end_key_len u32le][end_key][offset u64le][size u64le]}*
// Bloom: the encoding from internal/bloom.Filter.Encode (may be zero-length if omitted).
// Footer: variable length, see encodeFooter/decodeFooter below.
package sstable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// magic identifies this file format ("STBL").
const magic uint32 = 0x5354424C

// IndexEntry maps a data block to its key range and location, per spec §3.
type IndexEntry struct {
	StartKey string
	EndKey   string
	Offset   uint64
	Size     uint64
}

// Footer carries the index location plus summary statistics, per spec
// §4.C/§4.D's stats() operation. BloomOffset/BloomSize are an additive
// extension beyond the fields spec.md names explicitly (see SPEC_FULL.md
// §4.C) and are zero when no bloom segment was written.
type Footer struct {
	IndexOffset uint64
	IndexSize   uint64
	BloomOffset uint64
	BloomSize   uint64
	BlockCount  uint32
	EntryCount  uint64
	MinKey      string
	MaxKey      string
	Magic       uint32
}

func putString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, errors.New("sstable: truncated string length")
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return "", nil, errors.New("sstable: truncated string body")
	}
	return string(data[:n]), data[n:], nil
}

func encodeEntry(key string, value []byte, tombstone bool) []byte {
	buf := make([]byte, 0, 9+len(key)+len(value))
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(key)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(value)))
	buf = append(buf, hdr[:]...)
	if tombstone {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, key...)
	buf = append(buf, value...)
	return buf
}

func encodeIndex(entries []IndexEntry) []byte {
	var buf []byte
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(entries)))
	buf = append(buf, n[:]...)
	for _, e := range entries {
		buf = putString(buf, e.StartKey)
		buf = putString(buf, e.EndKey)
		var off, size [8]byte
		binary.LittleEndian.PutUint64(off[:], e.Offset)
		binary.LittleEndian.PutUint64(size[:], e.Size)
		buf = append(buf, off[:]...)
		buf = append(buf, size[:]...)
	}
	return buf
}

func decodeIndex(data []byte) ([]IndexEntry, error) {
	if len(data) < 4 {
		return nil, errors.New("sstable: truncated index")
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	data = data[4:]

	entries := make([]IndexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e IndexEntry
		var err error
		e.StartKey, data, err = readString(data)
		if err != nil {
			return nil, err
		}
		e.EndKey, data, err = readString(data)
		if err != nil {
			return nil, err
		}
		if len(data) < 16 {
			return nil, errors.New("sstable: truncated index entry")
		}
		e.Offset = binary.LittleEndian.Uint64(data[0:8])
		e.Size = binary.LittleEndian.Uint64(data[8:16])
		data = data[16:]
		entries = append(entries, e)
	}
	return entries, nil
}

func encodeFooter(f Footer) []byte {
	var buf []byte
	var b8 [8]byte
	binary.LittleEndian.PutUint64(b8[:], f.IndexOffset)
	buf = append(buf, b8[:]...)
	binary.LittleEndian.PutUint64(b8[:], f.IndexSize)
	buf = append(buf, b8[:]...)
	binary.LittleEndian.PutUint64(b8[:], f.BloomOffset)
	buf = append(buf, b8[:]...)
	binary.LittleEndian.PutUint64(b8[:], f.BloomSize)
	buf = append(buf, b8[:]...)

	var b4 [4]byte
	binary.LittleEndian.PutUint32(b4[:], f.BlockCount)
	buf = append(buf, b4[:]...)
	binary.LittleEndian.PutUint64(b8[:], f.EntryCount)
	buf = append(buf, b8[:]...)

	buf = putString(buf, f.MinKey)
	buf = putString(buf, f.MaxKey)

	binary.LittleEndian.PutUint32(b4[:], f.Magic)
	buf = append(buf, b4[:]...)
	return buf
}

func decodeFooter(data []byte) (Footer, error) {
	var f Footer
	if len(data) < 8*5+4*2 {
		return f, errors.New("sstable: truncated footer")
	}
	f.IndexOffset = binary.LittleEndian.Uint64(data[0:8])
	f.IndexSize = binary.LittleEndian.Uint64(data[8:16])
	f.BloomOffset = binary.LittleEndian.Uint64(data[16:24])
	f.BloomSize = binary.LittleEndian.Uint64(data[24:32])
	f.BlockCount = binary.LittleEndian.Uint32(data[32:36])
	f.EntryCount = binary.LittleEndian.Uint64(data[36:44])
	data = data[44:]

	var err error
	f.MinKey, data, err = readString(data)
	if err != nil {
		return f, err
	}
	f.MaxKey, data, err = readString(data)
	if err != nil {
		return f, err
	}
	if len(data) < 4 {
		return f, errors.New("sstable: truncated footer magic")
	}
	f.Magic = binary.LittleEndian.Uint32(data[0:4])
	return f, nil
}
