package sstable

import (
	"encoding/binary"
	"os"

	"github.com/anchorkv/lsmkv/internal/bloom"
	"github.com/cockroachdb/errors"
)

// Writer serializes an ascending stream of entries into a single
// immutable Sorted Table file (spec §4.C). Entries MUST be added in
// strictly ascending key order; Add rejects anything else.
type Writer struct {
	file      *os.File
	path      string
	blockSize int

	curEntries [][]byte
	curSize    int
	curFirst   string
	curLast    string

	blockOffset uint64
	index       []IndexEntry
	bloomFilter *bloom.Filter

	minKey, maxKey string
	haveAny        bool
	entryCount     int
	blockCount     int

	finished bool
}

// NewWriter creates a new Sorted Table at path, targeting blockSizeBytes
// per data block and sizing the bloom filter for expectedKeys entries.
func NewWriter(path string, blockSizeBytes int, expectedKeys int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create sstable")
	}
	return &Writer{
		file:        f,
		path:        path,
		blockSize:   blockSizeBytes,
		bloomFilter: bloom.New(expectedKeys, 0.01),
	}, nil
}

// Add appends a (key, value-or-tombstone) entry. Both empty input (never
// calling Add) and out-of-order keys are fatal per spec §4.C; Add itself
// reports the latter immediately so the engine can abort the flush or
// compaction before any file is installed.
func (w *Writer) Add(key string, value []byte, tombstone bool) error {
	if w.haveAny && key <= w.curLastAdded() {
		return errors.Newf("sstable: out-of-order key %q after %q", key, w.curLastAdded())
	}

	if !w.haveAny {
		w.minKey = key
	}
	w.maxKey = key
	w.haveAny = true
	w.entryCount++
	w.bloomFilter.Add(key)

	entry := encodeEntry(key, value, tombstone)
	if len(w.curEntries) > 0 && w.curSize+len(entry)+4 > w.blockSize {
		if err := w.flushBlock(); err != nil {
			return err
		}
	}
	if len(w.curEntries) == 0 {
		w.curFirst = key
	}
	w.curEntries = append(w.curEntries, entry)
	w.curSize += len(entry)
	w.curLast = key
	return nil
}

// curLastAdded is the most recently added key, across flushed and
// pending blocks, used for the ordering check.
func (w *Writer) curLastAdded() string {
	if len(w.curEntries) > 0 {
		return w.curLast
	}
	return w.maxKey
}

func (w *Writer) flushBlock() error {
	if len(w.curEntries) == 0 {
		return nil
	}

	buf := make([]byte, 4, 4+w.curSize)
	binary.LittleEndian.PutUint32(buf, uint32(len(w.curEntries)))
	for _, e := range w.curEntries {
		buf = append(buf, e...)
	}

	if _, err := w.file.Write(buf); err != nil {
		return errors.Wrap(err, "write sstable block")
	}

	w.index = append(w.index, IndexEntry{
		StartKey: w.curFirst,
		EndKey:   w.curLast,
		Offset:   w.blockOffset,
		Size:     uint64(len(buf)),
	})
	w.blockOffset += uint64(len(buf))
	w.blockCount++

	w.curEntries = nil
	w.curSize = 0
	w.curFirst, w.curLast = "", ""
	return nil
}

// Finish flushes any pending block and writes the index, bloom filter,
// footer, and trailing footer-length field. Calling Finish having added
// no entries is a usage error (spec §4.C: "Empty input is an error");
// the partially-written file is removed so on-disk state is unchanged.
func (w *Writer) Finish() error {
	if w.entryCount == 0 {
		_ = w.Abort()
		return errors.New("sstable: cannot write an empty table")
	}

	if err := w.flushBlock(); err != nil {
		_ = w.Abort()
		return err
	}

	indexOffset := w.blockOffset
	indexBytes := encodeIndex(w.index)
	if _, err := w.file.Write(indexBytes); err != nil {
		_ = w.Abort()
		return errors.Wrap(err, "write sstable index")
	}

	bloomOffset := indexOffset + uint64(len(indexBytes))
	bloomBytes := w.bloomFilter.Encode()
	if _, err := w.file.Write(bloomBytes); err != nil {
		_ = w.Abort()
		return errors.Wrap(err, "write sstable bloom filter")
	}

	footer := Footer{
		IndexOffset: indexOffset,
		IndexSize:   uint64(len(indexBytes)),
		BloomOffset: bloomOffset,
		BloomSize:   uint64(len(bloomBytes)),
		BlockCount:  uint32(w.blockCount),
		EntryCount:  uint64(w.entryCount),
		MinKey:      w.minKey,
		MaxKey:      w.maxKey,
		Magic:       magic,
	}
	footerBytes := encodeFooter(footer)
	if _, err := w.file.Write(footerBytes); err != nil {
		_ = w.Abort()
		return errors.Wrap(err, "write sstable footer")
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(footerBytes)))
	if _, err := w.file.Write(lenBuf[:]); err != nil {
		_ = w.Abort()
		return errors.Wrap(err, "write sstable footer length")
	}

	if err := w.file.Sync(); err != nil {
		_ = w.Abort()
		return errors.Wrap(err, "sync sstable")
	}
	w.finished = true
	return errors.Wrap(w.file.Close(), "close sstable")
}

// Abort closes and removes the file, leaving on-disk state as if the
// write never happened (spec §4.C/§7: a failed flush or compaction must
// not install a partial file).
func (w *Writer) Abort() error {
	if w.finished {
		return nil
	}
	_ = w.file.Close()
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove aborted sstable")
	}
	return nil
}
