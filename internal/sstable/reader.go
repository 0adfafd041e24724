package sstable

import (
	"encoding/binary"
	"os"
	"sort"

	"github.com/anchorkv/lsmkv/internal/bloom"
	"github.com/anchorkv/lsmkv/internal/kv"
	"github.com/cockroachdb/errors"
)

const footerLenFieldSize = 4

// Reader opens an immutable Sorted Table and serves point lookups, range
// scans, and full iteration (spec §4.D). The footer and index are parsed
// once at Open and cached for the reader's lifetime; individual blocks
// are read from disk on demand through one file descriptor that stays
// open until Close.
type Reader struct {
	file   *os.File
	path   string
	level  int
	seq    uint64
	footer Footer
	index  []IndexEntry
	bloom  *bloom.Filter
}

// Open reads the trailing footer length, footer, index, and bloom filter
// of the table at path and validates the format magic. A corrupt footer
// (bad magic, truncated fields) is fatal per spec §7 — the engine must
// not silently drop a level because one of its tables failed to open.
func Open(path string, level int, seq uint64) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open sstable")
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat sstable")
	}
	size := stat.Size()
	if size < footerLenFieldSize {
		f.Close()
		return nil, errors.Newf("sstable: %s is too small to contain a footer", path)
	}

	var lenBuf [footerLenFieldSize]byte
	if _, err := f.ReadAt(lenBuf[:], size-footerLenFieldSize); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "read sstable footer length")
	}
	footerLen := int64(binary.LittleEndian.Uint32(lenBuf[:]))
	if footerLen <= 0 || footerLen > size-footerLenFieldSize {
		f.Close()
		return nil, errors.Newf("sstable: %s has an invalid footer length", path)
	}

	footerBytes := make([]byte, footerLen)
	if _, err := f.ReadAt(footerBytes, size-footerLenFieldSize-footerLen); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "read sstable footer")
	}
	footer, err := decodeFooter(footerBytes)
	if err != nil {
		f.Close()
		return nil, err
	}
	if footer.Magic != magic {
		f.Close()
		return nil, errors.Newf("sstable: %s has an invalid magic number", path)
	}

	indexBytes := make([]byte, footer.IndexSize)
	if _, err := f.ReadAt(indexBytes, int64(footer.IndexOffset)); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "read sstable index")
	}
	index, err := decodeIndex(indexBytes)
	if err != nil {
		f.Close()
		return nil, err
	}

	var filter *bloom.Filter
	if footer.BloomSize > 0 {
		bloomBytes := make([]byte, footer.BloomSize)
		if _, err := f.ReadAt(bloomBytes, int64(footer.BloomOffset)); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "read sstable bloom filter")
		}
		filter = bloom.Decode(bloomBytes)
	}

	return &Reader{
		file:   f,
		path:   path,
		level:  level,
		seq:    seq,
		footer: footer,
		index:  index,
		bloom:  filter,
	}, nil
}

func (r *Reader) readBlock(entry IndexEntry) ([]kv.Entry, error) {
	buf := make([]byte, entry.Size)
	if _, err := r.file.ReadAt(buf, int64(entry.Offset)); err != nil {
		return nil, errors.Wrap(err, "read sstable block")
	}
	return decodeBlock(buf)
}

func decodeBlock(buf []byte) ([]kv.Entry, error) {
	if len(buf) < 4 {
		return nil, errors.New("sstable: truncated block")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]

	entries := make([]kv.Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 9 {
			return nil, errors.New("sstable: truncated block entry")
		}
		keyLen := binary.LittleEndian.Uint32(buf[0:4])
		valueLen := binary.LittleEndian.Uint32(buf[4:8])
		tombstone := buf[8] == 1
		buf = buf[9:]
		if uint32(len(buf)) < keyLen+valueLen {
			return nil, errors.New("sstable: truncated block entry body")
		}
		key := string(buf[:keyLen])
		buf = buf[keyLen:]
		var value []byte
		if !tombstone && valueLen > 0 {
			value = append([]byte(nil), buf[:valueLen]...)
		}
		buf = buf[valueLen:]
		entries = append(entries, kv.Entry{Key: key, Value: value, Tombstone: tombstone})
	}
	return entries, nil
}

// blockFor returns the index of the block whose range may contain key,
// or -1 if no block can.
func (r *Reader) blockFor(key string) int {
	idx := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].EndKey >= key
	})
	if idx == len(r.index) {
		return -1
	}
	if key < r.index[idx].StartKey {
		return -1
	}
	return idx
}

// Get returns the entry for key: found=false means absent; found=true
// with Tombstone=true means the key was deleted. The reader never
// suppresses tombstones — that is the engine's responsibility (spec
// §4.D).
func (r *Reader) Get(key string) (kv.Entry, bool, error) {
	if key < r.footer.MinKey || key > r.footer.MaxKey {
		return kv.Entry{}, false, nil
	}
	if r.bloom != nil && !r.bloom.MayContain(key) {
		return kv.Entry{}, false, nil
	}

	idx := r.blockFor(key)
	if idx < 0 {
		return kv.Entry{}, false, nil
	}
	entries, err := r.readBlock(r.index[idx])
	if err != nil {
		return kv.Entry{}, false, err
	}

	i := sort.Search(len(entries), func(i int) bool { return entries[i].Key >= key })
	if i < len(entries) && entries[i].Key == key {
		return entries[i], true, nil
	}
	return kv.Entry{}, false, nil
}

// Range returns entries with lo <= key <= hi in ascending order,
// tombstones included, scanning only the blocks that can intersect the
// range (spec §4.D).
func (r *Reader) Range(lo, hi string) ([]kv.Entry, error) {
	startIdx := 0
	if lo != "" {
		startIdx = sort.Search(len(r.index), func(i int) bool {
			return r.index[i].EndKey >= lo
		})
	}

	var out []kv.Entry
	for i := startIdx; i < len(r.index); i++ {
		if hi != "" && r.index[i].StartKey > hi {
			break
		}
		entries, err := r.readBlock(r.index[i])
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if lo != "" && e.Key < lo {
				continue
			}
			if hi != "" && e.Key > hi {
				break
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// Iterator returns an ascending, block-at-a-time iterator suitable for
// compaction's n-way merge without materializing the whole table.
func (r *Reader) Iterator() kv.Iterator {
	return &blockIterator{reader: r}
}

// Stats returns the footer (spec §4.D's stats() operation).
func (r *Reader) Stats() Footer { return r.footer }

func (r *Reader) MinKey() string  { return r.footer.MinKey }
func (r *Reader) MaxKey() string  { return r.footer.MaxKey }
func (r *Reader) Level() int      { return r.level }
func (r *Reader) Seq() uint64     { return r.seq }
func (r *Reader) Path() string    { return r.path }
func (r *Reader) EntryCount() int { return int(r.footer.EntryCount) }

// Overlaps reports whether [lo, hi] intersects this table's key range.
// Empty bounds are treated as unbounded.
func (r *Reader) Overlaps(lo, hi string) bool {
	if lo != "" && r.footer.MaxKey < lo {
		return false
	}
	if hi != "" && r.footer.MinKey > hi {
		return false
	}
	return true
}

// Close closes the underlying file descriptor.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	return errors.Wrap(r.file.Close(), "close sstable")
}

// Remove closes and deletes the file from disk.
func (r *Reader) Remove() error {
	_ = r.Close()
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove sstable")
	}
	return nil
}

type blockIterator struct {
	reader   *Reader
	blockIdx int
	entries  []kv.Entry
	entryIdx int
	started  bool
	err      error
}

func (it *blockIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		if len(it.reader.index) == 0 {
			return false
		}
		it.entries, it.err = it.reader.readBlock(it.reader.index[0])
		if it.err != nil {
			return false
		}
		it.entryIdx = -1
	}

	it.entryIdx++
	for it.entryIdx >= len(it.entries) {
		it.blockIdx++
		if it.blockIdx >= len(it.reader.index) {
			return false
		}
		it.entries, it.err = it.reader.readBlock(it.reader.index[it.blockIdx])
		if it.err != nil {
			return false
		}
		it.entryIdx = 0
	}
	return true
}

func (it *blockIterator) Entry() kv.Entry { return it.entries[it.entryIdx] }
func (it *blockIterator) Err() error      { return it.err }
func (it *blockIterator) Close() error    { return nil }
