// Package wal implements the write-ahead log (spec component B): an
// append-only, fsync'd record stream that the engine replays on open to
// recover the memtable.
//
// Record framing is binary and length-prefixed rather than the
// reference's JSON lines, per spec §4.B ("any framing... is acceptable as
// long as replay yields the original sequence"):
//
//	[crc32 u32le][sequence u64le][keySize u32le][valueSize u32le][deleted u8][key][value]
package wal

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const headerSize = 4 + 8 + 4 + 4 + 1

// Record is a single recovered write-ahead log entry.
type Record struct {
	Sequence uint64
	Key      string
	Value    []byte
	Deleted  bool
}

// WAL is an append-only, fsync'd record stream.
type WAL struct {
	file   *os.File
	path   string
	logger *zap.Logger
}

// Open creates the log file if absent and positions it for appending.
func Open(path string, logger *zap.Logger) (*WAL, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open wal")
	}
	return &WAL{file: f, path: path, logger: logger}, nil
}

func encode(seq uint64, key string, value []byte, deleted bool) []byte {
	keySize := uint32(len(key))
	valueSize := uint32(len(value))
	record := make([]byte, headerSize+int(keySize)+int(valueSize))

	offset := 4 // CRC filled in last
	binary.LittleEndian.PutUint64(record[offset:], seq)
	offset += 8
	binary.LittleEndian.PutUint32(record[offset:], keySize)
	offset += 4
	binary.LittleEndian.PutUint32(record[offset:], valueSize)
	offset += 4
	if deleted {
		record[offset] = 1
	}
	offset++
	copy(record[offset:], key)
	offset += int(keySize)
	copy(record[offset:], value)

	crc := crc32.ChecksumIEEE(record[4:])
	binary.LittleEndian.PutUint32(record[0:], crc)
	return record
}

// AppendSet durably appends a SET record. It returns only after the bytes
// are flushed to stable storage, per spec §4.B's durability contract.
func (w *WAL) AppendSet(key string, value []byte, seq uint64) error {
	return w.append(encode(seq, key, value, false))
}

// AppendDelete durably appends a DELETE (tombstone) record.
func (w *WAL) AppendDelete(key string, seq uint64) error {
	return w.append(encode(seq, key, nil, true))
}

func (w *WAL) append(record []byte) error {
	if _, err := w.file.Write(record); err != nil {
		return errors.Wrap(err, "write wal record")
	}
	if err := w.file.Sync(); err != nil {
		return errors.Wrap(err, "fsync wal")
	}
	return nil
}

// Sync forces a sync of any buffered writes (redundant given append's own
// fsync, exposed for callers that want an explicit durability barrier).
func (w *WAL) Sync() error {
	return errors.Wrap(w.file.Sync(), "fsync wal")
}

// Replay reads every record from the start of the file in append order.
// A crash mid-record leaves a corrupt trailing record; Replay logs a
// diagnostic and returns the prefix that parsed cleanly, per spec §4.B.
func (w *WAL) Replay() ([]Record, error) {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek wal")
	}

	var records []Record
	header := make([]byte, headerSize)
	for {
		n, err := io.ReadFull(w.file, header)
		if err == io.EOF {
			break
		}
		if err != nil {
			w.logger.Warn("wal: truncated record header, stopping replay",
				zap.String("path", w.path), zap.Int("bytesRead", n), zap.Error(err))
			break
		}

		crc := binary.LittleEndian.Uint32(header[0:])
		seq := binary.LittleEndian.Uint64(header[4:])
		keySize := binary.LittleEndian.Uint32(header[12:])
		valueSize := binary.LittleEndian.Uint32(header[16:])
		deleted := header[20] == 1

		data := make([]byte, int(keySize)+int(valueSize))
		if _, err := io.ReadFull(w.file, data); err != nil {
			w.logger.Warn("wal: truncated record body, stopping replay",
				zap.String("path", w.path), zap.Error(err))
			break
		}

		check := make([]byte, headerSize-4+len(data))
		copy(check, header[4:])
		copy(check[headerSize-4:], data)
		if crc32.ChecksumIEEE(check) != crc {
			w.logger.Warn("wal: crc mismatch, stopping replay",
				zap.String("path", w.path))
			break
		}

		records = append(records, Record{
			Sequence: seq,
			Key:      string(data[:keySize]),
			Value:    append([]byte(nil), data[keySize:]...),
			Deleted:  deleted,
		})
	}

	// Leave the descriptor positioned for further appends.
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return records, errors.Wrap(err, "seek wal to end")
	}
	return records, nil
}

// Close closes the underlying file.
func (w *WAL) Close() error {
	if w.file == nil {
		return nil
	}
	return errors.Wrap(w.file.Close(), "close wal")
}

// Remove closes and deletes the log file, used by the engine after a
// successful flush (spec §4.B truncation).
func (w *WAL) Remove() error {
	if err := w.Close(); err != nil {
		return err
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove wal")
	}
	return nil
}

// Exists reports whether a WAL file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
