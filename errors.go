package lsmkv

import "errors"

// Sentinel errors callers can compare against with errors.Is. Internal
// plumbing wraps these (and other failures) with cockroachdb/errors for
// stack traces and context, per spec §7's error-kind table.
var (
	// ErrKeyEmpty is returned by Set, Delete, and Get for the empty
	// string key (spec §3: "Key. A non-empty string.").
	ErrKeyEmpty = errors.New("lsmkv: key must not be empty")
	// ErrClosed is returned by any operation on a closed Engine.
	ErrClosed = errors.New("lsmkv: engine is closed")
	// ErrCorrupt marks a Sorted Table that failed to open because its
	// footer, index, or magic number didn't validate. Recoverable WAL
	// damage (a truncated or checksum-failed trailing record) is not
	// marked with this: replay just stops and keeps the clean prefix,
	// per spec §4.B, rather than failing Open outright.
	ErrCorrupt = errors.New("lsmkv: corrupt on-disk state")
)
