package collector

import "errors"

// Cycle failure kinds. Every error returned from a collection cycle wraps
// exactly one of these, so callers can tell a missing log source from a
// corrupt file or a full disk.
var (
	// ErrSourceUnavailable means the ctrld log could not be opened or read.
	ErrSourceUnavailable = errors.New("log source unavailable")

	// ErrDecode means a file at the I/O boundary held malformed JSON.
	ErrDecode = errors.New("decode failed")

	// ErrPersist means a shard, checkpoint or summary write failed.
	ErrPersist = errors.New("persist failed")
)
