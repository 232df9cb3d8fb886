package searchmap

import "errors"

var (
	ErrSnapshotFailed = errors.New("snapshot failed")

	// ErrInvalidKey rejects keys the wire format cannot carry. Keys must be
	// valid UTF-8.
	ErrInvalidKey = errors.New("invalid key")
)
