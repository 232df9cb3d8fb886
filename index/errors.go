package index

import "errors"

// Sentinel errors returned to search callers.
var (
	// ErrCancelled reports a search abandoned by CancelSearch or by the end
	// of the caller's context before a response arrived.
	ErrCancelled = errors.New("search cancelled")
	// ErrTimeout reports a search that received no response within the
	// configured search timeout.
	ErrTimeout = errors.New("search timed out")
	// ErrSuperseded reports a search replaced by a newer search for the same
	// query text. Only returned when correlation ids are derived from the
	// query.
	ErrSuperseded = errors.New("search superseded")
	ErrTerminated = errors.New("index client destroyed")
)
