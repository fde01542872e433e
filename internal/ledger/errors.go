package ledger

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable means the ledger document could not be read or
	// written. It is never treated as an empty ledger.
	ErrUpstreamUnavailable = errors.New("ledger store unavailable")
	ErrConflict            = errors.New("ledger modified concurrently")
	ErrNotPending          = errors.New("withdrawal already decided")
	// ErrNoChange may be returned from an Update callback to finish without
	// writing anything.
	ErrNoChange = errors.New("no change")
)
