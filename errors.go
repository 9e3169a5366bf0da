package tcd

import "errors"

// Error taxonomy for the decoder. Every failure surfaced across the package
// boundary is, or wraps, one of these sentinels.
var (
	// ErrIO wraps a failure of the underlying byte source (open, read, seek).
	ErrIO = errors.New("tcd: i/o error")

	// ErrFormat indicates the file violates the TCD wire format: a required
	// header key is missing, or a lookup table/record field holds a
	// structurally impossible value.
	ErrFormat = errors.New("tcd: format error")

	// ErrTruncated indicates end-of-stream was reached mid-field.
	ErrTruncated = errors.New("tcd: truncated")

	// ErrInvalidArgument indicates programmatic misuse, such as requesting
	// a bit width outside 1..32.
	ErrInvalidArgument = errors.New("tcd: invalid argument")

	// ErrNotFound is reserved for name-based lookups that find no matching
	// entry. Database.Constituent and Database.StationByName report a miss
	// through their boolean result and do not return it.
	ErrNotFound = errors.New("tcd: not found")
)
