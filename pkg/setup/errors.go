package setup

import "errors"

// Errors shared by every specialization's constructor, surfaced per
// spec.md §7 as InvalidMessage-equivalent configuration failures.
var (
	ErrBadThreshold  = errors.New("setup: threshold out of range")
	ErrBadPartyCount = errors.New("setup: party list length mismatch")
	ErrBadHashAlgo   = errors.New("setup: unsupported hash algorithm")
	ErrBadField      = errors.New("setup: malformed field")
)
