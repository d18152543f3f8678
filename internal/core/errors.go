// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with %w and test with errors.Is.
var (
	// Packet decoding errors
	ErrTruncated       = errors.New("pktt: truncated")
	ErrMalformed       = errors.New("pktt: malformed field")
	ErrUnsupportedLink = errors.New("pktt: unsupported link type")
	ErrDuplicateLayer  = errors.New("pktt: layer role already occupied")
	ErrPacketSealed    = errors.New("pktt: packet is sealed")

	// Source errors
	ErrFilterSyntax = errors.New("pktt: invalid filter expression")

	// Configuration errors
	ErrConfigInvalid = errors.New("pktt: invalid configuration")
)

// Diagnostic records a decode failure that did not abort the packet,
// e.g. a malformed GSS envelope that was dropped.
type Diagnostic struct {
	Layer string
	Err   error
}

func (d Diagnostic) String() string {
	return d.Layer + ": " + d.Err.Error()
}
