package beamline

import "errors"

// Sentinel errors for hardware operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDuplicateAxis is returned when a PositionSet references the same
	// axis twice.
	ErrDuplicateAxis = errors.New("beamline: duplicate axis in position set")

	// ErrCommandFailed is returned when the gateway acknowledges a command
	// with a failure status.
	ErrCommandFailed = errors.New("beamline: hardware command failed")

	// ErrCommandTimeout is returned when no acknowledgement arrives within
	// the move timeout.
	ErrCommandTimeout = errors.New("beamline: hardware command timed out")

	// ErrReadFailed is returned when the gateway reports a read error or
	// the response cannot be parsed.
	ErrReadFailed = errors.New("beamline: hardware read failed")

	// ErrReadTimeout is returned when no response arrives within the read
	// timeout.
	ErrReadTimeout = errors.New("beamline: hardware read timed out")
)
