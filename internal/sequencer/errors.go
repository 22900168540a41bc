package sequencer

import (
	"errors"
	"fmt"

	"github.com/mxbeam/beamline-core/internal/beamline"
)

// Sentinel errors for sequence execution.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrPreflight is returned when a pre-flight interlock fails or its
	// read errors. No motion has been attempted.
	ErrPreflight = errors.New("sequencer: pre-flight interlock failed")

	// ErrUnknownBatch is returned when an After constraint names a batch
	// that does not exist.
	ErrUnknownBatch = errors.New("sequencer: unknown batch in ordering constraint")

	// ErrCycle is returned when the ordering constraints contain a cycle.
	ErrCycle = errors.New("sequencer: ordering constraints form a cycle")

	// ErrAxisNotInSet is returned when a batch references an axis the
	// target PositionSet does not define.
	ErrAxisNotInSet = errors.New("sequencer: axis not in target position set")
)

// BatchError reports a failure during batch execution with the identity
// of the batch and, where known, the axis that failed.
type BatchError struct {
	Batch string
	Axis  beamline.Axis
	Err   error
}

func (e *BatchError) Error() string {
	if e.Axis != "" {
		return fmt.Sprintf("sequencer: batch %q axis %s: %v", e.Batch, e.Axis, e.Err)
	}
	return fmt.Sprintf("sequencer: batch %q: %v", e.Batch, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
