package sequencer

import (
	"context"

	"github.com/mxbeam/beamline-core/internal/beamline"
)

// DefaultTolerance is how close an axis must be to its target before the
// sequencer treats it as already there and skips the move.
const DefaultTolerance = 1e-3

// Interlock is a pre-flight check that must pass before any motion is
// attempted. Typical interlocks read cryostream temperature or
// back-pressure and reject out-of-range values.
type Interlock struct {
	// Name identifies the interlock in abort errors.
	Name string

	// Check returns nil when the interlock passes. Both a failed check
	// and a failed read abort the whole sequence.
	Check func(ctx context.Context, ctrl beamline.Controller) error
}

// Guard decides whether a batch can be skipped because the hardware is
// already in a safe configuration. Returning skip=true suppresses every
// move in the batch.
type Guard func(ctx context.Context, ctrl beamline.Controller) (skip bool, err error)

// Batch names a group of axes that move together. All moves within a
// batch are issued concurrently; the batch completes when every axis has
// settled.
type Batch struct {
	// Name identifies the batch in ordering constraints and errors.
	Name string

	// Axes to command. Target values come from the sequence's
	// PositionSet; an axis missing from the set is a configuration error.
	Axes []beamline.Axis

	// After lists batch names that must complete before this batch is
	// commanded.
	After []string

	// SkipWhen is an optional guard evaluated just before the batch.
	SkipWhen Guard
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
