package beamline

import "context"

// Completion is the handle returned by an asynchronous move command.
// Wait blocks until the hardware reports completion, the move fails, or
// the context is cancelled.
type Completion interface {
	Wait(ctx context.Context) error
}

// Controller is the capability interface for beamline hardware.
//
// Read returns the current value of an axis. Set commands a move and
// returns a Completion handle without waiting; several moves can be in
// flight at once and joined together.
type Controller interface {
	Read(ctx context.Context, axis Axis) (float64, error)
	Set(ctx context.Context, axis Axis, position float64) (Completion, error)
}

// Logger is the minimal logging interface this package needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is provided.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
