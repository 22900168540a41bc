// Package beamline models the controllable hardware surface of the
// endstation: named axes, target position sets, and the capability
// interface through which the orchestration layers command moves and
// read back values.
//
// The package does not talk to the control system directly. The concrete
// BusController speaks to a hardware gateway over MQTT using the
// command/ack and request/response patterns; everything above it depends
// only on the small Controller interface, so tests substitute an
// in-memory fake.
//
// # Capability Interface
//
//	type Controller interface {
//	    Read(ctx context.Context, axis Axis) (float64, error)
//	    Set(ctx context.Context, axis Axis, position float64) (Completion, error)
//	}
//
// Set returns immediately with a Completion handle; the hardware signals
// completion asynchronously and Completion.Wait joins on it. This lets a
// caller issue a batch of moves concurrently and wait for all of them
// with one combined join.
package beamline
