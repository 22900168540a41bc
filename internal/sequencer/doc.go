// Package sequencer executes safety-ordered hardware transitions.
//
// A transition moves a set of axes from whatever configuration they are
// in to a named target PositionSet without passing through an
// intermediate configuration that risks physical collision. Ordering is
// declared, not computed: each batch of axes can name the batches that
// must complete before it is commanded, and the sequencer derives a
// topological order over that precedence graph (ties broken by
// declaration order).
//
// Within a batch all moves are issued concurrently and joined with one
// combined wait. Batches never overlap.
//
// # Safety Semantics
//
//   - Pre-flight interlocks run before any motion. If one fails or its
//     read errors, the sequence aborts without a single move issued.
//   - A batch may carry a guard predicate; when the guard reports the
//     system is already safe the batch is skipped entirely.
//   - Axes already within tolerance of their target are not commanded,
//     so re-running a sequence at its target issues zero moves.
//   - A failed move stops the sequence; later batches are not started,
//     and the error identifies the batch and axis that failed.
//
// The canonical use is the robot-load / default-state transition: a
// retractable scintillator must withdraw along its clearance axis before
// its lateral axis may move, and the aperture and scatterguard must
// already be clear before the lateral batch is allowed.
package sequencer
