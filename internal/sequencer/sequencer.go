package sequencer

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/mxbeam/beamline-core/internal/beamline"
)

// Sequencer executes safety-ordered transitions against a hardware
// controller.
//
// Thread Safety: Run is safe for concurrent use, but callers must not
// run two sequences against the same physical axes at once.
type Sequencer struct {
	ctrl      beamline.Controller
	tolerance float64
	logger    Logger
}

// New creates a Sequencer.
//
// Parameters:
//   - ctrl: hardware controller
//   - tolerance: at-target tolerance; <= 0 selects DefaultTolerance
//   - logger: Logger instance (nil for no logging)
func New(ctrl beamline.Controller, tolerance float64, logger Logger) *Sequencer {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Sequencer{
		ctrl:      ctrl,
		tolerance: tolerance,
		logger:    logger,
	}
}

// Run executes a transition to the target PositionSet.
//
// Execution order:
//  1. All interlocks are checked. Any failure aborts before motion.
//  2. Batches are ordered topologically over their After constraints,
//     ties broken by declaration order.
//  3. Each batch runs its guard (if any), skips axes already at target,
//     issues the remaining moves concurrently, and waits for all of
//     them before the next batch starts.
//
// Returns:
//   - nil when the hardware has reached the target configuration
//   - an error wrapping ErrPreflight if an interlock failed
//   - a *BatchError identifying the batch (and axis) that failed
func (s *Sequencer) Run(ctx context.Context, target beamline.PositionSet, batches []Batch, interlocks []Interlock) error {
	// Pre-flight: no point continuing if an interlock is unhappy.
	for _, il := range interlocks {
		if err := il.Check(ctx, s.ctrl); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPreflight, il.Name, err)
		}
	}

	ordered, err := orderBatches(batches)
	if err != nil {
		return err
	}

	for _, batch := range ordered {
		if err := s.runBatch(ctx, target, batch); err != nil {
			return err
		}
	}

	s.logger.Info("transition complete", "target", target.Name())
	return nil
}

// runBatch executes one batch: guard, at-target skip, concurrent moves.
func (s *Sequencer) runBatch(ctx context.Context, target beamline.PositionSet, batch Batch) error {
	if batch.SkipWhen != nil {
		skip, err := batch.SkipWhen(ctx, s.ctrl)
		if err != nil {
			return &BatchError{Batch: batch.Name, Err: fmt.Errorf("guard read: %w", err)}
		}
		if skip {
			s.logger.Debug("batch skipped by guard", "batch", batch.Name)
			return nil
		}
	}

	// Work out which axes actually need to move.
	type pendingMove struct {
		axis     beamline.Axis
		position float64
	}
	var moves []pendingMove
	for _, axis := range batch.Axes {
		want, ok := target.Target(axis)
		if !ok {
			return &BatchError{Batch: batch.Name, Axis: axis, Err: ErrAxisNotInSet}
		}

		current, err := s.ctrl.Read(ctx, axis)
		if err != nil {
			return &BatchError{Batch: batch.Name, Axis: axis, Err: fmt.Errorf("reading current position: %w", err)}
		}
		if math.Abs(current-want) <= s.tolerance {
			s.logger.Debug("axis already at target", "batch", batch.Name, "axis", axis, "position", current)
			continue
		}
		moves = append(moves, pendingMove{axis: axis, position: want})
	}

	if len(moves) == 0 {
		return nil
	}

	// Issue all moves, then join on every completion.
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range moves {
		completion, err := s.ctrl.Set(ctx, m.axis, m.position)
		if err != nil {
			return &BatchError{Batch: batch.Name, Axis: m.axis, Err: err}
		}
		axis := m.axis
		g.Go(func() error {
			if err := completion.Wait(gctx); err != nil {
				return &BatchError{Batch: batch.Name, Axis: axis, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Debug("batch complete", "batch", batch.Name, "moves", len(moves))
	return nil
}

// orderBatches returns the batches in topological order over their After
// constraints. Ties are broken by declaration order (Kahn's algorithm
// with a stable ready queue).
func orderBatches(batches []Batch) ([]Batch, error) {
	byName := make(map[string]int, len(batches))
	for i, b := range batches {
		byName[b.Name] = i
	}

	indegree := make([]int, len(batches))
	dependents := make(map[int][]int, len(batches))
	for i, b := range batches {
		for _, dep := range b.After {
			j, ok := byName[dep]
			if !ok {
				return nil, fmt.Errorf("%w: batch %q depends on %q", ErrUnknownBatch, b.Name, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// Ready queue kept sorted by declaration index for stable output.
	var ready []int
	for i := range batches {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	ordered := make([]Batch, 0, len(batches))
	for len(ready) > 0 {
		// Pop the lowest declaration index.
		min := 0
		for k := 1; k < len(ready); k++ {
			if ready[k] < ready[min] {
				min = k
			}
		}
		i := ready[min]
		ready = append(ready[:min], ready[min+1:]...)

		ordered = append(ordered, batches[i])
		for _, dep := range dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(ordered) != len(batches) {
		return nil, ErrCycle
	}
	return ordered, nil
}
