package devices

import (
	"context"

	"github.com/mxbeam/beamline-core/internal/beamline"
	"github.com/mxbeam/beamline-core/internal/sequencer"
)

// Default-state targets. Calibrated per endstation; these are the
// commissioning values and can be overridden through NewDefaultStateMover.
const (
	safeScintillatorY = 0.015
	safeScintillatorZ = 0.1
	safeApertureX     = -4.91
	safeScatterguardX = -4.75
)

// Scintillator clearance thresholds. At or inside these the stick is
// already parked and the clearance batches can be skipped.
const (
	scintillatorSafeY = 0.016
	scintillatorSafeZ = 0.1
)

// DefaultStatePositions returns the robot-load target configuration:
// scintillator parked under the optics table, aperture and scatterguard
// clear of its travel, goniometer and sample stages at zero.
func DefaultStatePositions() beamline.PositionSet {
	return beamline.MustPositionSet("default-state",
		beamline.AxisTarget{Axis: beamline.AxisScintillatorY, Position: safeScintillatorY},
		beamline.AxisTarget{Axis: beamline.AxisScintillatorZ, Position: safeScintillatorZ},
		beamline.AxisTarget{Axis: beamline.AxisApertureX, Position: safeApertureX},
		beamline.AxisTarget{Axis: beamline.AxisScatterguardX, Position: safeScatterguardX},
		beamline.AxisTarget{Axis: beamline.AxisOmega, Position: 0},
		beamline.AxisTarget{Axis: beamline.AxisSampleX, Position: 0},
		beamline.AxisTarget{Axis: beamline.AxisSampleY, Position: 0},
		beamline.AxisTarget{Axis: beamline.AxisSampleZ, Position: 0},
	)
}

// DefaultStateBatches returns the ordered batches for the default-state
// transition. The scintillator stick parks under the optics table, so
// its vertical clearance move (with the aperture and scatterguard
// pulled clear) must finish before the stick travels in z. Only then is
// the sample environment safe for goniometer and stage moves.
func DefaultStateBatches() []sequencer.Batch {
	alreadyParked := func(ctx context.Context, ctrl beamline.Controller) (bool, error) {
		y, err := ctrl.Read(ctx, beamline.AxisScintillatorY)
		if err != nil {
			return false, err
		}
		z, err := ctrl.Read(ctx, beamline.AxisScintillatorZ)
		if err != nil {
			return false, err
		}
		return y < scintillatorSafeY && z < scintillatorSafeZ, nil
	}

	return []sequencer.Batch{
		{
			Name: "scintillator-clearance",
			Axes: []beamline.Axis{
				beamline.AxisScintillatorY,
				beamline.AxisApertureX,
				beamline.AxisScatterguardX,
			},
			SkipWhen: alreadyParked,
		},
		{
			Name:     "scintillator-park",
			Axes:     []beamline.Axis{beamline.AxisScintillatorZ},
			After:    []string{"scintillator-clearance"},
			SkipWhen: alreadyParked,
		},
		{
			Name:  "goniometer",
			Axes:  []beamline.Axis{beamline.AxisOmega},
			After: []string{"scintillator-park"},
		},
		{
			Name:  "sample-stages",
			Axes:  []beamline.Axis{beamline.AxisSampleX, beamline.AxisSampleY, beamline.AxisSampleZ},
			After: []string{"goniometer"},
		},
	}
}

// DefaultStateMover drives the beamline to its robot-load default state
// through the safety sequencer. It implements the grid-scan plan's
// SafetyMover.
type DefaultStateMover struct {
	seq        *sequencer.Sequencer
	target     beamline.PositionSet
	batches    []sequencer.Batch
	interlocks []sequencer.Interlock
}

// NewDefaultStateMover creates the mover.
//
// Parameters:
//   - seq: safety sequencer bound to the hardware controller
//   - target: target configuration; zero-value selects DefaultStatePositions
//   - batches: transition order; nil selects DefaultStateBatches
//   - interlocks: pre-flight checks, may be nil
func NewDefaultStateMover(seq *sequencer.Sequencer, target beamline.PositionSet, batches []sequencer.Batch, interlocks []sequencer.Interlock) *DefaultStateMover {
	if target.Name() == "" {
		target = DefaultStatePositions()
	}
	if batches == nil {
		batches = DefaultStateBatches()
	}
	return &DefaultStateMover{
		seq:        seq,
		target:     target,
		batches:    batches,
		interlocks: interlocks,
	}
}

// MoveToSafe runs the default-state transition.
func (m *DefaultStateMover) MoveToSafe(ctx context.Context) error {
	return m.seq.Run(ctx, m.target, m.batches, m.interlocks)
}
