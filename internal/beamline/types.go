package beamline

import "fmt"

// Axis identifies one controllable hardware degree of freedom.
type Axis string

// Well-known axes on the endstation. The gateway accepts any axis name;
// these constants cover the hardware the orchestrator drives directly.
const (
	// Sample stages.
	AxisSampleX Axis = "sample-x"
	AxisSampleY Axis = "sample-y"
	AxisSampleZ Axis = "sample-z"

	// Rotation axis.
	AxisOmega Axis = "omega"

	// Beam-defining aperture and scatterguard assembly.
	AxisApertureY     Axis = "aperture-y"
	AxisApertureZ     Axis = "aperture-z"
	AxisApertureX     Axis = "aperture-x"
	AxisScatterguardX Axis = "scatterguard-x"
	AxisScatterguardY Axis = "scatterguard-y"

	// Retractable scintillator beneath the fixed table.
	AxisScintillatorY Axis = "scintillator-y"
	AxisScintillatorZ Axis = "scintillator-z"

	// Read-only beamline signals exposed through the same gateway.
	AxisUndulatorGap Axis = "undulator-gap"
	AxisSlitGapH     Axis = "slit-gap-h"
	AxisSlitGapV     Axis = "slit-gap-v"
	AxisTransmission Axis = "transmission"
	AxisFlux         Axis = "flux"
)

// AxisTarget pairs an axis with a target position.
type AxisTarget struct {
	Axis     Axis
	Position float64
}

// PositionSet is a named, immutable mapping from axis to target value.
// It represents either a parked/safe configuration or a collection
// configuration. Construction rejects duplicate axes so a set can never
// command the same axis to two conflicting values.
type PositionSet struct {
	name    string
	targets []AxisTarget
	index   map[Axis]float64
}

// NewPositionSet builds a PositionSet from the given targets.
// Declaration order is preserved; it matters for tie-breaking in the
// sequencer.
//
// Returns ErrDuplicateAxis if the same axis appears twice.
func NewPositionSet(name string, targets ...AxisTarget) (PositionSet, error) {
	index := make(map[Axis]float64, len(targets))
	for _, t := range targets {
		if _, seen := index[t.Axis]; seen {
			return PositionSet{}, fmt.Errorf("%w: %s in set %q", ErrDuplicateAxis, t.Axis, name)
		}
		index[t.Axis] = t.Position
	}

	copied := make([]AxisTarget, len(targets))
	copy(copied, targets)

	return PositionSet{
		name:    name,
		targets: copied,
		index:   index,
	}, nil
}

// MustPositionSet is like NewPositionSet but panics on error.
// Use only for statically known sets (package-level defaults).
func MustPositionSet(name string, targets ...AxisTarget) PositionSet {
	set, err := NewPositionSet(name, targets...)
	if err != nil {
		panic(err)
	}
	return set
}

// Name returns the set's name.
func (p PositionSet) Name() string {
	return p.name
}

// Targets returns the targets in declaration order.
// The returned slice is a copy; callers may not mutate the set.
func (p PositionSet) Targets() []AxisTarget {
	out := make([]AxisTarget, len(p.targets))
	copy(out, p.targets)
	return out
}

// Target returns the target value for an axis, and whether the axis is
// part of the set.
func (p PositionSet) Target(axis Axis) (float64, bool) {
	v, ok := p.index[axis]
	return v, ok
}

// Len returns the number of axes in the set.
func (p PositionSet) Len() int {
	return len(p.targets)
}
