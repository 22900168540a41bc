package devices

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/mxbeam/beamline-core/internal/beamline"
	"github.com/mxbeam/beamline-core/internal/gridscan"
)

// AperturePositions holds the calibrated axis targets for each
// aperture size. Values come from beamline calibration, not code.
type AperturePositions struct {
	Small beamline.PositionSet
	Large beamline.PositionSet
}

// DefaultAperturePositions returns the commissioning calibration for
// the aperture and scatterguard assembly.
func DefaultAperturePositions() AperturePositions {
	return AperturePositions{
		Small: beamline.MustPositionSet("aperture-small",
			beamline.AxisTarget{Axis: beamline.AxisApertureY, Position: 31.4},
			beamline.AxisTarget{Axis: beamline.AxisApertureZ, Position: 15.8},
			beamline.AxisTarget{Axis: beamline.AxisScatterguardY, Position: -0.75},
		),
		Large: beamline.MustPositionSet("aperture-large",
			beamline.AxisTarget{Axis: beamline.AxisApertureY, Position: 44.4},
			beamline.AxisTarget{Axis: beamline.AxisApertureZ, Position: 15.8},
			beamline.AxisTarget{Axis: beamline.AxisScatterguardY, Position: -0.75},
		),
	}
}

// ApertureScatterguard moves the coupled aperture and scatterguard
// assembly between its calibrated size positions.
//
// The current size is classified from the aperture's vertical axis:
// whichever calibrated position it sits nearest within tolerance.
type ApertureScatterguard struct {
	ctrl      beamline.Controller
	positions AperturePositions
	tolerance float64
}

// NewApertureScatterguard creates the aperture adapter.
//
// Parameters:
//   - ctrl: hardware controller
//   - positions: calibrated small and large position sets
//   - tolerance: classification tolerance on aperture-y, in mm
func NewApertureScatterguard(ctrl beamline.Controller, positions AperturePositions, tolerance float64) *ApertureScatterguard {
	if tolerance <= 0 {
		tolerance = 0.01
	}
	return &ApertureScatterguard{ctrl: ctrl, positions: positions, tolerance: tolerance}
}

// Current classifies the assembly's position by its vertical aperture
// axis.
func (a *ApertureScatterguard) Current(ctx context.Context) (gridscan.ApertureSize, error) {
	y, err := a.ctrl.Read(ctx, beamline.AxisApertureY)
	if err != nil {
		return "", fmt.Errorf("reading aperture position: %w", err)
	}

	if target, ok := a.positions.Small.Target(beamline.AxisApertureY); ok &&
		math.Abs(y-target) <= a.tolerance {
		return gridscan.ApertureSmall, nil
	}
	if target, ok := a.positions.Large.Target(beamline.AxisApertureY); ok &&
		math.Abs(y-target) <= a.tolerance {
		return gridscan.ApertureLarge, nil
	}
	return "", fmt.Errorf("aperture at %.3f mm matches no calibrated size", y)
}

// Move drives every axis of the selected size's position set
// concurrently.
func (a *ApertureScatterguard) Move(ctx context.Context, size gridscan.ApertureSize) error {
	var set beamline.PositionSet
	switch size {
	case gridscan.ApertureSmall:
		set = a.positions.Small
	case gridscan.ApertureLarge:
		set = a.positions.Large
	default:
		return fmt.Errorf("unknown aperture size %q", size)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range set.Targets() {
		completion, err := a.ctrl.Set(ctx, target.Axis, target.Position)
		if err != nil {
			return fmt.Errorf("moving %s: %w", target.Axis, err)
		}
		axis := target.Axis
		g.Go(func() error {
			if err := completion.Wait(gctx); err != nil {
				return fmt.Errorf("moving %s: %w", axis, err)
			}
			return nil
		})
	}
	return g.Wait()
}
