package devices

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mxbeam/beamline-core/internal/beamline"
)

// SampleStages drives the sample positioning stack: three linear axes
// through the motion controller, plus the goniometer's stub-offset
// command through the gateway.
type SampleStages struct {
	ctrl   beamline.Controller
	client *gatewayClient
}

// NewSampleStages creates the sample stage adapter.
func NewSampleStages(ctrl beamline.Controller, bus Bus, qos byte, logger Logger) (*SampleStages, error) {
	client, err := newGatewayClient(bus, classMotion, qos, logger)
	if err != nil {
		return nil, fmt.Errorf("sample stages: %w", err)
	}
	return &SampleStages{ctrl: ctrl, client: client}, nil
}

// MoveTo drives the three sample axes concurrently and waits for all
// of them to settle.
func (s *SampleStages) MoveTo(ctx context.Context, positionMM [3]float64) error {
	axes := [3]beamline.Axis{beamline.AxisSampleX, beamline.AxisSampleY, beamline.AxisSampleZ}

	g, gctx := errgroup.WithContext(ctx)
	for i, axis := range axes {
		completion, err := s.ctrl.Set(ctx, axis, positionMM[i])
		if err != nil {
			return fmt.Errorf("moving %s: %w", axis, err)
		}
		axis := axis
		g.Go(func() error {
			if err := completion.Wait(gctx); err != nil {
				return fmt.Errorf("moving %s: %w", axis, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// SetStubOffsets re-centres the goniometer coordinate system on the
// current sample position.
func (s *SampleStages) SetStubOffsets(ctx context.Context) error {
	return s.client.command(ctx, "set-stub-offsets", nil, 0)
}

// Omega returns the rotation axis position in degrees.
func (s *SampleStages) Omega(ctx context.Context) (float64, error) {
	return s.ctrl.Read(ctx, beamline.AxisOmega)
}
