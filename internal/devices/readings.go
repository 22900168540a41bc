package devices

import (
	"context"
	"fmt"

	"github.com/mxbeam/beamline-core/internal/beamline"
	"github.com/mxbeam/beamline-core/internal/deposition"
)

// HardwareReadings captures the pre-collection snapshot the deposition
// recorder folds into collection records.
type HardwareReadings struct {
	ctrl     beamline.Controller
	facility *MachineStatus
}

// NewHardwareReadings creates the readings adapter.
func NewHardwareReadings(ctrl beamline.Controller, facility *MachineStatus) *HardwareReadings {
	return &HardwareReadings{ctrl: ctrl, facility: facility}
}

// BeamlineParameters reads the undulator gap, machine mode and slit
// gaps.
func (r *HardwareReadings) BeamlineParameters(ctx context.Context) (map[string]any, error) {
	gap, err := r.ctrl.Read(ctx, beamline.AxisUndulatorGap)
	if err != nil {
		return nil, fmt.Errorf("reading undulator gap: %w", err)
	}
	mode, err := r.facility.Mode(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading machine mode: %w", err)
	}
	slitH, err := r.ctrl.Read(ctx, beamline.AxisSlitGapH)
	if err != nil {
		return nil, fmt.Errorf("reading horizontal slit gap: %w", err)
	}
	slitV, err := r.ctrl.Read(ctx, beamline.AxisSlitGapV)
	if err != nil {
		return nil, fmt.Errorf("reading vertical slit gap: %w", err)
	}

	return map[string]any{
		deposition.KeyUndulatorGapMM:  gap,
		deposition.KeySynchrotronMode: mode,
		deposition.KeySlitGapHMM:      slitH,
		deposition.KeySlitGapVMM:      slitV,
	}, nil
}

// TransmissionFlux reads the beam transmission and flux.
func (r *HardwareReadings) TransmissionFlux(ctx context.Context) (map[string]any, error) {
	transmission, err := r.ctrl.Read(ctx, beamline.AxisTransmission)
	if err != nil {
		return nil, fmt.Errorf("reading transmission: %w", err)
	}
	flux, err := r.ctrl.Read(ctx, beamline.AxisFlux)
	if err != nil {
		return nil, fmt.Errorf("reading flux: %w", err)
	}

	return map[string]any{
		deposition.KeyTransmissionFraction: transmission,
		deposition.KeyFluxPhotons:          flux,
	}, nil
}
