package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/mxbeam/beamline-core/internal/gridscan"
)

// acquireMargin pads the sweep timeout beyond the pure exposure time to
// cover stage turnaround and detector readout.
const acquireMargin = 60 * time.Second

// ScanDriver executes raster sweeps through the gateway's scan
// controller, which owns the coupled stage motion and triggering.
type ScanDriver struct {
	client *gatewayClient
}

// NewScanDriver creates a scan driver client.
func NewScanDriver(bus Bus, qos byte, logger Logger) (*ScanDriver, error) {
	client, err := newGatewayClient(bus, classScan, qos, logger)
	if err != nil {
		return nil, fmt.Errorf("scan driver: %w", err)
	}
	return &ScanDriver{client: client}, nil
}

// Acquire runs one sweep and blocks until the gateway acknowledges the
// last frame. The ack timeout scales with the sweep's exposure budget.
func (s *ScanDriver) Acquire(ctx context.Context, sweep gridscan.Sweep) error {
	timeout := time.Duration(float64(sweep.Frames)*sweep.ExposureTimeS*float64(time.Second)) + acquireMargin

	return s.client.command(ctx, "start", map[string]any{
		"record_uid":      sweep.RecordUID,
		"run_number":      sweep.RunNumber,
		"omega_start_deg": sweep.OmegaStartDeg,
		"frames":          sweep.Frames,
		"exposure_time_s": sweep.ExposureTimeS,
		"x_start_mm":      sweep.Grid.XStartMM,
		"y_start_mm":      sweep.Grid.YStartMM,
		"z_start_mm":      sweep.Grid.ZStartMM,
		"x_step_mm":       sweep.Grid.XStepMM,
		"y_step_mm":       sweep.Grid.YStepMM,
		"z_step_mm":       sweep.Grid.ZStepMM,
		"x_steps":         sweep.Grid.XSteps,
		"y_steps":         sweep.Grid.YSteps,
		"snake":           sweep.Grid.Snake,
	}, timeout)
}
