package devices

import (
	"context"
	"fmt"
	"io"

	"github.com/mxbeam/beamline-core/internal/gridscan"
)

// NexusWriter manages the collection metadata container through the
// gateway's file writer. One container is opened per sweep and must be
// closed before another sweep may open it.
type NexusWriter struct {
	client *gatewayClient
}

// NewNexusWriter creates a metadata writer client.
func NewNexusWriter(bus Bus, qos byte, logger Logger) (*NexusWriter, error) {
	client, err := newGatewayClient(bus, classNexus, qos, logger)
	if err != nil {
		return nil, fmt.Errorf("nexus writer: %w", err)
	}
	return &NexusWriter{client: client}, nil
}

// Open creates the sweep's metadata container and returns the handle
// that releases it. The caller owns the handle for the sweep's
// acquisition and must close it on every path out.
func (w *NexusWriter) Open(ctx context.Context, sweep gridscan.Sweep) (io.Closer, error) {
	err := w.client.command(ctx, "open", map[string]any{
		"record_uid":      sweep.RecordUID,
		"run_number":      sweep.RunNumber,
		"omega_start_deg": sweep.OmegaStartDeg,
		"frames":          sweep.Frames,
		"exposure_time_s": sweep.ExposureTimeS,
		"x_steps":         sweep.Grid.XSteps,
		"y_steps":         sweep.Grid.YSteps,
		"x_step_mm":       sweep.Grid.XStepMM,
		"y_step_mm":       sweep.Grid.YStepMM,
	}, 0)
	if err != nil {
		return nil, err
	}
	return &nexusHandle{client: w.client, recordUID: sweep.RecordUID}, nil
}

// nexusHandle closes one opened container.
type nexusHandle struct {
	client    *gatewayClient
	recordUID string
}

// Close finalises the container. Close has no context of its own so the
// command runs against the default command timeout; a scan that was
// cancelled still gets its container closed.
func (h *nexusHandle) Close() error {
	return h.client.command(context.Background(), "close", map[string]any{
		"record_uid": h.recordUID,
	}, 0)
}
