package devices

import (
	"context"
	"fmt"
)

// Machine status signals served by the facility gateway.
const (
	signalMachineMode     = "machine-mode"
	signalRefillCountdown = "refill-countdown"
	signalEndCountdown    = "refill-end-countdown"
)

// MachineStatus reads synchrotron machine signals through the gateway.
// It implements the top-up gate's Facility interface.
type MachineStatus struct {
	client *gatewayClient
}

// NewMachineStatus creates the machine status adapter.
func NewMachineStatus(bus Bus, qos byte, logger Logger) (*MachineStatus, error) {
	client, err := newGatewayClient(bus, classFacility, qos, logger)
	if err != nil {
		return nil, fmt.Errorf("machine status: %w", err)
	}
	return &MachineStatus{client: client}, nil
}

// Mode returns the current machine mode, e.g. "User".
func (m *MachineStatus) Mode(ctx context.Context) (string, error) {
	var mode string
	if err := m.client.request(ctx, signalMachineMode, &mode); err != nil {
		return "", err
	}
	return mode, nil
}

// RefillCountdown returns seconds until the next injection, 0 during
// an injection, or -1 in decay mode.
func (m *MachineStatus) RefillCountdown(ctx context.Context) (float64, error) {
	var countdown float64
	if err := m.client.request(ctx, signalRefillCountdown, &countdown); err != nil {
		return 0, err
	}
	return countdown, nil
}

// EndCountdown returns seconds until the current or imminent injection
// finishes.
func (m *MachineStatus) EndCountdown(ctx context.Context) (float64, error) {
	var countdown float64
	if err := m.client.request(ctx, signalEndCountdown, &countdown); err != nil {
		return 0, err
	}
	return countdown, nil
}
