package devices

import (
	"context"
	"fmt"

	"github.com/mxbeam/beamline-core/internal/beamline"
	"github.com/mxbeam/beamline-core/internal/sequencer"
)

// Cryostream signals served by the gateway.
const (
	signalCryoTemperature  = "temperature"
	signalCryoBackPressure = "back-pressure"
)

// Cryostream limits for sample safety. Above either there is no point
// starting a transition: the sample is already warming or the nozzle
// flow is compromised.
const (
	maxCryoTemperatureK    = 110.0
	maxCryoBackPressureBar = 0.1
)

// Cryostream reads the sample cryocooler through the gateway.
type Cryostream struct {
	client *gatewayClient
}

// NewCryostream creates the cryostream adapter.
func NewCryostream(bus Bus, qos byte, logger Logger) (*Cryostream, error) {
	client, err := newGatewayClient(bus, classCryo, qos, logger)
	if err != nil {
		return nil, fmt.Errorf("cryostream: %w", err)
	}
	return &Cryostream{client: client}, nil
}

// Temperature returns the nozzle gas temperature in kelvin.
func (c *Cryostream) Temperature(ctx context.Context) (float64, error) {
	var temperature float64
	if err := c.client.request(ctx, signalCryoTemperature, &temperature); err != nil {
		return 0, err
	}
	return temperature, nil
}

// BackPressure returns the return-line back pressure in bar.
func (c *Cryostream) BackPressure(ctx context.Context) (float64, error) {
	var pressure float64
	if err := c.client.request(ctx, signalCryoBackPressure, &pressure); err != nil {
		return 0, err
	}
	return pressure, nil
}

// Interlocks returns the pre-flight checks the default-state transition
// runs before any motion.
func (c *Cryostream) Interlocks() []sequencer.Interlock {
	return []sequencer.Interlock{
		{
			Name: "cryostream-temperature",
			Check: func(ctx context.Context, _ beamline.Controller) error {
				temperature, err := c.Temperature(ctx)
				if err != nil {
					return err
				}
				if temperature > maxCryoTemperatureK {
					return fmt.Errorf("temperature %.1f K above %.0f K limit", temperature, maxCryoTemperatureK)
				}
				return nil
			},
		},
		{
			Name: "cryostream-back-pressure",
			Check: func(ctx context.Context, _ beamline.Controller) error {
				pressure, err := c.BackPressure(ctx)
				if err != nil {
					return err
				}
				if pressure > maxCryoBackPressureBar {
					return fmt.Errorf("back pressure %.3f bar above %.1f bar limit", pressure, maxCryoBackPressureBar)
				}
				return nil
			},
		},
	}
}
