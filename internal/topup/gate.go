package topup

import (
	"context"
	"fmt"
	"time"
)

// DecayCountdown is the sentinel countdown value the machine reports
// when the ring is in decay mode and no injection is scheduled.
const DecayCountdown = -1

// Facility reads machine status signals from the synchrotron.
type Facility interface {
	// Mode returns the current machine mode, e.g. "User" or "Shutdown".
	Mode(ctx context.Context) (string, error)

	// RefillCountdown returns seconds until the next injection starts,
	// 0 while an injection is in progress, or DecayCountdown when the
	// ring is in decay mode.
	RefillCountdown(ctx context.Context) (float64, error)

	// EndCountdown returns seconds until the current or imminent
	// injection finishes.
	EndCountdown(ctx context.Context) (float64, error)
}

// Decision records why the gate released an acquisition.
type Decision int

const (
	// DecisionPass means the exposure window fit before the next
	// injection, or the machine mode made the countdown meaningless.
	DecisionPass Decision = iota

	// DecisionDecay means the ring is in decay mode.
	DecisionDecay

	// DecisionWaited means the gate slept through an injection before
	// releasing.
	DecisionWaited
)

func (d Decision) String() string {
	switch d {
	case DecisionPass:
		return "pass"
	case DecisionDecay:
		return "decay"
	case DecisionWaited:
		return "waited"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}

// Config holds gate tuning.
type Config struct {
	// AllowedModes lists the machine modes in which the countdown is
	// meaningful. Any other mode fails open.
	AllowedModes []string

	// OpsOverhead is added to the exposure time to cover detector arm,
	// shutter and readout latency around the exposure itself.
	OpsOverhead time.Duration

	// PollInterval is how often the countdown is re-read while waiting
	// for an injection to clear.
	PollInterval time.Duration
}

// Gate delays acquisitions that would straddle a top-up injection.
type Gate struct {
	facility Facility
	cfg      Config
	logger   Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate creates a Gate.
//
// Parameters:
//   - facility: machine status source
//   - cfg: gate tuning; a zero PollInterval defaults to 100ms
//   - logger: Logger instance (nil for no logging)
func NewGate(facility Facility, cfg Config, logger Logger) *Gate {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Gate{
		facility: facility,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Await blocks until the given exposure can run without straddling an
// injection, then returns the decision taken.
//
// Await fails open: a machine mode outside the allowed set, or an error
// reading any machine signal, releases the acquisition immediately
// rather than holding the beamline hostage to a telemetry fault.
//
// Returns:
//   - the Decision taken
//   - ctx.Err() if the context is cancelled while waiting
func (g *Gate) Await(ctx context.Context, exposure time.Duration) (Decision, error) {
	countdown, err := g.facility.RefillCountdown(ctx)
	if err != nil {
		g.logger.Warn("refill countdown unavailable, gating skipped", "error", err)
		return DecisionPass, nil
	}
	if countdown == DecayCountdown {
		g.logger.Debug("machine in decay mode, no gating")
		return DecisionDecay, nil
	}

	mode, err := g.facility.Mode(ctx)
	if err != nil {
		g.logger.Warn("machine mode unavailable, gating skipped", "error", err)
		return DecisionPass, nil
	}
	if !g.modeAllowed(mode) {
		g.logger.Info("machine mode outside gating set, acquiring immediately", "mode", mode)
		return DecisionPass, nil
	}

	window := exposure + g.cfg.OpsOverhead
	if window.Seconds() <= countdown {
		g.logger.Debug("exposure fits before next injection",
			"window_s", window.Seconds(), "countdown_s", countdown)
		return DecisionPass, nil
	}

	// The window straddles the injection. Sleep through it once, then
	// poll until the countdown confirms the beam is stable again.
	endCountdown, err := g.facility.EndCountdown(ctx)
	if err != nil {
		g.logger.Warn("injection end countdown unavailable, gating skipped", "error", err)
		return DecisionPass, nil
	}

	g.logger.Info("waiting for top-up injection to pass",
		"window_s", window.Seconds(), "countdown_s", countdown, "wait_s", endCountdown)
	if err := g.sleep(ctx, time.Duration(endCountdown*float64(time.Second))); err != nil {
		return DecisionWaited, err
	}

	for {
		countdown, err := g.facility.RefillCountdown(ctx)
		if err != nil {
			g.logger.Warn("refill countdown unavailable after wait, gating skipped", "error", err)
			return DecisionWaited, nil
		}
		if countdown != 0 {
			g.logger.Debug("injection cleared", "countdown_s", countdown)
			return DecisionWaited, nil
		}
		if err := g.sleep(ctx, g.cfg.PollInterval); err != nil {
			return DecisionWaited, err
		}
	}
}

func (g *Gate) modeAllowed(mode string) bool {
	for _, m := range g.cfg.AllowedModes {
		if m == mode {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
