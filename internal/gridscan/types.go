package gridscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mxbeam/beamline-core/internal/deposition"
	"github.com/mxbeam/beamline-core/internal/rendezvous"
	"github.com/mxbeam/beamline-core/internal/topup"
)

// Phase is one step of the plan's fixed sequence.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseSafetyMove     Phase = "safety_move"
	PhaseArmed          Phase = "armed"
	PhaseGated          Phase = "gated"
	PhaseAcquiring      Phase = "acquiring"
	PhaseCorrelating    Phase = "correlating"
	PhaseApertureAdjust Phase = "aperture_adjust"
	PhaseFinalMove      Phase = "final_move"
	PhaseTidying        Phase = "tidying"
	PhaseDone           Phase = "done"
	PhaseFailed         Phase = "failed"
)

// Sentinel errors for plan execution.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidParameters marks a rejected scan request. It is a
	// warning, not a hardware fault: nothing was submitted for
	// analysis and the beamline is untouched.
	ErrInvalidParameters = errors.New("gridscan: invalid scan parameters")

	// ErrOmegaMismatch is returned when the rotation axis is not where
	// the scan expects it before arming.
	ErrOmegaMismatch = errors.New("gridscan: omega axis not at expected start")
)

// ApertureSize selects one of the beam-defining apertures.
type ApertureSize string

const (
	ApertureSmall ApertureSize = "small"
	ApertureLarge ApertureSize = "large"
)

// Params is one scan request.
type Params struct {
	Visit          string         `json:"visit"`
	SampleID       int64          `json:"sample_id"`
	ExperimentType string         `json:"experiment_type"`
	Grid           GridDescriptor `json:"grid"`
	ExposureTimeS  float64        `json:"exposure_time_s"`
	OmegaStartDeg  float64        `json:"omega_start_deg"`
	Directory      string         `json:"directory"`
	FileTemplate   string         `json:"file_template"`
}

// Validate rejects requests that cannot form a physical scan.
func (p Params) Validate() error {
	if p.Visit == "" {
		return fmt.Errorf("%w: visit is required", ErrInvalidParameters)
	}
	if p.SampleID <= 0 {
		return fmt.Errorf("%w: sample id %d", ErrInvalidParameters, p.SampleID)
	}
	if p.ExposureTimeS <= 0 {
		return fmt.Errorf("%w: exposure time %g s", ErrInvalidParameters, p.ExposureTimeS)
	}
	if err := p.Grid.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	return nil
}

// Sweep is one acquisition pass handed to the Acquirer.
type Sweep struct {
	RecordUID     string
	RunNumber     int
	OmegaStartDeg float64
	Frames        int
	ExposureTimeS float64
	Grid          GridDescriptor
}

// The plan drives its hardware and services through small
// consumer-defined interfaces so tests can stand in fakes.

// SafetyMover drives the beamline to its scan-safe configuration.
// Satisfied by a sequencer run bound to the safe position set; guards
// make re-running it cheap when the hardware is already safe.
type SafetyMover interface {
	MoveToSafe(ctx context.Context) error
}

// Detector arms and disarms the area detector.
type Detector interface {
	Arm(ctx context.Context, frames int, exposureTimeS float64) error
	Disarm(ctx context.Context) error
}

// Trigger drives the hardware trigger box that paces the detector
// against stage motion.
type Trigger interface {
	Arm(ctx context.Context, frames int) error
	Reset(ctx context.Context) error
}

// Acquirer executes one sweep's raster flight.
type Acquirer interface {
	Acquire(ctx context.Context, sweep Sweep) error
}

// Aperture reads and changes the beam-defining aperture.
type Aperture interface {
	Current(ctx context.Context) (ApertureSize, error)
	Move(ctx context.Context, size ApertureSize) error
}

// Stages moves the sample stages.
type Stages interface {
	// MoveTo drives the sample to the given motor position.
	MoveTo(ctx context.Context, positionMM [3]float64) error

	// SetStubOffsets re-centres the goniometer coordinate system on
	// the current position.
	SetStubOffsets(ctx context.Context) error

	// Omega returns the rotation axis position in degrees.
	Omega(ctx context.Context) (float64, error)
}

// MetadataWriter opens the collection's metadata container for one
// sweep. The handle is held for that sweep's acquisition only and is
// closed on every exit path, fault or not, so an aborted scan never
// leaves the container locked.
type MetadataWriter interface {
	Open(ctx context.Context, sweep Sweep) (io.Closer, error)
}

// Gate delays acquisition around top-up injections.
// Satisfied by *topup.Gate.
type Gate interface {
	Await(ctx context.Context, exposure time.Duration) (topup.Decision, error)
}

// Centring joins the scan to its analysis results.
// Satisfied by *rendezvous.Coordinator.
type Centring interface {
	Submit(ctx context.Context, groupUID, collectionID string) error
	NotifyComplete(ctx context.Context, collectionID string) error
	AwaitCentre(ctx context.Context, groupUID string, fallback [3]float64) rendezvous.Outcome
}

// Bookkeeper opens the scan's collection bookkeeping.
// Satisfied by *deposition.Store.
type Bookkeeper interface {
	CreateGroup(ctx context.Context, params deposition.GroupParams) (*deposition.CollectionGroup, error)
	PlanSweeps(ctx context.Context, groupUID string, base deposition.SweepParams, threeD bool) ([]deposition.CollectionRecord, error)
}

// Readings captures the pre-collection hardware snapshot.
type Readings interface {
	// BeamlineParameters returns the undulator, mode and slit readings.
	BeamlineParameters(ctx context.Context) (map[string]any, error)

	// TransmissionFlux returns the transmission and flux readings.
	TransmissionFlux(ctx context.Context) (map[string]any, error)
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
