package gridscan

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mxbeam/beamline-core/internal/deposition"
	"github.com/mxbeam/beamline-core/internal/docbus"
)

// Config carries the plan's beamline-specific tuning.
type Config struct {
	// OmegaToleranceDeg is how far the rotation axis may sit from the
	// scan's omega start before arming is refused.
	OmegaToleranceDeg float64

	// ApertureSmallThreshold selects the small aperture when the
	// chosen crystal's bounding box spans strictly fewer grid boxes
	// than this along the fast axis.
	ApertureSmallThreshold float64

	// SetStubOffsets re-centres the goniometer coordinate system after
	// a successful centring move.
	SetStubOffsets bool

	// DetectorID identifies the detector in collection bookkeeping.
	DetectorID int64
}

// Deps are the hardware and service surfaces the plan drives.
type Deps struct {
	Safety     SafetyMover
	Detector   Detector
	Trigger    Trigger
	Acquirer   Acquirer
	Aperture   Aperture
	Stages     Stages
	Gate       Gate
	Metadata   MetadataWriter
	Centring   Centring
	Bookkeeper Bookkeeper
	Readings   Readings
	Bus        *docbus.Bus
	Logger     Logger
}

// Plan is one grid scan execution. A Plan runs once; the Runner
// creates a fresh Plan per request.
type Plan struct {
	params Params
	cfg    Config
	deps   Deps

	mu       sync.Mutex
	phase    Phase
	groupUID string

	runUID      string
	stopEmitted bool
}

// NewPlan creates a Plan for one scan request.
func NewPlan(params Params, cfg Config, deps Deps) *Plan {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	return &Plan{params: params, cfg: cfg, deps: deps, phase: PhaseIdle}
}

// Phase returns the plan's current phase.
func (p *Plan) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// GroupUID returns the collection group this plan deposited under, or
// "" before bookkeeping opened.
func (p *Plan) GroupUID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.groupUID
}

func (p *Plan) setPhase(phase Phase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
	p.deps.Logger.Debug("phase", "phase", phase)
}

// Run executes the scan. Tidy-up runs on every path out, including
// parameter rejection and hardware faults.
func (p *Plan) Run(ctx context.Context) (err error) {
	defer func() {
		p.setPhase(PhaseTidying)
		p.tidy()
		if err != nil {
			p.setPhase(PhaseFailed)
		} else {
			p.setPhase(PhaseDone)
		}
	}()

	if verr := p.params.Validate(); verr != nil {
		p.deps.Logger.Warn("scan request rejected", "error", verr)
		return verr
	}

	p.setPhase(PhaseSafetyMove)
	if err := p.deps.Safety.MoveToSafe(ctx); err != nil {
		return fmt.Errorf("safety move: %w", err)
	}

	omega, err := p.deps.Stages.Omega(ctx)
	if err != nil {
		return fmt.Errorf("reading omega: %w", err)
	}
	if math.Abs(omega-p.params.OmegaStartDeg) > p.cfg.OmegaToleranceDeg {
		return fmt.Errorf("%w: at %.2f, expected %.2f (tolerance %.2f)",
			ErrOmegaMismatch, omega, p.params.OmegaStartDeg, p.cfg.OmegaToleranceDeg)
	}

	p.setPhase(PhaseArmed)
	records, err := p.arm(ctx)
	if err != nil {
		return err
	}

	if err := p.openRun(ctx); err != nil {
		return err
	}

	p.setPhase(PhaseGated)
	exposure := time.Duration(float64(p.params.Grid.FramesPerSweep()*len(records)) *
		p.params.ExposureTimeS * float64(time.Second))
	decision, err := p.deps.Gate.Await(ctx, exposure)
	if err != nil {
		p.emitStop(ctx, docbus.ExitAborted, "cancelled while gated")
		return fmt.Errorf("top-up gate: %w", err)
	}
	p.deps.Logger.Info("top-up gate released", "decision", decision.String())

	p.setPhase(PhaseAcquiring)
	if err := p.acquire(ctx, records); err != nil {
		p.emitStop(ctx, docbus.ExitFailed, err.Error())
		p.safetyReturn(ctx)
		return err
	}
	p.emitStop(ctx, docbus.ExitSuccess, "")

	p.setPhase(PhaseCorrelating)
	outcome := p.deps.Centring.AwaitCentre(ctx, p.GroupUID(), p.params.Grid.Centre())

	p.setPhase(PhaseApertureAdjust)
	if err := p.adjustAperture(ctx, outcome.BBoxSize); err != nil {
		p.safetyReturn(ctx)
		return err
	}

	p.setPhase(PhaseFinalMove)
	position := p.params.Grid.MotorPosition(outcome.Centre)
	if err := p.deps.Stages.MoveTo(ctx, position); err != nil {
		return fmt.Errorf("final move: %w", err)
	}
	if p.cfg.SetStubOffsets && !outcome.Fallback {
		if err := p.deps.Stages.SetStubOffsets(ctx); err != nil {
			p.deps.Logger.Warn("setting stub offsets failed", "error", err)
		}
	}

	p.deps.Logger.Info("grid scan complete",
		"group_uid", p.GroupUID(), "fallback", outcome.Fallback, "position_mm", position)
	return nil
}

// arm opens bookkeeping and arms the detector and trigger.
func (p *Plan) arm(ctx context.Context) ([]deposition.CollectionRecord, error) {
	group, err := p.deps.Bookkeeper.CreateGroup(ctx, deposition.GroupParams{
		Visit:          p.params.Visit,
		SampleID:       p.params.SampleID,
		DetectorID:     p.cfg.DetectorID,
		ExperimentType: p.params.ExperimentType,
	})
	if err != nil {
		return nil, fmt.Errorf("opening collection group: %w", err)
	}
	p.mu.Lock()
	p.groupUID = group.GroupUID
	p.mu.Unlock()

	records, err := p.deps.Bookkeeper.PlanSweeps(ctx, group.GroupUID, deposition.SweepParams{
		OmegaStart:    p.params.OmegaStartDeg,
		NumImages:     p.params.Grid.FramesPerSweep(),
		ExposureTimeS: p.params.ExposureTimeS,
		FileTemplate:  p.params.FileTemplate,
		Directory:     p.params.Directory,
	}, p.params.Grid.ThreeD())
	if err != nil {
		return nil, fmt.Errorf("planning sweeps: %w", err)
	}

	frames := p.params.Grid.FramesPerSweep() * len(records)
	if err := p.deps.Detector.Arm(ctx, frames, p.params.ExposureTimeS); err != nil {
		return nil, fmt.Errorf("arming detector: %w", err)
	}
	if err := p.deps.Trigger.Arm(ctx, frames); err != nil {
		return nil, fmt.Errorf("arming trigger: %w", err)
	}
	return records, nil
}

// openRun emits the start document, the stream descriptors and the
// pre-collection reading events. Both reading streams must land before
// bookkeeping marks the records running.
func (p *Plan) openRun(ctx context.Context) error {
	start := docbus.NewStart(map[string]any{
		deposition.KeyGroupUID: p.GroupUID(),
		"visit":                p.params.Visit,
		"sample_id":            p.params.SampleID,
		"experiment_type":      p.params.ExperimentType,
	})
	p.mu.Lock()
	p.runUID = start.UID
	p.mu.Unlock()
	p.deps.Bus.Publish(ctx, start)

	paramsDesc := docbus.NewDescriptor(start.UID, deposition.StreamBeamlineParameters)
	fluxDesc := docbus.NewDescriptor(start.UID, deposition.StreamTransmissionFlux)
	p.deps.Bus.Publish(ctx, paramsDesc)
	p.deps.Bus.Publish(ctx, fluxDesc)

	beamline, err := p.deps.Readings.BeamlineParameters(ctx)
	if err != nil {
		p.emitStop(ctx, docbus.ExitFailed, "beamline readings unavailable")
		return fmt.Errorf("reading beamline parameters: %w", err)
	}
	p.deps.Bus.Publish(ctx, docbus.NewEvent(paramsDesc.UID, beamline))

	flux, err := p.deps.Readings.TransmissionFlux(ctx)
	if err != nil {
		p.emitStop(ctx, docbus.ExitFailed, "flux readings unavailable")
		return fmt.Errorf("reading transmission and flux: %w", err)
	}
	p.deps.Bus.Publish(ctx, docbus.NewEvent(fluxDesc.UID, flux))
	return nil
}

// acquire runs every sweep and hands each finished collection to the
// analysis service. Submission failures are logged, not fatal: the
// rendezvous falls back when a result never arrives.
func (p *Plan) acquire(ctx context.Context, records []deposition.CollectionRecord) error {
	for _, rec := range records {
		sweep := Sweep{
			RecordUID:     rec.RecordUID,
			RunNumber:     rec.RunNumber,
			OmegaStartDeg: rec.OmegaStart,
			Frames:        rec.NumImages,
			ExposureTimeS: rec.ExposureTimeS,
			Grid:          p.params.Grid,
		}
		if err := p.acquireSweep(ctx, sweep); err != nil {
			return err
		}

		if err := p.deps.Centring.Submit(ctx, rec.GroupUID, rec.RecordUID); err != nil {
			p.deps.Logger.Error("submitting collection for analysis failed",
				"collection_id", rec.RecordUID, "error", err)
			continue
		}
		if err := p.deps.Centring.NotifyComplete(ctx, rec.RecordUID); err != nil {
			p.deps.Logger.Error("notifying collection completion failed",
				"collection_id", rec.RecordUID, "error", err)
		}
	}
	return nil
}

// acquireSweep runs one sweep with the metadata container held open
// around it. The handle is released on every path out, including
// acquisition faults and cancellation.
func (p *Plan) acquireSweep(ctx context.Context, sweep Sweep) error {
	handle, err := p.deps.Metadata.Open(ctx, sweep)
	if err != nil {
		return fmt.Errorf("opening metadata for sweep %d: %w", sweep.RunNumber, err)
	}
	defer func() {
		if cerr := handle.Close(); cerr != nil {
			p.deps.Logger.Error("closing metadata failed",
				"collection_id", sweep.RecordUID, "error", cerr)
		}
	}()

	if err := p.deps.Acquirer.Acquire(ctx, sweep); err != nil {
		return fmt.Errorf("sweep %d: %w", sweep.RunNumber, err)
	}
	return nil
}

// adjustAperture matches the aperture to the chosen crystal. A nil
// bounding box (fallback outcome) leaves the aperture alone.
func (p *Plan) adjustAperture(ctx context.Context, bboxSize *[3]float64) error {
	if bboxSize == nil {
		p.deps.Logger.Debug("no crystal bounding box, aperture unchanged")
		return nil
	}

	// Classification uses the fast-axis extent only: vertical extent is
	// bounded by the beam height already.
	want := ApertureLarge
	if bboxSize[0] < p.cfg.ApertureSmallThreshold {
		want = ApertureSmall
	}

	current, err := p.deps.Aperture.Current(ctx)
	if err != nil {
		return fmt.Errorf("reading aperture: %w", err)
	}
	if current == want {
		p.deps.Logger.Debug("aperture already correct", "size", want)
		return nil
	}
	if err := p.deps.Aperture.Move(ctx, want); err != nil {
		return fmt.Errorf("moving aperture to %s: %w", want, err)
	}
	p.deps.Logger.Info("aperture changed", "from", current, "to", want)
	return nil
}

// emitStop closes the document stream exactly once.
func (p *Plan) emitStop(ctx context.Context, exitStatus, reason string) {
	p.mu.Lock()
	if p.runUID == "" || p.stopEmitted {
		p.mu.Unlock()
		return
	}
	p.stopEmitted = true
	runUID := p.runUID
	p.mu.Unlock()

	p.deps.Bus.Publish(ctx, docbus.NewStop(runUID, exitStatus, reason))
}

// safetyReturn drives the beamline back to its safe configuration
// after a mid-scan fault. Guards skip whatever is already safe. The
// original fault is what propagates; a failed return is only logged.
func (p *Plan) safetyReturn(ctx context.Context) {
	if err := p.deps.Safety.MoveToSafe(ctx); err != nil {
		p.deps.Logger.Error("safety return failed", "error", err)
	}
}

// tidy resets the trigger and disarms the detector. Runs on every exit
// path; faults are logged because tidy-up must not mask the scan's own
// result.
func (p *Plan) tidy() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.deps.Trigger.Reset(ctx); err != nil {
		p.deps.Logger.Error("resetting trigger failed", "error", err)
	}
	if err := p.deps.Detector.Disarm(ctx); err != nil {
		p.deps.Logger.Error("disarming detector failed", "error", err)
	}
}
