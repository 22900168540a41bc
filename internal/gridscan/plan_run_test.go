package gridscan

import (
	"context"
	"errors"
	"testing"

	"github.com/mxbeam/beamline-core/internal/docbus"
	"github.com/mxbeam/beamline-core/internal/rendezvous"
)

// ─── Happy Path ───────────────────────────────────────────────────────────────

func TestRun_TwoDimensionalSuccess(t *testing.T) {
	r := newRig()
	size := [3]float64{3, 1, 1}
	r.centring.outcome = rendezvous.Outcome{Centre: [3]float64{4, 2, 0}, BBoxSize: &size}

	plan := NewPlan(testParams(), testConfig(), r.deps)
	if err := plan.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if plan.Phase() != PhaseDone {
		t.Errorf("Phase() = %s, want done", plan.Phase())
	}

	if len(r.acquirer.sweeps) != 1 {
		t.Fatalf("acquired %d sweeps, want 1", len(r.acquirer.sweeps))
	}
	if got := len(r.centring.submits); got != 1 {
		t.Errorf("submitted %d collections, want 1", got)
	}
	if got := len(r.centring.notifies); got != 1 {
		t.Errorf("notified %d completions, want 1", got)
	}

	// Final move lands on the chosen centre converted to motor units.
	want := testParams().Grid.MotorPosition([3]float64{4, 2, 0})
	if len(r.stages.moved) != 1 || r.stages.moved[0] != want {
		t.Errorf("moved to %v, want [%v]", r.stages.moved, want)
	}

	// Exactly one tidy pass.
	if r.trigger.resets != 1 || r.detector.disarms != 1 {
		t.Errorf("tidy ran resets=%d disarms=%d, want 1 and 1", r.trigger.resets, r.detector.disarms)
	}

	// The document stream closed successfully.
	if len(r.stops.stops) != 1 || r.stops.stops[0].ExitStatus != docbus.ExitSuccess {
		t.Errorf("stop documents = %+v, want one success", r.stops.stops)
	}
}

func TestRun_ThreeDimensionalTwoSweeps(t *testing.T) {
	r := newRig()
	params := testParams()
	params.ExperimentType = "mesh3d"
	params.Grid.ZSteps = 8
	params.Grid.ZStepMM = 0.02

	plan := NewPlan(params, testConfig(), r.deps)
	if err := plan.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(r.acquirer.sweeps) != 2 {
		t.Fatalf("acquired %d sweeps, want 2", len(r.acquirer.sweeps))
	}
	first, second := r.acquirer.sweeps[0], r.acquirer.sweeps[1]
	if first.RunNumber != 1 || second.RunNumber != 2 {
		t.Errorf("run numbers = %d, %d, want 1, 2", first.RunNumber, second.RunNumber)
	}
	if second.OmegaStartDeg != first.OmegaStartDeg+90 {
		t.Errorf("second sweep omega = %v, want first+90", second.OmegaStartDeg)
	}
	if got := len(r.centring.submits); got != 2 {
		t.Errorf("submitted %d collections, want 2", got)
	}
}

// ─── Parameter Validation ─────────────────────────────────────────────────────

func TestRun_InvalidParametersNeverSubmits(t *testing.T) {
	r := newRig()
	params := testParams()
	params.ExposureTimeS = 0

	plan := NewPlan(params, testConfig(), r.deps)
	err := plan.Run(context.Background())
	if !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("Run() error = %v, want ErrInvalidParameters", err)
	}
	if plan.Phase() != PhaseFailed {
		t.Errorf("Phase() = %s, want failed", plan.Phase())
	}

	if got := len(r.centring.submits); got != 0 {
		t.Errorf("invalid params submitted %d collections, want 0", got)
	}
	if r.bookkeeper.groups != 0 {
		t.Errorf("invalid params opened %d groups, want 0", r.bookkeeper.groups)
	}
	// Tidy still runs, exactly once.
	if r.trigger.resets != 1 || r.detector.disarms != 1 {
		t.Errorf("tidy ran resets=%d disarms=%d, want 1 and 1", r.trigger.resets, r.detector.disarms)
	}
}

func TestRun_OmegaMismatchRefusesToArm(t *testing.T) {
	r := newRig()
	r.stages.omega = 5.0 // params expect 0, tolerance 0.1

	plan := NewPlan(testParams(), testConfig(), r.deps)
	err := plan.Run(context.Background())
	if !errors.Is(err, ErrOmegaMismatch) {
		t.Fatalf("Run() error = %v, want ErrOmegaMismatch", err)
	}
	if r.detector.arms != 0 {
		t.Errorf("detector armed %d times after omega mismatch, want 0", r.detector.arms)
	}
	if got := len(r.centring.submits); got != 0 {
		t.Errorf("submitted %d collections, want 0", got)
	}
}

// ─── Fault Paths ──────────────────────────────────────────────────────────────

func TestRun_PreflightAbortBeforeArming(t *testing.T) {
	r := newRig()
	r.safety.err = errors.New("cryostream interlock tripped")

	plan := NewPlan(testParams(), testConfig(), r.deps)
	if err := plan.Run(context.Background()); err == nil {
		t.Fatal("Run() succeeded past a failed safety move")
	}
	if r.detector.arms != 0 {
		t.Errorf("detector armed %d times, want 0", r.detector.arms)
	}
	if r.trigger.resets != 1 || r.detector.disarms != 1 {
		t.Errorf("tidy ran resets=%d disarms=%d, want 1 and 1", r.trigger.resets, r.detector.disarms)
	}
}

func TestRun_AcquireFaultReturnsToSafe(t *testing.T) {
	r := newRig()
	r.acquirer.err = errors.New("stage following error")

	plan := NewPlan(testParams(), testConfig(), r.deps)
	if err := plan.Run(context.Background()); err == nil {
		t.Fatal("Run() succeeded past an acquisition fault")
	}

	// Initial safety move plus the post-fault return.
	if r.safety.calls != 2 {
		t.Errorf("safety moves = %d, want 2", r.safety.calls)
	}
	if r.centring.awaits != 0 {
		t.Errorf("correlation ran %d times after fault, want 0", r.centring.awaits)
	}
	if len(r.stops.stops) != 1 || r.stops.stops[0].ExitStatus != docbus.ExitFailed {
		t.Errorf("stop documents = %+v, want one failure", r.stops.stops)
	}
	if r.trigger.resets != 1 || r.detector.disarms != 1 {
		t.Errorf("tidy ran resets=%d disarms=%d, want 1 and 1", r.trigger.resets, r.detector.disarms)
	}
}

func TestRun_FinalMoveFaultPropagatesAfterTidy(t *testing.T) {
	r := newRig()
	r.stages.moveErr = errors.New("sample-x stalled")

	plan := NewPlan(testParams(), testConfig(), r.deps)
	if err := plan.Run(context.Background()); err == nil {
		t.Fatal("Run() swallowed the final move fault")
	}
	if r.trigger.resets != 1 || r.detector.disarms != 1 {
		t.Errorf("tidy ran resets=%d disarms=%d, want 1 and 1", r.trigger.resets, r.detector.disarms)
	}
}

// ─── Metadata Handle Scope ────────────────────────────────────────────────────

func TestRun_MetadataClosedPerSweep(t *testing.T) {
	r := newRig()
	params := testParams()
	params.ExperimentType = "mesh3d"
	params.Grid.ZSteps = 8
	params.Grid.ZStepMM = 0.02

	plan := NewPlan(params, testConfig(), r.deps)
	if err := plan.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if r.metadata.opens != 2 {
		t.Errorf("metadata opened %d times, want one per sweep", r.metadata.opens)
	}
	if !r.metadata.balanced() {
		t.Errorf("opens=%d closes=%d, want every handle released",
			r.metadata.opens, r.metadata.closes)
	}
}

func TestRun_MetadataClosedOnAcquireFault(t *testing.T) {
	r := newRig()
	r.acquirer.err = errors.New("stage following error")

	plan := NewPlan(testParams(), testConfig(), r.deps)
	if err := plan.Run(context.Background()); err == nil {
		t.Fatal("Run() succeeded past an acquisition fault")
	}
	if r.metadata.opens != 1 || !r.metadata.balanced() {
		t.Errorf("opens=%d closes=%d, want the handle released despite the fault",
			r.metadata.opens, r.metadata.closes)
	}
}

func TestRun_MetadataOpenFaultAbortsSweep(t *testing.T) {
	r := newRig()
	r.metadata.openErr = errors.New("nexus file locked")

	plan := NewPlan(testParams(), testConfig(), r.deps)
	if err := plan.Run(context.Background()); err == nil {
		t.Fatal("Run() succeeded without a metadata container")
	}

	if len(r.acquirer.sweeps) != 0 {
		t.Errorf("acquired %d sweeps without metadata, want 0", len(r.acquirer.sweeps))
	}
	// Initial safety move plus the post-fault return.
	if r.safety.calls != 2 {
		t.Errorf("safety moves = %d, want 2", r.safety.calls)
	}
	if len(r.stops.stops) != 1 || r.stops.stops[0].ExitStatus != docbus.ExitFailed {
		t.Errorf("stop documents = %+v, want one failure", r.stops.stops)
	}
}

// ─── Aperture Selection ───────────────────────────────────────────────────────

func TestRun_SmallCrystalSelectsSmallAperture(t *testing.T) {
	r := newRig()
	size := [3]float64{1, 1, 1}
	r.centring.outcome = rendezvous.Outcome{Centre: [3]float64{1, 1, 0}, BBoxSize: &size}

	plan := NewPlan(testParams(), testConfig(), r.deps)
	if err := plan.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(r.aperture.moves) != 1 || r.aperture.moves[0] != ApertureSmall {
		t.Errorf("aperture moves = %v, want [small]", r.aperture.moves)
	}
}

func TestRun_WideCrystalNoApertureMove(t *testing.T) {
	r := newRig()
	size := [3]float64{3, 1, 1}
	r.centring.outcome = rendezvous.Outcome{Centre: [3]float64{1, 1, 0}, BBoxSize: &size}

	plan := NewPlan(testParams(), testConfig(), r.deps)
	if err := plan.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Fast-axis extent 3 is at or above the threshold of 2: wants the
	// large aperture, which is already in place, so no move.
	if len(r.aperture.moves) != 0 {
		t.Errorf("aperture moves = %v, want none", r.aperture.moves)
	}
}

func TestRun_WideCrystalMovesToLarge(t *testing.T) {
	r := newRig()
	r.aperture.current = ApertureSmall
	size := [3]float64{3, 1, 1}
	r.centring.outcome = rendezvous.Outcome{Centre: [3]float64{1, 1, 0}, BBoxSize: &size}

	plan := NewPlan(testParams(), testConfig(), r.deps)
	if err := plan.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(r.aperture.moves) != 1 || r.aperture.moves[0] != ApertureLarge {
		t.Errorf("aperture moves = %v, want [large]", r.aperture.moves)
	}
}

// ─── Fallback Behaviour ───────────────────────────────────────────────────────

func TestRun_FallbackMovesToGridCentre(t *testing.T) {
	r := newRig()
	// Default fake outcome echoes the fallback with Fallback set.
	cfg := testConfig()
	cfg.SetStubOffsets = true

	plan := NewPlan(testParams(), cfg, r.deps)
	if err := plan.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := testParams().Grid.MotorPosition(testParams().Grid.Centre())
	if len(r.stages.moved) != 1 || r.stages.moved[0] != want {
		t.Errorf("moved to %v, want grid centre %v", r.stages.moved, want)
	}
	// No bounding box: aperture untouched, stub offsets skipped.
	if len(r.aperture.moves) != 0 {
		t.Errorf("aperture moves = %v, want none on fallback", r.aperture.moves)
	}
	if r.stages.stubCalls != 0 {
		t.Errorf("stub offsets set %d times on fallback, want 0", r.stages.stubCalls)
	}
}

func TestRun_StubOffsetsOnSuccessfulCentring(t *testing.T) {
	r := newRig()
	size := [3]float64{2, 2, 2}
	r.centring.outcome = rendezvous.Outcome{Centre: [3]float64{1, 1, 0}, BBoxSize: &size}
	cfg := testConfig()
	cfg.SetStubOffsets = true

	plan := NewPlan(testParams(), cfg, r.deps)
	if err := plan.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if r.stages.stubCalls != 1 {
		t.Errorf("stub offsets set %d times, want 1", r.stages.stubCalls)
	}
}
