package gridscan

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mxbeam/beamline-core/internal/deposition"
	"github.com/mxbeam/beamline-core/internal/docbus"
	"github.com/mxbeam/beamline-core/internal/rendezvous"
	"github.com/mxbeam/beamline-core/internal/topup"
)

// ─── Fakes ────────────────────────────────────────────────────────────────────

type fakeSafety struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSafety) MoveToSafe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeDetector struct {
	mu      sync.Mutex
	arms    int
	disarms int
	armErr  error
}

func (f *fakeDetector) Arm(ctx context.Context, frames int, exposureTimeS float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.arms++
	return f.armErr
}

func (f *fakeDetector) Disarm(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disarms++
	return nil
}

type fakeTrigger struct {
	mu     sync.Mutex
	arms   int
	resets int
}

func (f *fakeTrigger) Arm(ctx context.Context, frames int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.arms++
	return nil
}

func (f *fakeTrigger) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

type fakeAcquirer struct {
	mu     sync.Mutex
	sweeps []Sweep
	err    error
}

func (f *fakeAcquirer) Acquire(ctx context.Context, sweep Sweep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sweeps = append(f.sweeps, sweep)
	return nil
}

type fakeAperture struct {
	mu      sync.Mutex
	current ApertureSize
	moves   []ApertureSize
}

func (f *fakeAperture) Current(ctx context.Context) (ApertureSize, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeAperture) Move(ctx context.Context, size ApertureSize) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, size)
	f.current = size
	return nil
}

type fakeStages struct {
	mu        sync.Mutex
	omega     float64
	moved     [][3]float64
	moveErr   error
	stubCalls int
}

func (f *fakeStages) MoveTo(ctx context.Context, positionMM [3]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moved = append(f.moved, positionMM)
	return nil
}

func (f *fakeStages) SetStubOffsets(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubCalls++
	return nil
}

func (f *fakeStages) Omega(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.omega, nil
}

type fakeCentring struct {
	mu       sync.Mutex
	submits  []string
	notifies []string
	outcome  rendezvous.Outcome
	awaits   int
}

func (f *fakeCentring) Submit(ctx context.Context, groupUID, collectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, collectionID)
	return nil
}

func (f *fakeCentring) NotifyComplete(ctx context.Context, collectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifies = append(f.notifies, collectionID)
	return nil
}

func (f *fakeCentring) AwaitCentre(ctx context.Context, groupUID string, fallback [3]float64) rendezvous.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaits++
	if f.outcome.Centre == ([3]float64{}) && f.outcome.BBoxSize == nil && !f.outcome.Fallback {
		return rendezvous.Outcome{Centre: fallback, Fallback: true}
	}
	return f.outcome
}

type fakeBookkeeper struct {
	mu     sync.Mutex
	groups int
}

func (f *fakeBookkeeper) CreateGroup(ctx context.Context, params deposition.GroupParams) (*deposition.CollectionGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups++
	return &deposition.CollectionGroup{
		GroupUID:       "grp-" + uuid.NewString()[:8],
		Visit:          params.Visit,
		SampleID:       params.SampleID,
		DetectorID:     params.DetectorID,
		ExperimentType: params.ExperimentType,
	}, nil
}

func (f *fakeBookkeeper) PlanSweeps(ctx context.Context, groupUID string, base deposition.SweepParams, threeD bool) ([]deposition.CollectionRecord, error) {
	records := []deposition.CollectionRecord{{
		RecordUID:     "rec-" + uuid.NewString()[:8],
		GroupUID:      groupUID,
		RunNumber:     1,
		OmegaStart:    base.OmegaStart,
		NumImages:     base.NumImages,
		ExposureTimeS: base.ExposureTimeS,
	}}
	if threeD {
		second := records[0]
		second.RecordUID = "rec-" + uuid.NewString()[:8]
		second.RunNumber = 2
		second.OmegaStart = base.OmegaStart + 90
		records = append(records, second)
	}
	return records, nil
}

type fakeReadings struct{}

func (fakeReadings) BeamlineParameters(ctx context.Context) (map[string]any, error) {
	return map[string]any{
		deposition.KeyUndulatorGapMM:  1.11,
		deposition.KeySynchrotronMode: "User",
		deposition.KeySlitGapHMM:      0.1,
		deposition.KeySlitGapVMM:      0.1,
	}, nil
}

func (fakeReadings) TransmissionFlux(ctx context.Context) (map[string]any, error) {
	return map[string]any{
		deposition.KeyTransmissionFraction: 0.5,
		deposition.KeyFluxPhotons:          9.5e11,
	}, nil
}

// fakeMetadata hands out handles and counts opens against closes.
type fakeMetadata struct {
	mu       sync.Mutex
	opens    int
	closes   int
	openErr  error
	closeErr error
}

func (f *fakeMetadata) Open(ctx context.Context, sweep Sweep) (io.Closer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	return &fakeMetadataHandle{parent: f}, nil
}

func (f *fakeMetadata) balanced() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens == f.closes
}

type fakeMetadataHandle struct {
	parent *fakeMetadata
}

func (h *fakeMetadataHandle) Close() error {
	h.parent.mu.Lock()
	defer h.parent.mu.Unlock()
	h.parent.closes++
	return h.parent.closeErr
}

// stopCatcher records stop documents off the bus.
type stopCatcher struct {
	mu    sync.Mutex
	stops []docbus.Document
}

func (s *stopCatcher) OnStop(ctx context.Context, doc docbus.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops = append(s.stops, doc)
	return nil
}

// rig bundles a full set of fakes wired into plan Deps.
type rig struct {
	safety     *fakeSafety
	detector   *fakeDetector
	trigger    *fakeTrigger
	acquirer   *fakeAcquirer
	aperture   *fakeAperture
	stages     *fakeStages
	centring   *fakeCentring
	bookkeeper *fakeBookkeeper
	metadata   *fakeMetadata
	stops      *stopCatcher
	deps       Deps
}

type immediateGate struct{}

func (immediateGate) Await(ctx context.Context, exposure time.Duration) (topup.Decision, error) {
	return topup.DecisionPass, nil
}

func newRig() *rig {
	r := &rig{
		safety:     &fakeSafety{},
		detector:   &fakeDetector{},
		trigger:    &fakeTrigger{},
		acquirer:   &fakeAcquirer{},
		aperture:   &fakeAperture{current: ApertureLarge},
		stages:     &fakeStages{},
		centring:   &fakeCentring{},
		bookkeeper: &fakeBookkeeper{},
		metadata:   &fakeMetadata{},
		stops:      &stopCatcher{},
	}
	bus := docbus.NewBus(nil)
	bus.Subscribe("stops", r.stops)
	r.deps = Deps{
		Safety:     r.safety,
		Detector:   r.detector,
		Trigger:    r.trigger,
		Acquirer:   r.acquirer,
		Aperture:   r.aperture,
		Stages:     r.stages,
		Gate:       immediateGate{},
		Metadata:   r.metadata,
		Centring:   r.centring,
		Bookkeeper: r.bookkeeper,
		Readings:   fakeReadings{},
		Bus:        bus,
	}
	return r
}

func testConfig() Config {
	return Config{
		OmegaToleranceDeg:      0.1,
		ApertureSmallThreshold: 2,
		DetectorID:             78,
	}
}

func testParams() Params {
	return Params{
		Visit:          "cm12345-1",
		SampleID:       12345,
		ExperimentType: "mesh",
		Grid:           testGrid(),
		ExposureTimeS:  0.004,
	}
}
