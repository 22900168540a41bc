package deposition

import (
	"context"
	"sync"

	"github.com/mxbeam/beamline-core/internal/docbus"
)

// Stream names the scan emits descriptors under.
const (
	StreamBeamlineParameters = "beamline-parameters"
	StreamTransmissionFlux   = "transmission-flux"
)

// Start metadata and event data keys the recorder interprets.
const (
	KeyGroupUID             = "group_uid"
	KeyUndulatorGapMM       = "undulator_gap_mm"
	KeySynchrotronMode      = "synchrotron_mode"
	KeySlitGapHMM           = "slit_gap_h_mm"
	KeySlitGapVMM           = "slit_gap_v_mm"
	KeyTransmissionFraction = "transmission_fraction"
	KeyFluxPhotons          = "flux_photons"
)

type runState struct {
	groupUID     string
	beamlineSeen bool
	fluxSeen     bool
	running      bool
	// descriptor uids owned by this run, for cleanup at stop
	descriptors []string
}

// Recorder drives collection bookkeeping from the document stream.
//
// Records move to running only after both pre-collection reading
// streams have been seen, so an analysis job can never reference a
// record whose hardware context is still blank.
type Recorder struct {
	store  *Store
	logger Logger

	mu          sync.Mutex
	runs        map[string]*runState // run uid -> state
	descriptors map[string]*descriptorState
}

type descriptorState struct {
	name string
	run  *runState
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(store *Store, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		store:       store,
		logger:      logger,
		runs:        make(map[string]*runState),
		descriptors: make(map[string]*descriptorState),
	}
}

// OnStart opens bookkeeping for the run named in the start metadata.
// A start document without a group uid is not ours to record.
func (r *Recorder) OnStart(ctx context.Context, doc docbus.Document) error {
	groupUID, ok := doc.Data[KeyGroupUID].(string)
	if !ok || groupUID == "" {
		r.logger.Debug("start document without group uid ignored", "uid", doc.UID)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[doc.UID] = &runState{groupUID: groupUID}
	return nil
}

// OnDescriptor joins a stream name to its descriptor uid for later
// event interpretation.
func (r *Recorder) OnDescriptor(ctx context.Context, doc docbus.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[doc.RunUID]
	if !ok {
		r.logger.Debug("descriptor for unknown run ignored", "run_uid", doc.RunUID, "name", doc.Name)
		return nil
	}
	r.descriptors[doc.UID] = &descriptorState{name: doc.Name, run: run}
	run.descriptors = append(run.descriptors, doc.UID)
	return nil
}

// OnEvent folds pre-collection readings into the run's records and,
// once both streams have arrived, marks the records running.
func (r *Recorder) OnEvent(ctx context.Context, doc docbus.Document) error {
	r.mu.Lock()
	desc, ok := r.descriptors[doc.DescriptorUID]
	r.mu.Unlock()
	if !ok {
		r.logger.Debug("event with unknown descriptor ignored", "descriptor_uid", doc.DescriptorUID)
		return nil
	}

	switch desc.name {
	case StreamBeamlineParameters:
		err := r.store.RecordBeamlineParameters(ctx, desc.run.groupUID,
			floatValue(doc.Data, KeyUndulatorGapMM),
			stringValue(doc.Data, KeySynchrotronMode),
			floatValue(doc.Data, KeySlitGapHMM),
			floatValue(doc.Data, KeySlitGapVMM))
		if err != nil {
			return err
		}
		r.mu.Lock()
		desc.run.beamlineSeen = true
		r.mu.Unlock()

	case StreamTransmissionFlux:
		err := r.store.RecordFlux(ctx, desc.run.groupUID,
			floatValue(doc.Data, KeyTransmissionFraction),
			floatValue(doc.Data, KeyFluxPhotons))
		if err != nil {
			return err
		}
		r.mu.Lock()
		desc.run.fluxSeen = true
		r.mu.Unlock()

	default:
		r.logger.Debug("event stream not recorded", "name", desc.name)
		return nil
	}

	return r.maybeBegin(ctx, desc.run)
}

// maybeBegin marks the run's records running once both reading
// streams have been seen.
func (r *Recorder) maybeBegin(ctx context.Context, run *runState) error {
	r.mu.Lock()
	ready := run.beamlineSeen && run.fluxSeen && !run.running
	if ready {
		run.running = true
	}
	r.mu.Unlock()
	if !ready {
		return nil
	}

	if err := r.store.MarkRunning(ctx, run.groupUID); err != nil {
		r.mu.Lock()
		run.running = false
		r.mu.Unlock()
		return err
	}
	r.logger.Info("deposition running", "group_uid", run.groupUID)
	return nil
}

// OnStop closes the run's records. A stop for a run this recorder
// never saw start is a no-op.
func (r *Recorder) OnStop(ctx context.Context, doc docbus.Document) error {
	r.mu.Lock()
	run, ok := r.runs[doc.RunUID]
	if ok {
		delete(r.runs, doc.RunUID)
		for _, uid := range run.descriptors {
			delete(r.descriptors, uid)
		}
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	status := StatusFailed
	if doc.ExitStatus == docbus.ExitSuccess {
		status = StatusSucceeded
	}
	return r.store.End(ctx, run.groupUID, status, doc.Reason)
}

func floatValue(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func stringValue(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
