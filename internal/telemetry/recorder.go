// Package telemetry mirrors the collection document stream into the
// time-series store.
//
// The recorder is strictly best-effort: writes are batched and
// asynchronous, and nothing here can fail a collection. If the store is
// down the points are dropped, not the scan.
package telemetry

import (
	"context"
	"time"

	"github.com/mxbeam/beamline-core/internal/deposition"
	"github.com/mxbeam/beamline-core/internal/docbus"
)

// Sink receives telemetry points. Satisfied by *influxdb.Client.
type Sink interface {
	WriteBeamlineReading(groupID string, signal string, value float64)
	WriteScanEvent(groupID string, phase string, durationSeconds float64)
}

// Recorder subscribes to the document bus and forwards numeric readings
// and run lifecycle markers to the sink.
//
// Thread Safety: the document bus dispatches synchronously from one
// goroutine, so no locking is needed.
type Recorder struct {
	sink Sink

	runs        map[string]*runState // run uid -> state
	descriptors map[string]*runState // descriptor uid -> owning run
}

type runState struct {
	groupUID string
	started  time.Time
}

// NewRecorder creates a telemetry recorder over the given sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{
		sink:        sink,
		runs:        make(map[string]*runState),
		descriptors: make(map[string]*runState),
	}
}

// OnStart notes the run's collection group and start time. A start
// document is its own run: descriptors and the stop document reference
// it by its UID.
func (r *Recorder) OnStart(ctx context.Context, doc docbus.Document) error {
	groupUID, _ := doc.Data[deposition.KeyGroupUID].(string)
	r.runs[doc.UID] = &runState{groupUID: groupUID, started: doc.Time}
	r.sink.WriteScanEvent(groupUID, "collection_start", 0)
	return nil
}

// OnDescriptor joins the descriptor to its run so later events can be
// attributed.
func (r *Recorder) OnDescriptor(ctx context.Context, doc docbus.Document) error {
	if run, ok := r.runs[doc.RunUID]; ok {
		r.descriptors[doc.UID] = run
	}
	return nil
}

// OnEvent forwards every numeric reading in the event to the sink.
// Non-numeric values (the machine mode string) have no time-series
// representation and are skipped.
func (r *Recorder) OnEvent(ctx context.Context, doc docbus.Document) error {
	run, ok := r.descriptors[doc.DescriptorUID]
	if !ok {
		return nil
	}
	for signal, raw := range doc.Data {
		switch v := raw.(type) {
		case float64:
			r.sink.WriteBeamlineReading(run.groupUID, signal, v)
		case int:
			r.sink.WriteBeamlineReading(run.groupUID, signal, float64(v))
		}
	}
	return nil
}

// OnStop emits a duration marker tagged with the run's exit status and
// drops the run's state.
func (r *Recorder) OnStop(ctx context.Context, doc docbus.Document) error {
	run, ok := r.runs[doc.RunUID]
	if !ok {
		return nil
	}
	duration := doc.Time.Sub(run.started).Seconds()
	if duration < 0 {
		duration = 0
	}
	r.sink.WriteScanEvent(run.groupUID, "collection_"+doc.ExitStatus, duration)

	delete(r.runs, doc.RunUID)
	for uid, owner := range r.descriptors {
		if owner == run {
			delete(r.descriptors, uid)
		}
	}
	return nil
}
