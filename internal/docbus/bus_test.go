package docbus

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fullRecorder implements every capability and records what it saw.
type fullRecorder struct {
	mu   sync.Mutex
	seen []Document
	err  error
}

func (r *fullRecorder) record(doc Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, doc)
	return r.err
}

func (r *fullRecorder) OnStart(ctx context.Context, doc Document) error      { return r.record(doc) }
func (r *fullRecorder) OnDescriptor(ctx context.Context, doc Document) error { return r.record(doc) }
func (r *fullRecorder) OnEvent(ctx context.Context, doc Document) error      { return r.record(doc) }
func (r *fullRecorder) OnStop(ctx context.Context, doc Document) error       { return r.record(doc) }

func (r *fullRecorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.seen))
	for i, d := range r.seen {
		out[i] = d.Kind
	}
	return out
}

// eventOnlyRecorder implements just EventRecorder.
type eventOnlyRecorder struct {
	mu     sync.Mutex
	events []Document
}

func (r *eventOnlyRecorder) OnEvent(ctx context.Context, doc Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, doc)
	return nil
}

func publishRun(t *testing.T, bus *Bus) (start, descriptor Document) {
	t.Helper()
	ctx := context.Background()
	start = NewStart(map[string]any{"sample_id": 12345})
	descriptor = NewDescriptor(start.UID, "beamline-parameters")
	bus.Publish(ctx, start)
	bus.Publish(ctx, descriptor)
	bus.Publish(ctx, NewEvent(descriptor.UID, map[string]any{"undulator_gap_mm": 1.11}))
	bus.Publish(ctx, NewStop(start.UID, ExitSuccess, ""))
	return start, descriptor
}

func TestPublish_OrderPreserved(t *testing.T) {
	bus := NewBus(nil)
	rec := &fullRecorder{}
	bus.Subscribe("full", rec)

	publishRun(t, bus)

	want := []Kind{KindStart, KindDescriptor, KindEvent, KindStop}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("recorder saw %d documents, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("document %d kind = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPublish_CapabilityDispatch(t *testing.T) {
	bus := NewBus(nil)
	rec := &eventOnlyRecorder{}
	bus.Subscribe("events", rec)

	_, descriptor := publishRun(t, bus)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 {
		t.Fatalf("event-only recorder saw %d documents, want 1", len(rec.events))
	}
	if rec.events[0].DescriptorUID != descriptor.UID {
		t.Errorf("event DescriptorUID = %s, want %s", rec.events[0].DescriptorUID, descriptor.UID)
	}
}

func TestPublish_RecorderErrorDoesNotStopDispatch(t *testing.T) {
	bus := NewBus(nil)
	failing := &fullRecorder{err: errors.New("database locked")}
	healthy := &fullRecorder{}
	bus.Subscribe("failing", failing)
	bus.Subscribe("healthy", healthy)

	publishRun(t, bus)

	if got := len(healthy.kinds()); got != 4 {
		t.Errorf("healthy recorder saw %d documents, want 4", got)
	}
}

func TestPublish_MultipleSubscribersSameOrder(t *testing.T) {
	bus := NewBus(nil)
	first := &fullRecorder{}
	second := &fullRecorder{}
	bus.Subscribe("first", first)
	bus.Subscribe("second", second)

	publishRun(t, bus)

	a, b := first.kinds(), second.kinds()
	if len(a) != len(b) {
		t.Fatalf("subscribers saw different document counts: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("document %d kinds differ: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := NewBus(nil)
	// Must not panic.
	publishRun(t, bus)
}
