package topup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeFacility serves scripted machine signals. Countdown values are
// consumed in order; the last value repeats.
type fakeFacility struct {
	mu         sync.Mutex
	mode       string
	modeErr    error
	countdowns []float64
	refillErr  error
	endValue   float64
	endErr     error
}

func (f *fakeFacility) Mode(ctx context.Context) (string, error) {
	return f.mode, f.modeErr
}

func (f *fakeFacility) RefillCountdown(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refillErr != nil {
		return 0, f.refillErr
	}
	if len(f.countdowns) == 0 {
		return 0, errors.New("no scripted countdown")
	}
	v := f.countdowns[0]
	if len(f.countdowns) > 1 {
		f.countdowns = f.countdowns[1:]
	}
	return v, nil
}

func (f *fakeFacility) EndCountdown(ctx context.Context) (float64, error) {
	return f.endValue, f.endErr
}

// sleepRecorder replaces the gate's sleep and records every duration.
type sleepRecorder struct {
	mu     sync.Mutex
	slept  []time.Duration
	cancel func()
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.slept = append(r.slept, d)
	n := len(r.slept)
	r.mu.Unlock()
	// Safety valve so a broken poll loop cannot hang the test.
	if n > 50 && r.cancel != nil {
		r.cancel()
		return ctx.Err()
	}
	return nil
}

func (r *sleepRecorder) durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.slept))
	copy(out, r.slept)
	return out
}

func newTestGate(facility Facility) (*Gate, *sleepRecorder) {
	gate := NewGate(facility, Config{
		AllowedModes: []string{"User", "Special"},
		OpsOverhead:  0,
		PollInterval: 100 * time.Millisecond,
	}, nil)
	rec := &sleepRecorder{}
	gate.sleep = rec.sleep
	return gate, rec
}

func TestAwait_DecayModeNoSleep(t *testing.T) {
	facility := &fakeFacility{mode: "User", countdowns: []float64{DecayCountdown}}
	gate, rec := newTestGate(facility)

	decision, err := gate.Await(context.Background(), 10*time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if decision != DecisionDecay {
		t.Errorf("Await() decision = %s, want decay", decision)
	}
	if got := len(rec.durations()); got != 0 {
		t.Errorf("decay mode slept %d times, want 0", got)
	}
}

func TestAwait_DisallowedModeFailsOpen(t *testing.T) {
	facility := &fakeFacility{mode: "Shutdown", countdowns: []float64{2}}
	gate, rec := newTestGate(facility)

	decision, err := gate.Await(context.Background(), 10*time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if decision != DecisionPass {
		t.Errorf("Await() decision = %s, want pass", decision)
	}
	if got := len(rec.durations()); got != 0 {
		t.Errorf("disallowed mode slept %d times, want 0", got)
	}
}

func TestAwait_ExposureFitsBeforeInjection(t *testing.T) {
	facility := &fakeFacility{mode: "User", countdowns: []float64{20}}
	gate, rec := newTestGate(facility)

	decision, err := gate.Await(context.Background(), 10*time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if decision != DecisionPass {
		t.Errorf("Await() decision = %s, want pass", decision)
	}
	if got := len(rec.durations()); got != 0 {
		t.Errorf("fitting exposure slept %d times, want 0", got)
	}
}

func TestAwait_StraddlingExposureSleepsOnceThenPolls(t *testing.T) {
	// Exposure of 10s against a 5s countdown straddles the injection.
	// After the 20s end-countdown sleep the countdown still reads 0
	// twice (injection in progress) before clearing.
	facility := &fakeFacility{
		mode:       "User",
		countdowns: []float64{5, 0, 0, 598},
		endValue:   20,
	}
	gate, rec := newTestGate(facility)

	decision, err := gate.Await(context.Background(), 10*time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if decision != DecisionWaited {
		t.Errorf("Await() decision = %s, want waited", decision)
	}

	slept := rec.durations()
	if len(slept) != 3 {
		t.Fatalf("slept %d times, want 3 (one injection wait, two polls): %v", len(slept), slept)
	}
	if slept[0] != 20*time.Second {
		t.Errorf("injection wait = %v, want 20s", slept[0])
	}
	for i, d := range slept[1:] {
		if d != 100*time.Millisecond {
			t.Errorf("poll %d = %v, want 100ms", i, d)
		}
	}
}

func TestAwait_OverheadCountsAgainstWindow(t *testing.T) {
	// 5s exposure fits a 20s countdown on its own, but a 30s overhead
	// pushes the window past the injection.
	facility := &fakeFacility{
		mode:       "User",
		countdowns: []float64{20, 598},
		endValue:   25,
	}
	gate := NewGate(facility, Config{
		AllowedModes: []string{"User"},
		OpsOverhead:  30 * time.Second,
		PollInterval: 100 * time.Millisecond,
	}, nil)
	rec := &sleepRecorder{}
	gate.sleep = rec.sleep

	decision, err := gate.Await(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if decision != DecisionWaited {
		t.Errorf("Await() decision = %s, want waited", decision)
	}
	slept := rec.durations()
	if len(slept) != 1 || slept[0] != 25*time.Second {
		t.Errorf("slept = %v, want exactly [25s]", slept)
	}
}

func TestAwait_SignalFaultFailsOpen(t *testing.T) {
	facility := &fakeFacility{refillErr: errors.New("gateway timeout")}
	gate, rec := newTestGate(facility)

	decision, err := gate.Await(context.Background(), 10*time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if decision != DecisionPass {
		t.Errorf("Await() decision = %s, want pass", decision)
	}
	if got := len(rec.durations()); got != 0 {
		t.Errorf("signal fault slept %d times, want 0", got)
	}
}

func TestAwait_CancelledWhileWaiting(t *testing.T) {
	facility := &fakeFacility{
		mode:       "User",
		countdowns: []float64{5, 0}, // countdown never clears
		endValue:   20,
	}
	ctx, cancel := context.WithCancel(context.Background())
	gate, rec := newTestGate(facility)
	rec.cancel = cancel
	gate.sleep = func(sctx context.Context, d time.Duration) error {
		cancel()
		return sctx.Err()
	}

	_, err := gate.Await(ctx, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Await() error = %v, want context.Canceled", err)
	}
}
