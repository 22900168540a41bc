package gridscan

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned when a plan is already in flight.
var ErrBusy = errors.New("gridscan: a scan is already running")

// RunnerStatus is a snapshot of the runner for the REST surface.
type RunnerStatus struct {
	Running  bool   `json:"running"`
	Phase    Phase  `json:"phase"`
	GroupUID string `json:"group_uid,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Runner owns plan lifecycle: one plan in flight at a time,
// cancellation, and status for whoever asks.
//
// Thread Safety: all methods are safe for concurrent use.
type Runner struct {
	cfg    Config
	deps   Deps
	logger Logger

	mu      sync.Mutex
	current *Plan
	cancel  context.CancelFunc
	lastErr error
	done    chan struct{}
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, deps Deps, logger Logger) *Runner {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}
}

// Start launches a plan for the request. Returns ErrBusy while a
// previous plan is still in flight.
func (r *Runner) Start(params Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return ErrBusy
	}

	plan := NewPlan(params, r.cfg, r.deps)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r.current = plan
	r.cancel = cancel
	r.lastErr = nil
	r.done = done

	go func() {
		defer close(done)
		err := plan.Run(ctx)
		cancel()

		r.mu.Lock()
		r.current = nil
		r.cancel = nil
		r.lastErr = err
		r.mu.Unlock()

		switch {
		case err == nil:
			r.logger.Info("scan finished", "group_uid", plan.GroupUID())
		case errors.Is(err, ErrInvalidParameters):
			r.logger.Warn("scan rejected", "error", err)
		default:
			r.logger.Error("scan failed", "group_uid", plan.GroupUID(), "error", err)
		}
	}()

	return nil
}

// Stop cancels the in-flight plan, if any. The plan still walks its
// tidy-up before the runner goes idle.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the in-flight plan finishes. Returns immediately
// when the runner is idle.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status returns a snapshot of the runner.
func (r *Runner) Status() RunnerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return RunnerStatus{
			Running:  true,
			Phase:    r.current.Phase(),
			GroupUID: r.current.GroupUID(),
		}
	}

	status := RunnerStatus{Phase: PhaseIdle}
	if r.lastErr != nil {
		status.Error = r.lastErr.Error()
	}
	return status
}
