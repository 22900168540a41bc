package rendezvous

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Service is the analysis transport the Coordinator drives.
// Satisfied by *Client.
type Service interface {
	Submit(ctx context.Context, collectionID string) error
	NotifyComplete(ctx context.Context, collectionID string) error
	Await(ctx context.Context, collectionID string, timeout time.Duration) ([]Candidate, error)
}

// CommentSink records audit text against a collection group.
// Satisfied by *deposition.Store.
type CommentSink interface {
	AppendComment(ctx context.Context, groupUID, text string) error
}

// Coordinator tracks which collections belong to which group, submits
// each collection exactly once, and resolves a group to a single
// centring outcome.
//
// Thread Safety: all methods are safe for concurrent use. Concurrent
// AwaitCentre calls for the same group collapse into one resolution.
type Coordinator struct {
	svc      Service
	comments CommentSink
	timeout  time.Duration
	logger   Logger

	mu        sync.Mutex
	submitted map[string]struct{} // collection id -> submitted
	groups    map[string][]string // group uid -> collection ids in order
	outcomes  map[string]Outcome  // group uid -> permanent outcome

	sf singleflight.Group
}

// NewCoordinator creates a Coordinator.
//
// Parameters:
//   - svc: analysis transport
//   - comments: audit comment sink (nil to skip comments)
//   - timeout: per-collection result wait
//   - logger: Logger instance (nil for no logging)
func NewCoordinator(svc Service, comments CommentSink, timeout time.Duration, logger Logger) *Coordinator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Coordinator{
		svc:       svc,
		comments:  comments,
		timeout:   timeout,
		logger:    logger,
		submitted: make(map[string]struct{}),
		groups:    make(map[string][]string),
		outcomes:  make(map[string]Outcome),
	}
}

// Submit registers a collection under its group and submits it to the
// analysis service. Resubmitting a collection id is a no-op, so retry
// loops and overlapping callers cannot double-process a collection.
func (c *Coordinator) Submit(ctx context.Context, groupUID, collectionID string) error {
	c.mu.Lock()
	if _, done := c.submitted[collectionID]; done {
		c.mu.Unlock()
		c.logger.Debug("collection already submitted", "collection_id", collectionID)
		return nil
	}
	c.submitted[collectionID] = struct{}{}
	c.groups[groupUID] = append(c.groups[groupUID], collectionID)
	c.mu.Unlock()

	return c.svc.Submit(ctx, collectionID)
}

// NotifyComplete tells the service a collection's images are all on
// disk.
func (c *Coordinator) NotifyComplete(ctx context.Context, collectionID string) error {
	return c.svc.NotifyComplete(ctx, collectionID)
}

// AwaitCentre blocks until every collection in the group has a result,
// then returns the best candidate's centre. The analysis service is
// advisory: a timeout, a service error or an empty candidate list
// yields the fallback position rather than an error.
//
// The group's outcome is cached permanently; later calls return the
// same answer without touching the service again.
func (c *Coordinator) AwaitCentre(ctx context.Context, groupUID string, fallback [3]float64) Outcome {
	c.mu.Lock()
	if out, ok := c.outcomes[groupUID]; ok {
		c.mu.Unlock()
		return out
	}
	c.mu.Unlock()

	v, _, _ := c.sf.Do(groupUID, func() (any, error) {
		// Re-check under the flight: a previous flight may have
		// resolved while this caller queued.
		c.mu.Lock()
		if out, ok := c.outcomes[groupUID]; ok {
			c.mu.Unlock()
			return out, nil
		}
		ids := make([]string, len(c.groups[groupUID]))
		copy(ids, c.groups[groupUID])
		c.mu.Unlock()

		out := c.resolve(ctx, groupUID, ids, fallback)

		c.mu.Lock()
		c.outcomes[groupUID] = out
		c.mu.Unlock()
		return out, nil
	})
	return v.(Outcome)
}

// resolve gathers every collection's result and ranks the merged
// candidates.
func (c *Coordinator) resolve(ctx context.Context, groupUID string, ids []string, fallback [3]float64) Outcome {
	if len(ids) == 0 {
		c.logger.Warn("no collections submitted for group, using fallback", "group_uid", groupUID)
		return Outcome{Centre: fallback, Fallback: true}
	}

	var candidates []Candidate
	for _, id := range ids {
		found, err := c.svc.Await(ctx, id, c.timeout)
		if err != nil {
			c.logger.Warn("analysis result unavailable, using fallback",
				"group_uid", groupUID, "collection_id", id, "error", err)
			return Outcome{Centre: fallback, Fallback: true}
		}
		candidates = append(candidates, found...)
	}

	if len(candidates) == 0 {
		c.logger.Info("analysis found no diffraction, using fallback", "group_uid", groupUID)
		c.comment(ctx, groupUID, "Analysis found no diffraction. Using fallback centre.")
		return Outcome{Centre: fallback, Fallback: true}
	}

	ranked := Rank(candidates)
	c.comment(ctx, groupUID, describeCandidates(ranked))

	best := ranked[0]
	size := best.BBoxSize()
	c.logger.Info("crystal centre resolved",
		"group_uid", groupUID, "candidates", len(ranked),
		"strength", best.Strength, "centre", best.CentreOfMass)
	return Outcome{Centre: best.CentreOfMass, BBoxSize: &size}
}

// comment appends audit text to the group. Bookkeeping faults are
// logged and swallowed; they must not cost the experiment its result.
func (c *Coordinator) comment(ctx context.Context, groupUID, text string) {
	if c.comments == nil {
		return
	}
	if err := c.comments.AppendComment(ctx, groupUID, text); err != nil {
		c.logger.Error("appending group comment failed", "group_uid", groupUID, "error", err)
	}
}

// describeCandidates renders every candidate, best first, for the
// group's audit comment.
func describeCandidates(ranked []Candidate) string {
	var b strings.Builder
	for i, cand := range ranked {
		if i > 0 {
			b.WriteString(" ")
		}
		size := cand.BBoxSize()
		fmt.Fprintf(&b, "Crystal %d: strength %.0f; centre (grid) [%.1f, %.1f, %.1f]; size (boxes) [%.0f, %.0f, %.0f].",
			i+1, cand.Strength,
			cand.CentreOfMass[0], cand.CentreOfMass[1], cand.CentreOfMass[2],
			size[0], size[1], size[2])
	}
	return b.String()
}

// Outcome returns the cached outcome for a group, if resolved.
func (c *Coordinator) Outcome(groupUID string) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.outcomes[groupUID]
	return out, ok
}
