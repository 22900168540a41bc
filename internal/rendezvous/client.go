package rendezvous

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mxbeam/beamline-core/internal/infrastructure/mqtt"
)

// Sentinel errors for analysis round trips.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrSubmitFailed is returned when a submission cannot be published.
	ErrSubmitFailed = errors.New("rendezvous: submitting collection failed")

	// ErrResultTimeout is returned when no result arrives in time.
	ErrResultTimeout = errors.New("rendezvous: timed out waiting for analysis result")

	// ErrAnalysisFailed is returned when the service reports an error
	// for a collection.
	ErrAnalysisFailed = errors.New("rendezvous: analysis service reported failure")
)

// Result statuses the analysis service publishes.
const (
	statusSuccess       = "success"
	statusNoDiffraction = "no_diffraction"
	statusError         = "error"
)

// Bus is the MQTT surface the client needs.
// Satisfied by *mqtt.Client.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
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

// submitMessage is the payload published to start processing a
// collection.
type submitMessage struct {
	CollectionID string `json:"collection_id"`
	SubmittedAt  string `json:"submitted_at"`
}

// completeMessage tells the service the collection's images are all on
// disk.
type completeMessage struct {
	CollectionID string `json:"collection_id"`
}

// resultMessage is the payload the service publishes per collection.
type resultMessage struct {
	CollectionID string      `json:"collection_id"`
	Status       string      `json:"status"`
	Error        string      `json:"error,omitempty"`
	Candidates   []Candidate `json:"candidates"`
}

// Client speaks to the crystal centring analysis service over MQTT.
//
// Submissions and completion notices are fire-and-forget publishes;
// results arrive asynchronously on the per-collection result topic
// and are routed to whichever Await call is parked on that id.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	bus    Bus
	topics mqtt.Topics
	qos    byte
	logger Logger

	mu      sync.Mutex
	pending map[string]chan resultMessage
}

// NewClient creates an analysis service client.
//
// Returns an error if the result subscription cannot be established;
// without it no Await would ever return.
func NewClient(bus Bus, qos byte, logger Logger) (*Client, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Client{
		bus:     bus,
		qos:     qos,
		logger:  logger,
		pending: make(map[string]chan resultMessage),
	}
	if err := bus.Subscribe(c.topics.AllAnalysisResults(), qos, c.handleResult); err != nil {
		return nil, fmt.Errorf("subscribing to analysis results: %w", err)
	}
	return c, nil
}

// Submit asks the service to start processing a collection.
func (c *Client) Submit(ctx context.Context, collectionID string) error {
	payload, err := json.Marshal(submitMessage{
		CollectionID: collectionID,
		SubmittedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding submission: %w", ErrSubmitFailed, err)
	}
	if err := c.bus.Publish(c.topics.AnalysisSubmit(collectionID), payload, c.qos, false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubmitFailed, collectionID, err)
	}
	c.logger.Info("collection submitted for analysis", "collection_id", collectionID)
	return nil
}

// NotifyComplete tells the service the collection's images are all on
// disk and processing may begin.
func (c *Client) NotifyComplete(ctx context.Context, collectionID string) error {
	payload, err := json.Marshal(completeMessage{CollectionID: collectionID})
	if err != nil {
		return fmt.Errorf("%w: encoding completion: %w", ErrSubmitFailed, err)
	}
	if err := c.bus.Publish(c.topics.AnalysisComplete(collectionID), payload, c.qos, false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubmitFailed, collectionID, err)
	}
	return nil
}

// Await blocks until the service publishes a result for the
// collection, the timeout passes, or the context is cancelled.
//
// Returns:
//   - the candidate list on success; empty when the service found no
//     diffraction
//   - an error wrapping ErrResultTimeout or ErrAnalysisFailed otherwise
func (c *Client) Await(ctx context.Context, collectionID string, timeout time.Duration) ([]Candidate, error) {
	ch := make(chan resultMessage, 1)
	c.mu.Lock()
	c.pending[collectionID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, collectionID)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		switch result.Status {
		case statusSuccess:
			return result.Candidates, nil
		case statusNoDiffraction:
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: %s: %s", ErrAnalysisFailed, collectionID, result.Error)
		}
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", ErrResultTimeout, collectionID, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("awaiting result for %s: %w", collectionID, ctx.Err())
	}
}

// handleResult routes an incoming result to the Await parked on its
// collection id. Results for unknown ids are ignored (late arrivals
// after timeout).
func (c *Client) handleResult(topic string, payload []byte) error {
	var result resultMessage
	if err := json.Unmarshal(payload, &result); err != nil {
		return fmt.Errorf("parsing analysis result on %s: %w", topic, err)
	}

	c.mu.Lock()
	ch, ok := c.pending[result.CollectionID]
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("analysis result with no waiter", "collection_id", result.CollectionID)
		return nil
	}
	select {
	case ch <- result:
	default:
	}
	return nil
}
