package beamline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mxbeam/beamline-core/internal/infrastructure/mqtt"
)

// Default timeouts for gateway round trips. Moves can be slow (full
// stage travel takes tens of seconds); reads are near-instant.
const (
	defaultMoveTimeout = 120 * time.Second
	defaultReadTimeout = 5 * time.Second
)

// Bus is the MQTT surface the controller needs.
// Satisfied by *mqtt.Client.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// commandMessage is the payload published to the gateway for a move.
type commandMessage struct {
	ID       string  `json:"id"`
	Axis     string  `json:"axis"`
	Position float64 `json:"position"`
}

// ackMessage is the payload the gateway publishes when a command finishes.
type ackMessage struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "complete" or "failed"
	Error  string `json:"error,omitempty"`
}

// requestMessage is the payload published to the gateway for a read.
type requestMessage struct {
	ID   string `json:"id"`
	Axis string `json:"axis"`
}

// responseMessage is the payload the gateway publishes for a read.
type responseMessage struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
	Error string  `json:"error,omitempty"`
}

// BusController implements Controller over the MQTT hardware gateway.
//
// Moves follow the command/ack pattern: the command carries a unique id,
// and the gateway publishes an ack on the matching topic when the axis
// has settled. Reads follow the request/response pattern keyed by
// request id.
//
// Thread Safety: all methods are safe for concurrent use.
type BusController struct {
	bus    Bus
	topics mqtt.Topics
	class  string
	qos    byte
	logger Logger

	moveTimeout time.Duration

	// pendingAcks maps command id to the channel its Completion waits on.
	pendingAcks map[string]chan error
	// pendingReads maps request id to the channel its Read waits on.
	pendingReads map[string]chan responseMessage
	mu           sync.Mutex
}

// NewBusController creates a Controller speaking to the hardware gateway.
//
// Parameters:
//   - bus: MQTT client (or fake) for publish/subscribe
//   - class: gateway device class, e.g. "motion"
//   - qos: QoS level for commands and subscriptions
//   - logger: Logger instance (nil for no logging)
//
// Returns an error if the ack/response subscriptions cannot be
// established; without them no command would ever complete.
func NewBusController(bus Bus, class string, qos byte, logger Logger) (*BusController, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	c := &BusController{
		bus:          bus,
		class:        class,
		qos:          qos,
		logger:       logger,
		moveTimeout:  defaultMoveTimeout,
		pendingAcks:  make(map[string]chan error),
		pendingReads: make(map[string]chan responseMessage),
	}

	if err := bus.Subscribe(c.topics.AllHardwareAcks(), qos, c.handleAck); err != nil {
		return nil, fmt.Errorf("subscribing to hardware acks: %w", err)
	}
	if err := bus.Subscribe(c.topics.AllHardwareResponses(), qos, c.handleResponse); err != nil {
		return nil, fmt.Errorf("subscribing to hardware responses: %w", err)
	}

	return c, nil
}

// Read returns the current value of an axis via a request/response round
// trip with the gateway.
func (c *BusController) Read(ctx context.Context, axis Axis) (float64, error) {
	reqID := uuid.NewString()

	ch := make(chan responseMessage, 1)
	c.mu.Lock()
	c.pendingReads[reqID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pendingReads, reqID)
		c.mu.Unlock()
	}()

	payload, err := json.Marshal(requestMessage{ID: reqID, Axis: string(axis)})
	if err != nil {
		return 0, fmt.Errorf("%w: encoding request: %w", ErrReadFailed, err)
	}

	topic := c.topics.HardwareRequest(c.class, reqID)
	if err := c.bus.Publish(topic, payload, c.qos, false); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}

	timer := time.NewTimer(defaultReadTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return 0, fmt.Errorf("%w: axis %s: %s", ErrReadFailed, axis, resp.Error)
		}
		return resp.Value, nil
	case <-timer.C:
		return 0, fmt.Errorf("%w: axis %s", ErrReadTimeout, axis)
	case <-ctx.Done():
		return 0, fmt.Errorf("reading axis %s: %w", axis, ctx.Err())
	}
}

// Set commands a move and returns a Completion handle immediately.
// The gateway acks on the matching topic when the axis has settled.
func (c *BusController) Set(ctx context.Context, axis Axis, position float64) (Completion, error) {
	cmdID := uuid.NewString()

	ch := make(chan error, 1)
	c.mu.Lock()
	c.pendingAcks[cmdID] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(commandMessage{ID: cmdID, Axis: string(axis), Position: position})
	if err != nil {
		c.dropAck(cmdID)
		return nil, fmt.Errorf("%w: encoding command: %w", ErrCommandFailed, err)
	}

	topic := c.topics.HardwareCommand(c.class, string(axis))
	if err := c.bus.Publish(topic, payload, c.qos, false); err != nil {
		c.dropAck(cmdID)
		return nil, fmt.Errorf("%w: axis %s: %w", ErrCommandFailed, axis, err)
	}

	c.logger.Debug("move commanded", "axis", axis, "position", position, "command_id", cmdID)

	return &busCompletion{
		controller: c,
		cmdID:      cmdID,
		axis:       axis,
		ch:         ch,
		timeout:    c.moveTimeout,
	}, nil
}

// dropAck removes a pending ack registration.
func (c *BusController) dropAck(cmdID string) {
	c.mu.Lock()
	delete(c.pendingAcks, cmdID)
	c.mu.Unlock()
}

// handleAck routes an incoming ack to the Completion waiting on it.
// Acks for unknown command ids are ignored (late arrivals after timeout).
func (c *BusController) handleAck(topic string, payload []byte) error {
	var ack ackMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("parsing ack on %s: %w", topic, err)
	}

	c.mu.Lock()
	ch, ok := c.pendingAcks[ack.ID]
	if ok {
		delete(c.pendingAcks, ack.ID)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}

	if ack.Status == "complete" {
		ch <- nil
	} else {
		ch <- fmt.Errorf("%w: %s", ErrCommandFailed, ack.Error)
	}
	return nil
}

// handleResponse routes an incoming read response to the Read waiting on it.
func (c *BusController) handleResponse(topic string, payload []byte) error {
	var resp responseMessage
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("parsing response on %s: %w", topic, err)
	}

	c.mu.Lock()
	ch, ok := c.pendingReads[resp.ID]
	c.mu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
	return nil
}

// busCompletion waits for the gateway ack matching one command.
type busCompletion struct {
	controller *BusController
	cmdID      string
	axis       Axis
	ch         chan error
	timeout    time.Duration
}

// Wait blocks until the move completes, fails, or times out.
func (w *busCompletion) Wait(ctx context.Context) error {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case err := <-w.ch:
		if err != nil {
			return fmt.Errorf("axis %s: %w", w.axis, err)
		}
		return nil
	case <-timer.C:
		w.controller.dropAck(w.cmdID)
		return fmt.Errorf("%w: axis %s", ErrCommandTimeout, w.axis)
	case <-ctx.Done():
		w.controller.dropAck(w.cmdID)
		return fmt.Errorf("waiting for axis %s: %w", w.axis, ctx.Err())
	}
}
