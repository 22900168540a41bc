package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mxbeam/beamline-core/internal/infrastructure/mqtt"
)

// Sentinel errors for gateway round trips.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrCommandFailed is returned when the gateway rejects or fails a
	// command.
	ErrCommandFailed = errors.New("devices: command failed")

	// ErrCommandTimeout is returned when no ack arrives in time.
	ErrCommandTimeout = errors.New("devices: command timed out")

	// ErrRequestFailed is returned when a read request fails.
	ErrRequestFailed = errors.New("devices: request failed")

	// ErrRequestTimeout is returned when no response arrives in time.
	ErrRequestTimeout = errors.New("devices: request timed out")
)

// Default round-trip budgets. Individual commands may override the
// command timeout (a raster sweep takes as long as its exposures).
const (
	defaultCommandTimeout = 30 * time.Second
	defaultRequestTimeout = 5 * time.Second
)

// Bus is the MQTT surface the gateway clients need.
// Satisfied by *mqtt.Client.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// commandMessage is the payload published for a device action.
type commandMessage struct {
	ID     string         `json:"id"`
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// ackMessage is the payload the gateway publishes when an action
// finishes.
type ackMessage struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "complete" or "failed"
	Error  string `json:"error,omitempty"`
}

// requestMessage is the payload published for a signal read.
type requestMessage struct {
	ID     string `json:"id"`
	Signal string `json:"signal"`
}

// responseMessage is the payload the gateway publishes for a read.
// Value is json-typed: numbers for motor and beam signals, a string
// for the machine mode.
type responseMessage struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
	Error string          `json:"error,omitempty"`
}

// gatewayClient handles command/ack and request/response round trips
// for one device class.
//
// Thread Safety: all methods are safe for concurrent use.
type gatewayClient struct {
	bus    Bus
	topics mqtt.Topics
	class  string
	qos    byte
	logger Logger

	mu           sync.Mutex
	pendingAcks  map[string]chan error
	pendingReads map[string]chan responseMessage
}

// newGatewayClient subscribes to the class's ack and response topics.
func newGatewayClient(bus Bus, class string, qos byte, logger Logger) (*gatewayClient, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &gatewayClient{
		bus:          bus,
		class:        class,
		qos:          qos,
		logger:       logger,
		pendingAcks:  make(map[string]chan error),
		pendingReads: make(map[string]chan responseMessage),
	}
	if err := bus.Subscribe(c.topics.ClassAcks(class), qos, c.handleAck); err != nil {
		return nil, fmt.Errorf("subscribing to %s acks: %w", class, err)
	}
	if err := bus.Subscribe(c.topics.ClassResponses(class), qos, c.handleResponse); err != nil {
		return nil, fmt.Errorf("subscribing to %s responses: %w", class, err)
	}
	return c, nil
}

// command publishes an action and blocks until the gateway acks it.
func (c *gatewayClient) command(ctx context.Context, action string, params map[string]any, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	cmdID := uuid.NewString()

	ch := make(chan error, 1)
	c.mu.Lock()
	c.pendingAcks[cmdID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pendingAcks, cmdID)
		c.mu.Unlock()
	}()

	payload, err := json.Marshal(commandMessage{ID: cmdID, Action: action, Params: params})
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrCommandFailed, action, err)
	}
	if err := c.bus.Publish(c.topics.HardwareCommand(c.class, action), payload, c.qos, false); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, c.class, action, err)
	}
	c.logger.Debug("command sent", "class", c.class, "action", action, "command_id", cmdID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-ch:
		if err != nil {
			return fmt.Errorf("%s %s: %w", c.class, action, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s %s after %s", ErrCommandTimeout, c.class, action, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%s %s: %w", c.class, action, ctx.Err())
	}
}

// request publishes a read and blocks until the gateway responds.
// The raw json value is decoded into out.
func (c *gatewayClient) request(ctx context.Context, signal string, out any) error {
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

	payload, err := json.Marshal(requestMessage{ID: reqID, Signal: signal})
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrRequestFailed, signal, err)
	}
	if err := c.bus.Publish(c.topics.HardwareRequest(c.class, reqID), payload, c.qos, false); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, c.class, signal, err)
	}

	timer := time.NewTimer(defaultRequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return fmt.Errorf("%w: %s %s: %s", ErrRequestFailed, c.class, signal, resp.Error)
		}
		if err := json.Unmarshal(resp.Value, out); err != nil {
			return fmt.Errorf("%w: decoding %s value: %w", ErrRequestFailed, signal, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s %s", ErrRequestTimeout, c.class, signal)
	case <-ctx.Done():
		return fmt.Errorf("%s %s: %w", c.class, signal, ctx.Err())
	}
}

// handleAck routes an incoming ack to the command waiting on it.
// Acks for unknown ids are ignored (late arrivals after timeout).
func (c *gatewayClient) handleAck(topic string, payload []byte) error {
	var ack ackMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("parsing ack on %s: %w", topic, err)
	}

	c.mu.Lock()
	ch, ok := c.pendingAcks[ack.ID]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	var result error
	if ack.Status != "complete" {
		result = fmt.Errorf("%w: %s", ErrCommandFailed, ack.Error)
	}
	select {
	case ch <- result:
	default:
	}
	return nil
}

// handleResponse routes an incoming response to the request waiting on
// it.
func (c *gatewayClient) handleResponse(topic string, payload []byte) error {
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
