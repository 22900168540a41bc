package docbus

import (
	"context"
	"sync"
)

// Capability interfaces. A subscriber implements only the hooks it
// needs; the bus type-asserts per document kind.
type (
	StartRecorder interface {
		OnStart(ctx context.Context, doc Document) error
	}
	DescriptorRecorder interface {
		OnDescriptor(ctx context.Context, doc Document) error
	}
	EventRecorder interface {
		OnEvent(ctx context.Context, doc Document) error
	}
	StopRecorder interface {
		OnStop(ctx context.Context, doc Document) error
	}
)

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Error(msg string, args ...any) {}

type subscription struct {
	name string
	rec  any
}

// Bus dispatches a run's document stream to its subscribers in order.
//
// Thread Safety: Subscribe and Publish are safe for concurrent use,
// but documents published concurrently race for position in the
// stream; a scan emits from a single goroutine.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger Logger
}

// NewBus creates a Bus.
func NewBus(logger Logger) *Bus {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bus{logger: logger}
}

// Subscribe registers a recorder under a diagnostic name. Recorders
// receive documents in subscription order.
func (b *Bus) Subscribe(name string, recorder any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, rec: recorder})
}

// Publish delivers doc to every subscriber that handles its kind,
// synchronously and in subscription order. Recorder errors are logged
// and do not stop dispatch.
func (b *Bus) Publish(ctx context.Context, doc Document) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := b.dispatch(ctx, sub, doc); err != nil {
			b.logger.Error("document recorder failed",
				"recorder", sub.name, "kind", doc.Kind, "uid", doc.UID, "error", err)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, sub subscription, doc Document) error {
	switch doc.Kind {
	case KindStart:
		if rec, ok := sub.rec.(StartRecorder); ok {
			return rec.OnStart(ctx, doc)
		}
	case KindDescriptor:
		if rec, ok := sub.rec.(DescriptorRecorder); ok {
			return rec.OnDescriptor(ctx, doc)
		}
	case KindEvent:
		if rec, ok := sub.rec.(EventRecorder); ok {
			return rec.OnEvent(ctx, doc)
		}
	case KindStop:
		if rec, ok := sub.rec.(StopRecorder); ok {
			return rec.OnStop(ctx, doc)
		}
	default:
		b.logger.Debug("unknown document kind ignored", "kind", doc.Kind, "uid", doc.UID)
	}
	return nil
}
