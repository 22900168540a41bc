package docbus

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the document types in a run's stream.
type Kind string

const (
	KindStart      Kind = "start"
	KindDescriptor Kind = "descriptor"
	KindEvent      Kind = "event"
	KindStop       Kind = "stop"
)

// Exit statuses carried by stop documents.
const (
	ExitSuccess = "success"
	ExitFailed  = "failed"
	ExitAborted = "aborted"
)

// Document is one element of a run's ordered stream. Which fields are
// populated depends on Kind.
type Document struct {
	Kind Kind
	UID  string
	Time time.Time

	// RunUID ties descriptors and the stop document back to their
	// start document.
	RunUID string

	// Name is the stream name a descriptor declares, e.g.
	// "beamline-parameters".
	Name string

	// DescriptorUID ties an event to the descriptor that interprets
	// its Data keys.
	DescriptorUID string

	// Data carries start metadata or event readings keyed by signal
	// name.
	Data map[string]any

	// ExitStatus and Reason are set on stop documents only.
	ExitStatus string
	Reason     string
}

// NewStart opens a run. Metadata typically carries scan parameters and
// the collection group identity.
func NewStart(metadata map[string]any) Document {
	return Document{
		Kind: KindStart,
		UID:  uuid.NewString(),
		Time: time.Now(),
		Data: metadata,
	}
}

// NewDescriptor declares a named data stream within the run.
func NewDescriptor(runUID, name string) Document {
	return Document{
		Kind:   KindDescriptor,
		UID:    uuid.NewString(),
		Time:   time.Now(),
		RunUID: runUID,
		Name:   name,
	}
}

// NewEvent carries readings against a previously emitted descriptor.
func NewEvent(descriptorUID string, data map[string]any) Document {
	return Document{
		Kind:          KindEvent,
		UID:           uuid.NewString(),
		Time:          time.Now(),
		DescriptorUID: descriptorUID,
		Data:          data,
	}
}

// NewStop closes a run.
func NewStop(runUID, exitStatus, reason string) Document {
	return Document{
		Kind:       KindStop,
		UID:        uuid.NewString(),
		Time:       time.Now(),
		RunUID:     runUID,
		ExitStatus: exitStatus,
		Reason:     reason,
	}
}
