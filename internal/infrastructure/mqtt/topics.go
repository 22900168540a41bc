package mqtt

import "fmt"

// Topic prefixes for the beamline message bus.
//
// Hardware gateway topics use the flat scheme:
// beamline/{category}/{device_class}/{address_or_id}. The analysis service
// has its own subtree under beamline/analysis.
const (
	// TopicPrefix is the base for all beamline topics.
	TopicPrefix = "beamline"

	// TopicPrefixAnalysis is the base for analysis-service topics.
	TopicPrefixAnalysis = "beamline/analysis"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "beamline/system"
)

// Topics provides builders for beamline MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.HardwareCommand("motion", "sample-x")
//	// Returns: "beamline/command/motion/sample-x"
type Topics struct{}

// =============================================================================
// Hardware Gateway Topics
// =============================================================================

// HardwareCommand returns the topic for commands to the hardware gateway.
//
// Example: beamline/command/motion/sample-x
func (Topics) HardwareCommand(class, address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, class, address)
}

// HardwareAck returns the topic for command acknowledgements from the gateway.
// An ack arrives when the commanded hardware has finished moving or settling.
//
// Example: beamline/ack/motion/sample-x
func (Topics) HardwareAck(class, address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, class, address)
}

// HardwareRequest returns the topic for read requests to the gateway.
//
// Example: beamline/request/motion/req-abc123
func (Topics) HardwareRequest(class, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, class, requestID)
}

// HardwareResponse returns the topic for read responses from the gateway.
//
// Example: beamline/response/motion/req-abc123
func (Topics) HardwareResponse(class, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, class, requestID)
}

// HardwareHealth returns the topic for gateway health status.
//
// Example: beamline/health/motion
func (Topics) HardwareHealth(class string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, class)
}

// =============================================================================
// Analysis Service Topics
// =============================================================================

// AnalysisSubmit returns the topic for submitting a collection to the
// analysis service for crystal centring.
//
// Example: beamline/analysis/submit/dc-1042
func (Topics) AnalysisSubmit(collectionID string) string {
	return fmt.Sprintf("%s/submit/%s", TopicPrefixAnalysis, collectionID)
}

// AnalysisComplete returns the topic notifying the analysis service that a
// collection's images are all on disk and processing may begin.
//
// Example: beamline/analysis/complete/dc-1042
func (Topics) AnalysisComplete(collectionID string) string {
	return fmt.Sprintf("%s/complete/%s", TopicPrefixAnalysis, collectionID)
}

// AnalysisResult returns the topic on which the analysis service publishes
// centring results for a collection.
//
// Example: beamline/analysis/result/dc-1042
func (Topics) AnalysisResult(collectionID string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefixAnalysis, collectionID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: beamline/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllHardwareAcks returns a pattern matching all hardware acknowledgements.
//
// Pattern: beamline/ack/+/+
func (Topics) AllHardwareAcks() string {
	return fmt.Sprintf("%s/ack/+/+", TopicPrefix)
}

// AllHardwareResponses returns a pattern matching all read responses.
//
// Pattern: beamline/response/+/+
func (Topics) AllHardwareResponses() string {
	return fmt.Sprintf("%s/response/+/+", TopicPrefix)
}

// ClassAcks returns a pattern matching one device class's acks.
//
// Pattern: beamline/ack/detector/+
func (Topics) ClassAcks(class string) string {
	return fmt.Sprintf("%s/ack/%s/+", TopicPrefix, class)
}

// ClassResponses returns a pattern matching one device class's read
// responses.
//
// Pattern: beamline/response/facility/+
func (Topics) ClassResponses(class string) string {
	return fmt.Sprintf("%s/response/%s/+", TopicPrefix, class)
}

// AllHardwareHealth returns a pattern matching all gateway health updates.
//
// Pattern: beamline/health/+
func (Topics) AllHardwareHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefix)
}

// AllAnalysisResults returns a pattern matching all analysis results.
//
// Pattern: beamline/analysis/result/+
func (Topics) AllAnalysisResults() string {
	return fmt.Sprintf("%s/result/+", TopicPrefixAnalysis)
}

// AllTopics returns a pattern matching all beamline topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: beamline/#
func (Topics) AllTopics() string {
	return "beamline/#"
}
