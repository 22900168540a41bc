// Package mqtt provides MQTT client connectivity for Beamline Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Beamline Core uses MQTT as the message bus connecting the orchestrator to
// the hardware gateway (motors, detector, trigger, shutters) and to the
// crystal-analysis service. The broker decouples the orchestrator from the
// control-system transport behind the gateway.
//
//	Beamline Core ↔ MQTT Broker ↔ Hardware Gateway / Analysis Service
//
// Hardware commands follow a command/ack pattern: a command carries a unique
// id, and the gateway publishes an ack on the matching topic when the
// hardware has finished. Reads follow a request/response pattern keyed by
// request id.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all analysis results
//	err = client.Subscribe(mqtt.Topics{}.AllAnalysisResults(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleResult(payload)
//	    })
//
//	// Command a motor move
//	topic := mqtt.Topics{}.HardwareCommand("motion", "sample-x")
//	client.Publish(topic, []byte(`{"id":"cmd-1","position":1.25}`), 1, false)
package mqtt
