//go:build integration

package mqtt

import (
	"testing"
	"time"

	"github.com/mxbeam/beamline-core/internal/infrastructure/config"
)

// Integration tests for broker round trips.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "beamline-integration-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_Connect(t *testing.T) {
	client, err := Connect(integrationConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

func TestIntegration_PublishSubscribeRoundtrip(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.ClientID = "beamline-int-pub"

	pubClient, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pubClient.Close()

	cfg.Broker.ClientID = "beamline-int-sub"
	subClient, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer subClient.Close()

	topic := Topics{}.HardwareAck("motion", "sample-x")
	expectedPayload := `{"id":"cmd-1","status":"complete"}`
	received := make(chan string, 1)

	err = subClient.Subscribe(Topics{}.AllHardwareAcks(), 1, func(t string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Give subscription time to register
	time.Sleep(100 * time.Millisecond)

	if err := pubClient.PublishJSON(topic, []byte(expectedPayload)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if payload != expectedPayload {
			t.Errorf("Received payload = %q, want %q", payload, expectedPayload)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.ClientID = "beamline-int-sub-track"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{
		Topics{}.AllHardwareAcks(),
		Topics{}.AllHardwareResponses(),
		Topics{}.AllAnalysisResults(),
	}

	handler := func(topic string, payload []byte) error {
		return nil
	}

	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics))
	}

	for _, topic := range topics {
		if !client.HasSubscription(topic) {
			t.Errorf("HasSubscription(%s) = false, want true", topic)
		}
	}
}
