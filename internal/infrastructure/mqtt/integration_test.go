//go:build integration

package mqtt

import (
	"errors"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/config"
)

// Integration tests for broker behaviour.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:         "tcp://127.0.0.1:1883",
		RootTopic:      "e3dc-test",
		ConnectTimeout: config.Duration(5 * time.Second),
		PublishTimeout: config.Duration(2 * time.Second),
	}
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	client, err := Connect(integrationConfig(), "S10E-test")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker = "tcp://127.0.0.1:19999"
	cfg.ConnectTimeout = config.Duration(time.Second)

	_, err := Connect(cfg, "S10E-test")
	if err == nil {
		t.Fatal("Connect() expected error for refused connection")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_RetainedTelemetryRoundtrip(t *testing.T) {
	bridge, err := Connect(integrationConfig(), "S10E-roundtrip")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer bridge.Close()

	if err := bridge.PublishOnline(true); err != nil {
		t.Fatalf("PublishOnline() error = %v", err)
	}

	topic := bridge.Topics().Status("rsoc")
	if err := bridge.PublishRetained(topic, []byte("87")); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	// A fresh subscriber must see the retained value without waiting
	// for the next publish cycle.
	opts := pahomqtt.NewClientOptions().
		AddBroker("tcp://127.0.0.1:1883").
		SetClientID("e3dc-test-subscriber")
	sub := pahomqtt.NewClient(opts)
	if token := sub.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("subscriber connect failed: %v", token.Error())
	}
	defer sub.Disconnect(100)

	received := make(chan string, 1)
	token := sub.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		received <- string(msg.Payload())
	})
	if !token.WaitTimeout(2*time.Second) || token.Error() != nil {
		t.Fatalf("subscribe failed: %v", token.Error())
	}

	select {
	case payload := <-received:
		if payload != "87" {
			t.Errorf("retained payload = %q, want %q", payload, "87")
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for retained message")
	}
}
