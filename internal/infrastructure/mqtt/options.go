package mqtt

import (
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout applies when the configuration leaves the
	// connect timeout unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout applies when the configuration leaves the
	// publish timeout unset.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultQoS is used for every telemetry publish.
	defaultQoS byte = 1

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// Availability payloads for the retained online topic.
const (
	onlinePayload  = "true"
	offlinePayload = "false"
)

// clientIDPrefix leads every MQTT client identifier so broker logs can
// attribute sessions to this bridge.
const clientIDPrefix = "e3dc-mqtt-bridge-"

// buildClientOptions creates paho MQTT options from the bridge config.
//
// This configures:
//   - Broker URI (tcp:// or ssl:// straight from config)
//   - Client ID derived from the device identifier
//   - Authentication credentials (if provided)
//   - Clean session mode
//   - Connection timeout and keepalive
//
// Automatic reconnection stays off: a lost session is fatal to the
// bridge, which relies on its supervisor to restart the whole process.
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(connectTimeout(cfg))
	opts.SetKeepAlive(defaultKeepAlive)

	return opts
}

// connectTimeout resolves the configured connect timeout.
func connectTimeout(cfg config.MQTTConfig) time.Duration {
	if d := cfg.ConnectTimeout.Std(); d > 0 {
		return d
	}
	return defaultConnectTimeout
}

// publishTimeout resolves the configured publish timeout.
func publishTimeout(cfg config.MQTTConfig) time.Duration {
	if d := cfg.PublishTimeout.Std(); d > 0 {
		return d
	}
	return defaultPublishTimeout
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes the will if the bridge disconnects without a
// graceful shutdown (crash, network failure, etc.), flipping the
// retained availability flag so consumers see the device go dark.
//
// Topic: <root>/<deviceID>/online
// QoS: 1 (guaranteed delivery)
// Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics) {
	opts.SetWill(topics.Online(), offlinePayload, defaultQoS, true)
}
