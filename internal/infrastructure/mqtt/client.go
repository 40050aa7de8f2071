package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the bridge's publish-only telemetry
// traffic.
//
// It provides connection management, retained publishing, and a
// connection-lost callback. The bridge never subscribes: data flows one
// way, from the device to the broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	topics  Topics

	publishTimeout time.Duration

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// Callback for lost connections (optional, set via SetOnConnectionLost).
	onConnectionLost func(err error)
	callbackMu       sync.RWMutex

	// logger for connection event logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URI, auth)
//  2. Configures Last Will and Testament on the online topic
//  3. Attempts the connection within the configured timeout
//
// The client identifier is derived from the device so broker logs and
// session takeover behaviour stay stable across restarts of the same
// bridge instance.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - deviceID: Device identifier, e.g. "S10E-720012345678"
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If the connection fails within the timeout
func Connect(cfg config.MQTTConfig, deviceID string) (*Client, error) {
	topics := Topics{Root: cfg.RootTopic, DeviceID: deviceID}

	opts := buildClientOptions(cfg, clientIDPrefix+deviceID)
	configureLWT(opts, topics)

	c := &Client{
		options:        opts,
		topics:         topics,
		publishTimeout: publishTimeout(cfg),
	}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout(cfg)) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout(cfg))
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// handleConnectionLost is called when the broker session drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Error("MQTT connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onConnectionLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// Topics returns the topic builder bound to this client's root topic
// and device identifier.
func (c *Client) Topics() Topics {
	return c.topics
}

// PublishOnline publishes the retained availability flag.
//
// The broker's LWT covers the crash path with the same topic and
// payload shape, so consumers only ever watch one topic.
func (c *Client) PublishOnline(online bool) error {
	payload := offlinePayload
	if online {
		payload = onlinePayload
	}
	return c.Publish(c.topics.Online(), []byte(payload), defaultQoS, true)
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Publishes the offline availability flag (the graceful counterpart
//     of the LWT)
//  2. Disconnects with a quiesce period for pending operations
//
// Returns:
//   - error: Always nil; closing an unconnected client is not an error
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(c.topics.Online(), defaultQoS, true, offlinePayload)
		token.WaitTimeout(c.publishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnectionLost sets a callback invoked when the broker session
// drops. The error parameter describes why the connection was lost.
//
// The bridge uses this to abort its polling loop; with auto-reconnect
// disabled a lost session never comes back by itself.
func (c *Client) SetOnConnectionLost(callback func(err error)) {
	c.callbackMu.Lock()
	c.onConnectionLost = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection event logging.
// If not set, connection events are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
