package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/config"
)

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:         "tcp://127.0.0.1:1883",
		RootTopic:      "e3dc",
		Username:       "bridge",
		Password:       "secret",
		ConnectTimeout: config.Duration(2 * time.Second),
		PublishTimeout: config.Duration(time.Second),
	}
}

// stubToken satisfies pahomqtt.Token without a broker.
type stubToken struct {
	err      error
	timedOut bool
}

func (t *stubToken) Wait() bool                     { return true }
func (t *stubToken) WaitTimeout(time.Duration) bool { return !t.timedOut }
func (t *stubToken) Error() error                   { return t.err }

func (t *stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// stubPahoClient records publishes. The embedded interface covers the
// methods these tests never touch.
type stubPahoClient struct {
	pahomqtt.Client

	connected      bool
	published      []publishedMessage
	publishErr     error
	publishTimeout bool
	disconnected   bool
}

func (s *stubPahoClient) IsConnected() bool { return s.connected }

func (s *stubPahoClient) Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token {
	var body string
	switch p := payload.(type) {
	case []byte:
		body = string(p)
	case string:
		body = p
	}
	s.published = append(s.published, publishedMessage{topic, qos, retained, body})
	return &stubToken{err: s.publishErr, timedOut: s.publishTimeout}
}

func (s *stubPahoClient) Disconnect(uint) {
	s.disconnected = true
	s.connected = false
}

func newStubbedClient(stub *stubPahoClient) *Client {
	c := &Client{
		client:         stub,
		topics:         Topics{Root: "e3dc", DeviceID: "S10E-720012345678"},
		publishTimeout: 50 * time.Millisecond,
	}
	c.connected = stub.connected
	return c
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testMQTTConfig()

	opts := buildClientOptions(cfg, "e3dc-mqtt-bridge-S10E-720012345678")

	if len(opts.Servers) != 1 {
		t.Fatalf("Servers count = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker = %q, want %q", got, "tcp://127.0.0.1:1883")
	}

	if opts.ClientID != "e3dc-mqtt-bridge-S10E-720012345678" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}

	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want bridge/secret", opts.Username, opts.Password)
	}

	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}

	if opts.AutoReconnect {
		t.Error("AutoReconnect = true, want false")
	}

	if opts.ConnectRetry {
		t.Error("ConnectRetry = true, want false")
	}

	if opts.ConnectTimeout != 2*time.Second {
		t.Errorf("ConnectTimeout = %v, want 2s", opts.ConnectTimeout)
	}
}

func TestBuildClientOptionsAnonymous(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Username = ""
	cfg.Password = "ignored"

	opts := buildClientOptions(cfg, "e3dc-mqtt-bridge-test")

	if opts.Username != "" || opts.Password != "" {
		t.Errorf("credentials = %q/%q, want empty", opts.Username, opts.Password)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	topics := Topics{Root: "e3dc", DeviceID: "S10E-720012345678"}

	configureLWT(opts, topics)

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "e3dc/S10E-720012345678/online" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if string(opts.WillPayload) != "false" {
		t.Errorf("WillPayload = %q, want %q", opts.WillPayload, "false")
	}
	if opts.WillQos != 1 {
		t.Errorf("WillQos = %d, want 1", opts.WillQos)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}
}

func TestTimeoutFallbacks(t *testing.T) {
	var cfg config.MQTTConfig

	if got := connectTimeout(cfg); got != defaultConnectTimeout {
		t.Errorf("connectTimeout(zero) = %v, want %v", got, defaultConnectTimeout)
	}
	if got := publishTimeout(cfg); got != defaultPublishTimeout {
		t.Errorf("publishTimeout(zero) = %v, want %v", got, defaultPublishTimeout)
	}

	cfg = testMQTTConfig()
	if got := connectTimeout(cfg); got != 2*time.Second {
		t.Errorf("connectTimeout = %v, want 2s", got)
	}
	if got := publishTimeout(cfg); got != time.Second {
		t.Errorf("publishTimeout = %v, want 1s", got)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	stub := &stubPahoClient{connected: true}
	client := newStubbedClient(stub)

	err := client.Publish("e3dc/dev/status/rsoc", []byte("87"), 1, true)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(stub.published) != 1 {
		t.Fatalf("published count = %d, want 1", len(stub.published))
	}

	got := stub.published[0]
	want := publishedMessage{topic: "e3dc/dev/status/rsoc", qos: 1, retained: true, payload: "87"}
	if got != want {
		t.Errorf("published = %+v, want %+v", got, want)
	}
}

func TestPublishEmptyTopic(t *testing.T) {
	client := newStubbedClient(&stubPahoClient{connected: true})

	err := client.Publish("", []byte("x"), 1, true)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := newStubbedClient(&stubPahoClient{connected: true})

	err := client.Publish("t", []byte("x"), 3, true)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := newStubbedClient(&stubPahoClient{connected: true})

	err := client.Publish("t", make([]byte, maxPayloadSize+1), 1, true)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	client := newStubbedClient(&stubPahoClient{connected: false})

	err := client.Publish("t", []byte("x"), 1, true)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishTokenError(t *testing.T) {
	stub := &stubPahoClient{connected: true, publishErr: errors.New("broker said no")}
	client := newStubbedClient(stub)

	err := client.Publish("t", []byte("x"), 1, true)
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("Publish() error = %v, want ErrPublishFailed", err)
	}
	if !strings.Contains(err.Error(), "broker said no") {
		t.Errorf("Publish() error %q should carry the cause", err)
	}
}

func TestPublishTimeout(t *testing.T) {
	stub := &stubPahoClient{connected: true, publishTimeout: true}
	client := newStubbedClient(stub)

	err := client.Publish("t", []byte("x"), 1, true)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishRetained(t *testing.T) {
	stub := &stubPahoClient{connected: true}
	client := newStubbedClient(stub)

	if err := client.PublishRetained("t", []byte("1")); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	got := stub.published[0]
	if got.qos != 1 || !got.retained {
		t.Errorf("PublishRetained() qos=%d retained=%v, want 1/true", got.qos, got.retained)
	}
}

func TestPublishOnline(t *testing.T) {
	stub := &stubPahoClient{connected: true}
	client := newStubbedClient(stub)

	if err := client.PublishOnline(true); err != nil {
		t.Fatalf("PublishOnline(true) error = %v", err)
	}
	if err := client.PublishOnline(false); err != nil {
		t.Fatalf("PublishOnline(false) error = %v", err)
	}

	if len(stub.published) != 2 {
		t.Fatalf("published count = %d, want 2", len(stub.published))
	}

	for _, msg := range stub.published {
		if msg.topic != "e3dc/S10E-720012345678/online" {
			t.Errorf("topic = %q, want the online topic", msg.topic)
		}
		if !msg.retained || msg.qos != 1 {
			t.Errorf("online flag qos=%d retained=%v, want 1/true", msg.qos, msg.retained)
		}
	}

	if stub.published[0].payload != "true" {
		t.Errorf("payload = %q, want %q", stub.published[0].payload, "true")
	}
	if stub.published[1].payload != "false" {
		t.Errorf("payload = %q, want %q", stub.published[1].payload, "false")
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestClose(t *testing.T) {
	stub := &stubPahoClient{connected: true}
	client := newStubbedClient(stub)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !stub.disconnected {
		t.Error("Close() should disconnect the underlying client")
	}

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}

	// The graceful path publishes the offline flag before disconnecting.
	if len(stub.published) != 1 {
		t.Fatalf("published count = %d, want 1", len(stub.published))
	}
	if stub.published[0].payload != "false" {
		t.Errorf("offline payload = %q, want %q", stub.published[0].payload, "false")
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheck(t *testing.T) {
	client := newStubbedClient(&stubPahoClient{connected: true})

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := newStubbedClient(&stubPahoClient{connected: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := newStubbedClient(&stubPahoClient{connected: false})

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHandleConnectionLost(t *testing.T) {
	stub := &stubPahoClient{connected: true}
	client := newStubbedClient(stub)

	var got error
	client.SetOnConnectionLost(func(err error) {
		got = err
	})

	cause := errors.New("broken pipe")
	client.handleConnectionLost(cause)

	if got != cause {
		t.Errorf("callback error = %v, want %v", got, cause)
	}

	client.connMu.RLock()
	connected := client.connected
	client.connMu.RUnlock()
	if connected {
		t.Error("connected flag should clear on connection loss")
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{Root: "e3dc", DeviceID: "S10E-720012345678"}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{
			name:     "Online",
			got:      topics.Online(),
			expected: "e3dc/S10E-720012345678/online",
		},
		{
			name:     "Info",
			got:      topics.Info(),
			expected: "e3dc/S10E-720012345678/info",
		},
		{
			name:     "Status",
			got:      topics.Status("solar_production"),
			expected: "e3dc/S10E-720012345678/status/solar_production",
		},
		{
			name:     "StatusSums",
			got:      topics.StatusSums("autarky_today"),
			expected: "e3dc/S10E-720012345678/status_sums/autarky_today",
		},
		{
			name:     "Battery",
			got:      topics.Battery(0, "rsoc"),
			expected: "e3dc/S10E-720012345678/status/battery:0/rsoc",
		},
		{
			name:     "DCB",
			got:      topics.DCB(0, 1, "voltage"),
			expected: "e3dc/S10E-720012345678/status/battery:0/dcb:1/voltage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestClientTopicsAccessor(t *testing.T) {
	client := newStubbedClient(&stubPahoClient{})

	topics := client.Topics()
	if topics.Root != "e3dc" || topics.DeviceID != "S10E-720012345678" {
		t.Errorf("Topics() = %+v", topics)
	}
}
