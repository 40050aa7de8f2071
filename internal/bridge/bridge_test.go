package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/e3dc"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/history"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/mqtt"
)

// mockBroker implements MQTTClient for testing, recording every
// publish in order.
type mockBroker struct {
	mu         sync.Mutex
	published  []brokerMessage
	online     []bool
	connected  bool
	publishErr error
}

type brokerMessage struct {
	Topic   string
	Payload string
}

func newMockBroker() *mockBroker {
	return &mockBroker{connected: true}
}

func (m *mockBroker) PublishRetained(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, brokerMessage{Topic: topic, Payload: string(payload)})
	return nil
}

func (m *mockBroker) PublishOnline(online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = append(m.online, online)
	return nil
}

func (m *mockBroker) Topics() mqtt.Topics {
	return mqtt.Topics{Root: "e3dc", DeviceID: "S10E-720012345678"}
}

func (m *mockBroker) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockBroker) GetPublished() []brokerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]brokerMessage(nil), m.published...)
}

func (m *mockBroker) GetOnline() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.online...)
}

func (m *mockBroker) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

func (m *mockBroker) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

// payloadFor returns the payload of the first recorded message whose
// topic matches, or fails the test.
func (m *mockBroker) payloadFor(t *testing.T, topic string) string {
	t.Helper()
	for _, msg := range m.GetPublished() {
		if msg.Topic == topic {
			return msg.Payload
		}
	}
	t.Fatalf("no message published on %s", topic)
	return ""
}

// mockDevice implements DeviceClient for testing, serving canned
// readings and counting calls.
type mockDevice struct {
	mu sync.Mutex

	deviceID  string
	batteries []e3dc.BatteryInfo
	status    *e3dc.Status
	sysinfo   *e3dc.SystemInfo
	battery   map[uint64]*e3dc.BatteryData
	daily     *e3dc.DailyStatistics

	statusErr  error
	sysinfoErr error
	batteryErr error
	dailyErr   error

	statusCalls  int
	sysinfoCalls int
	batteryCalls int
	dailyCalls   int

	connected bool
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		deviceID:  "S10E-720012345678",
		connected: true,
		batteries: []e3dc.BatteryInfo{
			{Index: 0, DeviceName: "BAT_1", DCBCount: 1},
		},
		status: &e3dc.Status{
			Timestamp:       testStamp,
			PowerBattery:    -1500,
			PowerHome:       850,
			PowerPV:         3200,
			PowerGrid:       -850,
			PowerAdd:        -50,
			BatterySOC:      72,
			Autarky:         95.456,
			SelfConsumption: 100,
		},
		sysinfo: &e3dc.SystemInfo{
			Timestamp:          testStamp,
			SerialNumber:       "S10E-720012345678",
			MACAddress:         "00:11:22:33:44:55",
			IPAddress:          "192.168.1.50",
			Model:              "S10E",
			SoftwareRelease:    "S10_2023_086",
			InstalledPeakPower: 9600,
			DeratePercent:      70,
			DeratePower:        6720,
		},
		battery: map[uint64]*e3dc.BatteryData{
			0: {
				Index:         0,
				Timestamp:     testStamp,
				RSOC:          72.456,
				ModuleVoltage: 48.1234,
				DeviceName:    "BAT_1",
				DCBCount:      1,
				DCBs: []e3dc.DCBData{{
					Index:            0,
					Voltage:          48.9876,
					SOC:              72.456,
					CellTemperatures: []float64{27.456, 27.654},
					CellVoltages:     []float64{3.4987, 3.5012},
				}},
			},
		},
		daily: &e3dc.DailyStatistics{
			Timestamp:          testStamp,
			Autarky:            95.456,
			Consumption:        12345,
			SolarProduction:    23456,
			ConsumedProduction: 87.654,
			StateOfCharge:      64.456,
			Start:              time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
			Timespan:           24 * time.Hour,
		},
	}
}

func (m *mockDevice) DeviceID() string {
	return m.deviceID
}

func (m *mockDevice) Batteries() []e3dc.BatteryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]e3dc.BatteryInfo(nil), m.batteries...)
}

func (m *mockDevice) GetStatus(ctx context.Context) (*e3dc.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.status, nil
}

func (m *mockDevice) GetSystemInfo(ctx context.Context) (*e3dc.SystemInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sysinfoCalls++
	if m.sysinfoErr != nil {
		return nil, m.sysinfoErr
	}
	return m.sysinfo, nil
}

func (m *mockDevice) GetBatteryData(ctx context.Context, battery e3dc.BatteryInfo) (*e3dc.BatteryData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batteryCalls++
	if m.batteryErr != nil {
		return nil, m.batteryErr
	}
	data, ok := m.battery[battery.Index]
	if !ok {
		return nil, errors.New("no such battery")
	}
	return data, nil
}

func (m *mockDevice) GetDailyStatistics(ctx context.Context, statInterval time.Duration) (*e3dc.DailyStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyCalls++
	if m.dailyErr != nil {
		return nil, m.dailyErr
	}
	return m.daily, nil
}

func (m *mockDevice) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockDevice) calls() (status, sysinfo, battery, daily int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls, m.sysinfoCalls, m.batteryCalls, m.dailyCalls
}

// mockArchive implements SnapshotArchive for testing.
type mockArchive struct {
	mu        sync.Mutex
	appends   []archivedRecord
	prunes    int
	appendErr error
}

type archivedRecord struct {
	Kind       string
	RecordedAt time.Time
}

func (m *mockArchive) Append(ctx context.Context, kind string, recordedAt time.Time, record any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appends = append(m.appends, archivedRecord{Kind: kind, RecordedAt: recordedAt})
	return nil
}

func (m *mockArchive) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prunes++
	return 0, nil
}

func (m *mockArchive) GetAppends() []archivedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]archivedRecord(nil), m.appends...)
}

func (m *mockArchive) GetPrunes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prunes
}

// mockMirror implements TelemetryMirror for testing.
type mockMirror struct {
	mu     sync.Mutex
	points []mirroredPoint
}

type mirroredPoint struct {
	Measurement string
	DeviceID    string
	Battery     uint64
	DCB         uint64
	Fields      map[string]any
	Timestamp   time.Time
}

func (m *mockMirror) WriteStatus(deviceID string, fields map[string]any, ts time.Time) {
	m.record(mirroredPoint{Measurement: "status", DeviceID: deviceID, Fields: fields, Timestamp: ts})
}

func (m *mockMirror) WriteBattery(deviceID string, batteryIndex uint64, fields map[string]any, ts time.Time) {
	m.record(mirroredPoint{Measurement: "battery", DeviceID: deviceID, Battery: batteryIndex, Fields: fields, Timestamp: ts})
}

func (m *mockMirror) WriteDCB(deviceID string, batteryIndex, dcbIndex uint64, fields map[string]any, ts time.Time) {
	m.record(mirroredPoint{Measurement: "battery_dcb", DeviceID: deviceID, Battery: batteryIndex, DCB: dcbIndex, Fields: fields, Timestamp: ts})
}

func (m *mockMirror) WriteDailyStatistics(deviceID string, fields map[string]any, ts time.Time) {
	m.record(mirroredPoint{Measurement: "status_sums", DeviceID: deviceID, Fields: fields, Timestamp: ts})
}

func (m *mockMirror) record(p mirroredPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, p)
}

func (m *mockMirror) GetPoints() []mirroredPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mirroredPoint(nil), m.points...)
}

func (m *mockMirror) countOf(measurement string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.points {
		if p.Measurement == measurement {
			n++
		}
	}
	return n
}

// ============================================================
// Constructor
// ============================================================

func TestNew(t *testing.T) {
	b, err := New(Options{
		Device:             newMockDevice(),
		MQTT:               newMockBroker(),
		StatusInterval:     30 * time.Second,
		StatisticsInterval: 5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b == nil {
		t.Fatal("New() returned nil bridge")
	}
}

func TestNewMissingDevice(t *testing.T) {
	_, err := New(Options{
		MQTT:               newMockBroker(),
		StatusInterval:     30 * time.Second,
		StatisticsInterval: 5 * time.Minute,
	})
	if err == nil {
		t.Fatal("New() without device should fail")
	}
}

func TestNewMissingMQTT(t *testing.T) {
	_, err := New(Options{
		Device:             newMockDevice(),
		StatusInterval:     30 * time.Second,
		StatisticsInterval: 5 * time.Minute,
	})
	if err == nil {
		t.Fatal("New() without MQTT client should fail")
	}
}

func TestNewInvalidIntervals(t *testing.T) {
	_, err := New(Options{
		Device:             newMockDevice(),
		MQTT:               newMockBroker(),
		StatusInterval:     0,
		StatisticsInterval: 5 * time.Minute,
	})
	if err == nil {
		t.Fatal("New() with zero status interval should fail")
	}

	_, err = New(Options{
		Device:             newMockDevice(),
		MQTT:               newMockBroker(),
		StatusInterval:     30 * time.Second,
		StatisticsInterval: -time.Second,
	})
	if err == nil {
		t.Fatal("New() with negative statistics interval should fail")
	}
}

// ============================================================
// Scheduling
// ============================================================

func TestNextFire(t *testing.T) {
	interval := 5 * time.Second

	// 2s past a boundary fires 3s later, on the boundary.
	now := time.Unix(1002, 0)
	if got, want := nextFire(now, interval), time.Unix(1005, 0); !got.Equal(want) {
		t.Errorf("nextFire(%v) = %v, want %v", now, got, want)
	}

	// Exactly on a boundary fires a full interval later.
	now = time.Unix(1005, 0)
	if got, want := nextFire(now, interval), time.Unix(1010, 0); !got.Equal(want) {
		t.Errorf("nextFire(%v) = %v, want %v", now, got, want)
	}

	// Sub-second offsets align too.
	now = time.Unix(1002, 500_000_000)
	if got, want := nextFire(now, interval), time.Unix(1005, 0); !got.Equal(want) {
		t.Errorf("nextFire(%v) = %v, want %v", now, got, want)
	}

	// Alignment holds for minute-scale intervals.
	now = time.Date(2025, 6, 15, 10, 30, 17, 0, time.UTC)
	want := time.Date(2025, 6, 15, 10, 31, 0, 0, time.UTC)
	if got := nextFire(now, time.Minute); !got.Equal(want) {
		t.Errorf("nextFire(%v) = %v, want %v", now, got, want)
	}
}

// ============================================================
// Run lifecycle
// ============================================================

func TestRunPublishesFullCycle(t *testing.T) {
	device := newMockDevice()
	broker := newMockBroker()
	archive := &mockArchive{}
	mirror := &mockMirror{}

	b, err := New(Options{
		Device:             device,
		MQTT:               broker,
		StatusInterval:     time.Hour,
		StatisticsInterval: time.Hour,
		Archive:            archive,
		ArchiveRetention:   24 * time.Hour,
		Mirror:             mirror,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), settleDelay+200*time.Millisecond)
	defer cancel()

	if err := b.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if online := broker.GetOnline(); len(online) != 1 || !online[0] {
		t.Errorf("online publishes = %v, want [true]", online)
	}

	topics := broker.Topics()
	published := broker.GetPublished()
	if len(published) == 0 {
		t.Fatal("nothing published")
	}
	if published[0].Topic != topics.Info() {
		t.Errorf("first publish = %s, want info document", published[0].Topic)
	}

	// One of each cadence fired immediately: info + 15 status +
	// 12 daily + 28 battery scalars + 33 DCB fields.
	if want := 1 + 15 + 12 + 28 + 33; len(published) != want {
		t.Errorf("published %d messages, want %d", len(published), want)
	}

	statusCalls, sysinfoCalls, batteryCalls, dailyCalls := device.calls()
	if statusCalls != 1 || sysinfoCalls != 1 || batteryCalls != 1 || dailyCalls != 1 {
		t.Errorf("device calls = (%d, %d, %d, %d), want one each",
			statusCalls, sysinfoCalls, batteryCalls, dailyCalls)
	}

	if got := broker.payloadFor(t, topics.Status("autarky")); got != "95.5" {
		t.Errorf("autarky payload = %q, want 95.5", got)
	}
	if got := broker.payloadFor(t, topics.Battery(0, "rsoc")); got != "72.46" {
		t.Errorf("battery rsoc payload = %q, want 72.46", got)
	}
	if got := broker.payloadFor(t, topics.DCB(0, 0, "temperatures")); got != "[27.46,27.65]" {
		t.Errorf("dcb temperatures payload = %q, want [27.46,27.65]", got)
	}

	appends := archive.GetAppends()
	kinds := make(map[string]int)
	for _, a := range appends {
		kinds[a.Kind]++
	}
	if kinds[history.KindStatus] != 1 || kinds[history.KindDaily] != 1 || kinds[history.KindBattery] != 1 {
		t.Errorf("archive kinds = %v, want one of each", kinds)
	}
	if archive.GetPrunes() != 1 {
		t.Errorf("prunes = %d, want 1", archive.GetPrunes())
	}

	if mirror.countOf("status") != 1 || mirror.countOf("status_sums") != 1 ||
		mirror.countOf("battery") != 1 || mirror.countOf("battery_dcb") != 1 {
		t.Errorf("mirror points = %+v, want one per measurement", mirror.GetPoints())
	}
	for _, p := range mirror.GetPoints() {
		if p.DeviceID != device.DeviceID() {
			t.Errorf("mirror point device = %q, want %q", p.DeviceID, device.DeviceID())
		}
		if !p.Timestamp.Equal(testStamp) {
			t.Errorf("mirror point timestamp = %v, want device-reported %v", p.Timestamp, testStamp)
		}
		if _, ok := p.Fields["time"]; ok {
			t.Error("mirror fields must not include time")
		}
	}
}

func TestRunContextCancelledBeforeStart(t *testing.T) {
	broker := newMockBroker()
	b, err := New(Options{
		Device:             newMockDevice(),
		MQTT:               broker,
		StatusInterval:     time.Hour,
		StatisticsInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Run(ctx); err != nil {
		t.Fatalf("Run() with cancelled context = %v, want nil", err)
	}
	if len(broker.GetPublished()) != 0 || len(broker.GetOnline()) != 0 {
		t.Error("cancelled run must not publish")
	}
}

func TestRunConnectionLost(t *testing.T) {
	b, err := New(Options{
		Device:             newMockDevice(),
		MQTT:               newMockBroker(),
		StatusInterval:     time.Hour,
		StatisticsInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	b.ConnectionLost(errors.New("broker went away"))

	err = b.Run(context.Background())
	if err == nil {
		t.Fatal("Run() after connection loss should fail")
	}
	if !strings.Contains(err.Error(), "broker connection lost") {
		t.Errorf("error = %v, want broker connection lost", err)
	}
}

func TestRunDeviceError(t *testing.T) {
	device := newMockDevice()
	device.statusErr = errors.New("device unreachable")

	b, err := New(Options{
		Device:             device,
		MQTT:               newMockBroker(),
		StatusInterval:     time.Hour,
		StatisticsInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = b.Run(context.Background())
	if err == nil {
		t.Fatal("Run() with failing device should return the error")
	}
	if !strings.Contains(err.Error(), "device unreachable") {
		t.Errorf("error = %v, want wrapped device error", err)
	}
}

func TestRunPublishErrorIsFatal(t *testing.T) {
	broker := newMockBroker()
	broker.SetPublishError(errors.New("not connected"))

	b, err := New(Options{
		Device:             newMockDevice(),
		MQTT:               broker,
		StatusInterval:     time.Hour,
		StatisticsInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = b.Run(context.Background())
	if err == nil {
		t.Fatal("Run() with failing publishes should return the error")
	}
}

func TestRunArchiveErrorsAreNotFatal(t *testing.T) {
	archive := &mockArchive{appendErr: errors.New("disk full")}

	b, err := New(Options{
		Device:             newMockDevice(),
		MQTT:               newMockBroker(),
		StatusInterval:     time.Hour,
		StatisticsInterval: time.Hour,
		Archive:            archive,
		ArchiveRetention:   24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), settleDelay+200*time.Millisecond)
	defer cancel()

	if err := b.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, archive failures must not be fatal", err)
	}

	// Status, daily, and battery appends all failed.
	if got := b.GetMetrics().ArchiveErrors; got != 3 {
		t.Errorf("ArchiveErrors = %d, want 3", got)
	}
}

func TestConnectionLostDoesNotBlock(t *testing.T) {
	b, err := New(Options{
		Device:             newMockDevice(),
		MQTT:               newMockBroker(),
		StatusInterval:     time.Hour,
		StatisticsInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.ConnectionLost(errors.New("flap"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConnectionLost blocked with no loop consuming it")
	}
}

// ============================================================
// Metrics
// ============================================================

func TestGetMetrics(t *testing.T) {
	device := newMockDevice()
	broker := newMockBroker()

	b, err := New(Options{
		Device:             device,
		MQTT:               broker,
		StatusInterval:     time.Hour,
		StatisticsInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Before any poll: connected flags reflect the clients, counters
	// and timestamps are zero.
	m := b.GetMetrics()
	if !m.DeviceConnected || !m.BrokerConnected {
		t.Error("connected flags should mirror the clients")
	}
	if m.StatusPolls != 0 || m.StatisticsPolls != 0 || m.MessagesPublished != 0 {
		t.Errorf("fresh bridge counters = %+v, want zero", m)
	}
	if !m.LastStatusPoll.IsZero() || !m.LastStatisticsPoll.IsZero() {
		t.Error("fresh bridge poll timestamps should be zero")
	}

	ctx, cancel := context.WithTimeout(context.Background(), settleDelay+200*time.Millisecond)
	defer cancel()
	if err := b.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	m = b.GetMetrics()
	if m.StatusPolls != 1 {
		t.Errorf("StatusPolls = %d, want 1", m.StatusPolls)
	}
	if m.StatisticsPolls != 1 {
		t.Errorf("StatisticsPolls = %d, want 1", m.StatisticsPolls)
	}
	if want := uint64(1 + 15 + 12 + 28 + 33); m.MessagesPublished != want {
		t.Errorf("MessagesPublished = %d, want %d", m.MessagesPublished, want)
	}
	if !m.LastStatusPoll.Equal(testStamp) {
		t.Errorf("LastStatusPoll = %v, want %v", m.LastStatusPoll, testStamp)
	}
	if !m.LastStatisticsPoll.Equal(testStamp) {
		t.Errorf("LastStatisticsPoll = %v, want %v", m.LastStatisticsPoll, testStamp)
	}
}
