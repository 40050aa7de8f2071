package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/e3dc"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/history"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// settleDelay is the pause between broker connect and the first
	// retained publish, so the LWT registration and session setup
	// complete before the initial burst.
	settleDelay = 500 * time.Millisecond

	// minSleep is the shortest pause between scheduler wakeups.
	minSleep = 100 * time.Millisecond
)

// Bridge polls a device on two cadences and publishes the readings as
// retained MQTT messages: live status on a fast interval, daily
// statistics and per-pack battery detail on a slow one. Optionally it
// archives every published record to a local store and mirrors the
// values into a time series database.
//
// Construct with New, then call Run. Run owns the polling loop; all
// other methods are safe to call concurrently with it.
type Bridge struct {
	device DeviceClient
	mqtt   MQTTClient

	publisher *Publisher

	statusInterval     time.Duration
	statisticsInterval time.Duration

	archive          SnapshotArchive // May be nil (optional)
	archiveRetention time.Duration
	mirror           TelemetryMirror // May be nil (optional)

	// Statistics (atomic)
	statusPolls        atomic.Uint64
	statisticsPolls    atomic.Uint64
	messagesPublished  atomic.Uint64
	archiveErrors      atomic.Uint64
	lastStatusPoll     atomic.Int64 // Unix timestamp
	lastStatisticsPoll atomic.Int64 // Unix timestamp

	// Broker connection loss, reported by the MQTT client's callback
	connLost chan error

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// DeviceClient is the interface for device polling operations.
// This allows mocking in tests; *e3dc.Client satisfies it.
type DeviceClient interface {
	// DeviceID returns the stable identifier used in topic paths and
	// database tags.
	DeviceID() string

	// Batteries returns the packs found during discovery.
	Batteries() []e3dc.BatteryInfo

	// GetStatus reads a live power snapshot.
	GetStatus(ctx context.Context) (*e3dc.Status, error)

	// GetSystemInfo reads the static system description.
	GetSystemInfo(ctx context.Context) (*e3dc.SystemInfo, error)

	// GetBatteryData reads one pack including its DCB children.
	GetBatteryData(ctx context.Context, battery e3dc.BatteryInfo) (*e3dc.BatteryData, error)

	// GetDailyStatistics reads today's accumulated totals.
	GetDailyStatistics(ctx context.Context, statInterval time.Duration) (*e3dc.DailyStatistics, error)

	// IsConnected returns true if the device connection is up.
	IsConnected() bool
}

// MQTTClient is the interface for broker operations.
// This allows mocking in tests; *mqtt.Client satisfies it.
type MQTTClient interface {
	// PublishRetained sends a retained message at QoS 1.
	PublishRetained(topic string, payload []byte) error

	// PublishOnline publishes the availability state.
	PublishOnline(online bool) error

	// Topics returns the topic builder for this client's prefix.
	Topics() mqtt.Topics

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// SnapshotArchive persists published records locally.
// It is optional; if nil, the bridge operates without archiving.
// *history.Archive satisfies it.
type SnapshotArchive interface {
	// Append stores one record under a kind label.
	Append(ctx context.Context, kind string, recordedAt time.Time, record any) error

	// Prune deletes records older than the retention window.
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// TelemetryMirror duplicates published values into a time series
// database. It is optional; if nil, the bridge publishes to MQTT only.
// *influxdb.Client satisfies it.
type TelemetryMirror interface {
	WriteStatus(deviceID string, fields map[string]any, ts time.Time)
	WriteBattery(deviceID string, batteryIndex uint64, fields map[string]any, ts time.Time)
	WriteDCB(deviceID string, batteryIndex, dcbIndex uint64, fields map[string]any, ts time.Time)
	WriteDailyStatistics(deviceID string, fields map[string]any, ts time.Time)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Bridge.
type Options struct {
	// Device is the polled device client. Required.
	Device DeviceClient

	// MQTT is the broker client publishes go through. Required.
	MQTT MQTTClient

	// StatusInterval is the live status cadence. Required, positive.
	StatusInterval time.Duration

	// StatisticsInterval is the daily statistics and battery detail
	// cadence. Required, positive.
	StatisticsInterval time.Duration

	// Archive persists published records locally. Optional.
	Archive SnapshotArchive

	// ArchiveRetention bounds how long archived records are kept.
	// Zero disables pruning.
	ArchiveRetention time.Duration

	// Mirror duplicates published values into a time series database.
	// Optional.
	Mirror TelemetryMirror

	// Logger receives operational log output. Optional.
	Logger Logger
}

// New creates a bridge instance. Call Run to begin polling.
func New(opts Options) (*Bridge, error) {
	if opts.Device == nil {
		return nil, fmt.Errorf("device client is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.StatusInterval <= 0 {
		return nil, fmt.Errorf("status interval must be positive, got %v", opts.StatusInterval)
	}
	if opts.StatisticsInterval <= 0 {
		return nil, fmt.Errorf("statistics interval must be positive, got %v", opts.StatisticsInterval)
	}

	return &Bridge{
		device:             opts.Device,
		mqtt:               opts.MQTT,
		publisher:          NewPublisher(opts.MQTT),
		statusInterval:     opts.StatusInterval,
		statisticsInterval: opts.StatisticsInterval,
		archive:            opts.Archive, // May be nil (optional)
		archiveRetention:   opts.ArchiveRetention,
		mirror:             opts.Mirror, // May be nil (optional)
		connLost:           make(chan error, 1),
		logger:             opts.Logger,
	}, nil
}

// ConnectionLost reports a dropped broker connection to the bridge.
// Wire it to the MQTT client's connection-lost callback. The running
// loop turns the report into a fatal error so the process exits and
// the supervisor restarts it with a fresh session and LWT.
//
// Safe to call from any goroutine; repeat reports before the loop
// reacts are dropped.
func (b *Bridge) ConnectionLost(err error) {
	select {
	case b.connLost <- err:
	default:
	}
}

// Run publishes the availability state and the system info document,
// then polls both cadences until ctx is cancelled or a fatal error
// occurs.
//
// Both cadences fire immediately on entry, then align to wall-clock
// multiples of their interval. Device read and publish errors are
// fatal: the supervisor restart path re-establishes both connections
// cleanly, which beats publishing stale retained values from a
// half-broken session.
//
// Returns nil on context cancellation, an error otherwise.
func (b *Bridge) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-b.connLost:
		return fmt.Errorf("broker connection lost: %w", err)
	case <-time.After(settleDelay):
	}

	if err := b.mqtt.PublishOnline(true); err != nil {
		return fmt.Errorf("publishing online state: %w", err)
	}

	if err := b.publishSystemInfo(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	b.logInfo("bridge started",
		"device_id", b.device.DeviceID(),
		"status_interval", b.statusInterval,
		"statistics_interval", b.statisticsInterval)

	now := time.Now()
	nextStatus := now
	nextStatistics := now

	for {
		now = time.Now()

		if !now.Before(nextStatus) {
			nextStatus = nextFire(now, b.statusInterval)
			if err := b.pollStatus(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}

		if !now.Before(nextStatistics) {
			nextStatistics = nextFire(now, b.statisticsInterval)
			if err := b.pollStatistics(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}

		next := nextStatus
		if nextStatistics.Before(next) {
			next = nextStatistics
		}
		sleep := time.Until(next)
		if sleep < minSleep {
			sleep = minSleep
		}

		select {
		case <-ctx.Done():
			return nil
		case err := <-b.connLost:
			return fmt.Errorf("broker connection lost: %w", err)
		case <-time.After(sleep):
		}
	}
}

// nextFire returns the next wall-clock-aligned multiple of interval
// strictly after now. With a 30s interval, polls land at :00 and :30
// regardless of when the process started.
func nextFire(now time.Time, interval time.Duration) time.Time {
	rem := time.Duration(now.UnixNano() % int64(interval))
	return now.Add(interval - rem)
}

// publishSystemInfo reads the system description and publishes it as
// the retained info document.
func (b *Bridge) publishSystemInfo(ctx context.Context) error {
	info, err := b.device.GetSystemInfo(ctx)
	if err != nil {
		return fmt.Errorf("reading system info: %w", err)
	}

	record := NewSystemInfoRecord(info)
	if err := b.publisher.PublishInfo(&record); err != nil {
		return err
	}
	b.messagesPublished.Add(1)

	b.logInfo("system info published",
		"model", record.Model,
		"serial", record.Serial,
		"release", record.Release)
	return nil
}

// pollStatus reads one live status snapshot, publishes its changed
// fields, and feeds the archive and mirror.
func (b *Bridge) pollStatus(ctx context.Context) error {
	status, err := b.device.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("polling status: %w", err)
	}

	record := NewStatusRecord(status)
	published, err := b.publisher.PublishStatus(&record)
	if err != nil {
		return err
	}

	b.statusPolls.Add(1)
	b.messagesPublished.Add(uint64(published))
	b.lastStatusPoll.Store(record.Time.Unix())

	b.archiveSnapshot(ctx, history.KindStatus, record.Time, &record)
	if b.mirror != nil {
		b.mirror.WriteStatus(b.device.DeviceID(), influxFields(record.fields()), record.Time)
	}

	b.logDebug("status published",
		"changed", published,
		"state_of_charge", record.StateOfCharge,
		"solar_production", record.SolarProduction)
	return nil
}

// pollStatistics reads the daily totals and every pack's detail,
// publishes the changed fields, and feeds the archive and mirror.
// Daily totals publish before battery detail.
func (b *Bridge) pollStatistics(ctx context.Context) error {
	stats, err := b.device.GetDailyStatistics(ctx, b.statisticsInterval)
	if err != nil {
		return fmt.Errorf("polling daily statistics: %w", err)
	}

	daily := NewDailyRecord(stats)
	published, err := b.publisher.PublishDailyStatistics(&daily)
	if err != nil {
		return err
	}

	deviceID := b.device.DeviceID()
	b.archiveSnapshot(ctx, history.KindDaily, daily.Time, &daily)
	if b.mirror != nil {
		b.mirror.WriteDailyStatistics(deviceID, influxFields(daily.fields()), daily.Time)
	}

	batteries := b.device.Batteries()
	records := make([]BatteryRecord, 0, len(batteries))
	for _, info := range batteries {
		data, err := b.device.GetBatteryData(ctx, info)
		if err != nil {
			return fmt.Errorf("polling battery %d: %w", info.Index, err)
		}
		records = append(records, NewBatteryRecord(data))
	}

	n, err := b.publisher.PublishBatteries(records)
	published += n
	if err != nil {
		return err
	}

	for i := range records {
		record := &records[i]
		b.archiveSnapshot(ctx, history.KindBattery, record.Time, record)
		if b.mirror != nil {
			b.mirror.WriteBattery(deviceID, record.Index, influxFields(record.fields()), record.Time)
			for j := range record.DCBs {
				dcb := &record.DCBs[j]
				b.mirror.WriteDCB(deviceID, record.Index, dcb.Index, influxFields(dcb.fields()), record.Time)
			}
		}
	}

	b.statisticsPolls.Add(1)
	b.messagesPublished.Add(uint64(published))
	b.lastStatisticsPoll.Store(daily.Time.Unix())

	b.pruneArchive(ctx)

	b.logDebug("statistics published",
		"changed", published,
		"batteries", len(records))
	return nil
}

// archiveSnapshot appends one record to the local archive. Archive
// failures are counted and logged but never interrupt publishing.
func (b *Bridge) archiveSnapshot(ctx context.Context, kind string, recordedAt time.Time, record any) {
	if b.archive == nil {
		return
	}
	if err := b.archive.Append(ctx, kind, recordedAt, record); err != nil {
		b.archiveErrors.Add(1)
		b.logWarn("archive append failed", "kind", kind, "error", err)
	}
}

// pruneArchive deletes archived records past the retention window.
// Runs on the statistics cadence; failures are counted and logged.
func (b *Bridge) pruneArchive(ctx context.Context) {
	if b.archive == nil || b.archiveRetention <= 0 {
		return
	}
	deleted, err := b.archive.Prune(ctx, b.archiveRetention)
	if err != nil {
		b.archiveErrors.Add(1)
		b.logWarn("archive prune failed", "error", err)
		return
	}
	if deleted > 0 {
		b.logDebug("archive pruned", "deleted", deleted)
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning message if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
