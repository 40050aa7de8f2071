// Package influxdb provides long-term telemetry storage for the bridge.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, measurement writers, and health monitoring. MQTT topics
// carry only the latest value of each field; InfluxDB keeps the history.
//
// # Purpose
//
// This package stores the readings the poller collects:
//   - Live power flow and autarky (status measurement)
//   - Battery pack and module data (battery, battery_dcb measurements)
//   - Daily energy statistics (status_sums measurement)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "home",
//	    Bucket:  "e3dc",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // Run without long-term storage
//	}
//	defer client.Close()
//
//	client.WriteStatus(deviceID, fields, status.Timestamp)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors surface through the
// callback registered with SetOnError, wrapped in ErrWriteFailed.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config settings (batch_size,
// flush_interval). Points carry the device-reported timestamp, so a
// delayed flush never skews the series.
package influxdb
