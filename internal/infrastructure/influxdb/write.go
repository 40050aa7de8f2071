package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names for bridge telemetry. They mirror the MQTT topic
// families so a Grafana panel and a broker subscription read alike.
const (
	measurementStatus  = "status"
	measurementBattery = "battery"
	measurementDCB     = "battery_dcb"
	measurementDaily   = "status_sums"
)

// WriteStatus records a live status reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: The bridge's device identifier (e.g., "S10E-720012345678")
//   - fields: Field name to value, as published on the status topics
//   - ts: The device-reported timestamp of the reading
//
// Example:
//
//	client.WriteStatus(deviceID, map[string]any{
//	    "solarProduction":  4521.0,
//	    "houseConsumption": 3321.0,
//	}, status.Timestamp)
func (c *Client) WriteStatus(deviceID string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementStatus,
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteBattery records a battery pack reading.
//
// Parameters:
//   - deviceID: The bridge's device identifier
//   - batteryIndex: Pack index, tagged so multi-pack systems separate cleanly
//   - fields: Field name to value, as published on the battery topics
//   - ts: The device-reported timestamp of the reading
func (c *Client) WriteBattery(deviceID string, batteryIndex uint64, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementBattery,
		map[string]string{
			"device_id": deviceID,
			"battery":   strconv.FormatUint(batteryIndex, 10),
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteDCB records a battery module (DCB) reading.
//
// Parameters:
//   - deviceID: The bridge's device identifier
//   - batteryIndex: Pack index the module belongs to
//   - dcbIndex: Module index within the pack
//   - fields: Field name to value, as published on the dcb topics
//   - ts: The device-reported timestamp of the reading
func (c *Client) WriteDCB(deviceID string, batteryIndex, dcbIndex uint64, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementDCB,
		map[string]string{
			"device_id": deviceID,
			"battery":   strconv.FormatUint(batteryIndex, 10),
			"dcb":       strconv.FormatUint(dcbIndex, 10),
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteDailyStatistics records a daily statistics reading.
//
// Parameters:
//   - deviceID: The bridge's device identifier
//   - fields: Field name to value, as published on the status_sums topics
//   - ts: The device-reported timestamp of the reading
func (c *Client) WriteDailyStatistics(deviceID string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementDaily,
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., device-reported time).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
