// Package bridge implements the polling loop at the heart of the E3DC
// MQTT bridge.
//
// The bridge reads telemetry from an E3DC home power station and
// republishes it as retained MQTT messages, one topic per field, so any
// subscriber sees the full current state the moment it connects.
//
// # Architecture
//
// The bridge sits between the device client and the broker client and
// optionally feeds two sinks:
//
//	┌────────────┐   RSCP    ┌─────────────────┐   MQTT    ┌────────┐
//	│    E3DC    │◄─────────►│     Bridge      │──────────►│ Broker │
//	│   device   │           │   (this pkg)    │           └────────┘
//	└────────────┘           └───┬─────────┬───┘
//	                             │         │
//	                        ┌────▼───┐ ┌───▼──────┐
//	                        │ SQLite │ │ InfluxDB │
//	                        │archive │ │  mirror  │
//	                        └────────┘ └──────────┘
//
// # Key Responsibilities
//
//   - Poll live status on a fast cadence and daily statistics plus
//     per-pack battery detail on a slow one
//   - Align both cadences to wall-clock multiples of their interval
//   - Publish only the fields whose values changed since the previous
//     reading of the same kind
//   - Publish the availability state and the one-shot system info
//     document on startup
//   - Archive published records locally and mirror them into InfluxDB
//     when those sinks are configured
//
// # Scheduling
//
// Both cadences fire immediately when Run starts, then land on
// wall-clock-aligned boundaries: a 30s status interval polls at :00
// and :30 of every minute regardless of when the process started, so
// restarts do not drift the series.
//
// # Failure Model
//
// Device read and broker publish errors are fatal to Run. The process
// exits and its supervisor restarts it, which re-establishes both
// connections and replays the availability topic through the broker's
// LWT mechanism. Archive and mirror failures are counted and logged
// but never interrupt publishing.
//
// # Thread Safety
//
// Run owns the polling loop and the Publisher state. ConnectionLost,
// GetMetrics, and SetLogger are safe to call from other goroutines
// while Run is active.
package bridge
