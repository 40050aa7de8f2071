// Package mqtt provides MQTT client connectivity for the E3DC bridge.
//
// This package manages:
//   - Connection to the broker with a device-derived client ID
//   - Retained telemetry publishing with QoS guarantees
//   - Last Will and Testament (LWT) on the availability topic
//   - Connection health monitoring
//
// # Architecture
//
// The bridge is a pure publisher. Readings flow from the device through
// the poller onto retained topics; consumers (Home Assistant, Node-RED,
// dashboards) subscribe on the broker side.
//
//	E3DC device → bridge poller → MQTT broker → subscribers
//
// Automatic reconnection is deliberately disabled. A lost broker
// session aborts the bridge, the LWT flips the retained online flag to
// "false", and the process supervisor restarts the bridge from a clean
// slate. That keeps the availability topic honest: it is "true" only
// while a live session exists.
//
// # Security Considerations
//
//   - Use an ssl:// broker URI for TLS transport
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Throughput: a full publish cycle is a few hundred topics at most
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, deviceID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.PublishOnline(true)
//	client.PublishRetained(client.Topics().Status("rsoc"), []byte("87"))
package mqtt
