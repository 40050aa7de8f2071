// Package api implements the optional operations HTTP endpoint for the
// E3DC MQTT bridge.
//
// This package provides:
//   - GET /healthz: connection state and poll counters as JSON, for
//     supervisor and uptime probes
//   - GET /metrics: bridge counters as Prometheus series, collected on
//     scrape from the bridge's atomic snapshot
//   - Middleware stack (request ID, logging, recovery)
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Handlers never touch the device or the broker; they read the
// counters the polling loop maintains, so a slow scraper cannot stall
// publishing.
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
