// Package logging provides structured logging for the E3DC MQTT bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting bridge", "device", deviceID)
//	logger.Error("poll failed", "error", err)
//
// # Security
//
// Never log secrets: the device password, the RSCP key, MQTT
// credentials, and InfluxDB tokens must not appear in log output.
// The config package redacts them in its String method; keep it
// that way when adding new log sites.
package logging
