// Package database provides SQLite connectivity for the telemetry archive.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Connection pooling and lifecycle management
//   - Health checks for the readiness endpoint
//
// Schema ownership lives with the consumer: the history package creates
// and maintains its own tables with idempotent DDL. This package only
// hands out a configured connection.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Performance Characteristics:
//   - WAL mode allows concurrent reads during writes
//   - Busy timeout prevents lock contention errors
//   - Single-writer pool matches SQLite's locking model
//
// Usage:
//
//	db, err := database.Open(cfg.Database.Path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package database
