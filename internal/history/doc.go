// Package history provides the optional SQLite snapshot archive.
//
// When the database is enabled, the bridge appends every published status,
// daily statistics and battery snapshot as a JSON row, keyed by kind and the
// device-reported timestamp. MQTT retains only the latest value per topic;
// the archive keeps a local, queryable trail without requiring InfluxDB.
//
// # Schema
//
// The archive owns a single table (snapshots) and applies its schema with
// idempotent DDL on startup. There is no migration chain.
//
// # Retention
//
// Rows older than the configured retention are deleted by Prune, which the
// bridge runs on the statistics cadence.
//
// # Usage
//
//	archive, err := history.New(ctx, db)
//	if err != nil {
//	    return err
//	}
//
//	if err := archive.Append(ctx, history.KindStatus, status.Time, record); err != nil {
//	    log.Warn("archive append failed", "error", err)
//	}
//
//	deleted, err := archive.Prune(ctx, cfg.Database.Retention.Std())
//
// Append failures are logged and do not stop publishing; the archive is a
// best-effort sink.
package history
