package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/database"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

// Snapshot kinds accepted by the archive. The bridge appends one row per
// published snapshot of these kinds.
const (
	KindStatus  = "status"
	KindDaily   = "daily"
	KindBattery = "battery"
)

// schema is applied on every startup. All statements are idempotent, so the
// archive needs no migration machinery.
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_kind_recorded_at
	ON snapshots (kind, recorded_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_recorded_at
	ON snapshots (recorded_at);
`

// Archive is a SQLite-backed append-only store of published snapshots.
//
// Each row holds one snapshot as JSON, keyed by kind and the device-reported
// timestamp of the reading. Rows are pruned by age, never updated.
type Archive struct {
	db *database.DB
}

// New creates the archive and applies its schema.
//
// Parameters:
//   - ctx: Context for the schema statements
//   - db: Open database handle
//
// Returns:
//   - *Archive: Archive ready for use
//   - error: nil on success, otherwise the schema error
func New(ctx context.Context, db *database.DB) (*Archive, error) {
	if db == nil {
		return nil, fmt.Errorf("history: database handle is required")
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("applying archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Append inserts one snapshot row.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - kind: Snapshot kind (KindStatus, KindDaily, KindBattery)
//   - recordedAt: Device-reported timestamp of the reading
//   - record: Snapshot to persist, marshalled to JSON
//
// Returns:
//   - error: nil on success, otherwise the marshal or insert error
func (a *Archive) Append(ctx context.Context, kind string, recordedAt time.Time, record any) error {
	if kind == "" {
		return fmt.Errorf("snapshot kind is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	_, err = a.db.ExecContext(ctx,
		"INSERT INTO snapshots (kind, recorded_at, payload) VALUES (?, ?, ?)",
		kind,
		recordedAt.UTC().Format(time.RFC3339),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	return nil
}

// Entry is one archived snapshot row.
type Entry struct {
	ID         int64
	Kind       string
	RecordedAt time.Time
	Payload    json.RawMessage
}

// Recent returns the newest snapshots of a kind, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - kind: Snapshot kind to query
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Entry: Entries ordered by recorded_at DESC
//   - error: nil on success, otherwise the underlying query error
func (a *Archive) Recent(ctx context.Context, kind string, limit int) ([]Entry, error) {
	if kind == "" {
		return nil, fmt.Errorf("snapshot kind is required")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, kind, recorded_at, payload
		 FROM snapshots
		 WHERE kind = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		kind,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var recordedAt string
		var payload string

		if err := rows.Scan(&entry.ID, &entry.Kind, &recordedAt, &payload); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}

		timestamp, err := time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		entry.RecordedAt = timestamp
		entry.Payload = json.RawMessage(payload)

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}

	return entries, nil
}

// Prune deletes snapshots older than the given retention, across all kinds.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - retention: Age to retain (rows older than now-retention are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (a *Archive) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}

	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	result, err := a.db.ExecContext(ctx,
		"DELETE FROM snapshots WHERE recorded_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting snapshots: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}
