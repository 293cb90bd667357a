package synclog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/polystore/polystore/internal/domain"
	"github.com/polystore/polystore/internal/store"
)

const syncLogsSchema = `
CREATE TABLE IF NOT EXISTS sync_logs (
	id                     TEXT PRIMARY KEY,
	entity_id              TEXT NOT NULL,
	entity_type            TEXT NOT NULL,
	operation              TEXT NOT NULL,
	status                 TEXT NOT NULL,
	source                 TEXT NOT NULL,
	destination            TEXT NOT NULL,
	created_at             TIMESTAMP NOT NULL,
	completed_at           TIMESTAMP,
	retry_count            INTEGER NOT NULL DEFAULT 0,
	max_retries            INTEGER NOT NULL DEFAULT 0,
	error_message          TEXT NOT NULL DEFAULT '',
	error_details          TEXT NOT NULL DEFAULT '',
	payload                TEXT NOT NULL DEFAULT '',
	correlation_id         TEXT NOT NULL DEFAULT '',
	compensation_attempted INTEGER NOT NULL DEFAULT 0,
	compensation_succeeded INTEGER NOT NULL DEFAULT 0,
	duration_ms            INTEGER NOT NULL DEFAULT 0
)
`

const syncLogsStatusIndex = `
CREATE INDEX IF NOT EXISTS idx_sync_logs_status ON sync_logs (status, created_at)
`

const syncLogsEntityIndex = `
CREATE INDEX IF NOT EXISTS idx_sync_logs_entity ON sync_logs (entity_id, created_at)
`

const syncLogColumns = `
	id, entity_id, entity_type, operation, status, source, destination,
	created_at, completed_at, retry_count, max_retries,
	error_message, error_details, payload, correlation_id,
	compensation_attempted, compensation_succeeded, duration_ms
`

// SQLLog implements domain.SyncLog using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLLog struct {
	db     *sql.DB
	driver string
}

// NewSQLLog creates a SQL-backed sync log. It owns its own connection,
// independent of the backend store adapters.
func NewSQLLog(cfg domain.SyncLogConfig) (*SQLLog, error) {
	db, err := store.OpenSQL(domain.StoreConfig{
		Driver:           cfg.Driver,
		SQLitePath:       cfg.SQLitePath,
		PostgresHost:     cfg.PostgresHost,
		PostgresPort:     cfg.PostgresPort,
		PostgresUser:     cfg.PostgresUser,
		PostgresPassword: cfg.PostgresPassword,
		PostgresDB:       cfg.PostgresDB,
		PostgresSSLMode:  cfg.PostgresSSLMode,
	})
	if err != nil {
		return nil, err
	}

	l := &SQLLog{db: db, driver: cfg.Driver}

	for _, schema := range []string{syncLogsSchema, syncLogsStatusIndex, syncLogsEntityIndex} {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run sync log migrations: %w", err)
		}
	}

	return l, nil
}

// Append persists a new entry.
func (l *SQLLog) Append(ctx context.Context, entry *domain.SyncLogEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("%w: entry with id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO sync_logs (` + syncLogColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.ExecContext(ctx, l.rebind(query),
		entry.ID, entry.EntityID, entry.EntityType,
		string(entry.Operation), string(entry.Status),
		string(entry.Source), string(entry.Destination),
		entry.CreatedAt, entry.CompletedAt,
		entry.RetryCount, entry.MaxRetries,
		entry.ErrorMessage, entry.ErrorDetails,
		string(entry.Payload), entry.CorrelationID,
		boolToInt(entry.CompensationAttempted), boolToInt(entry.CompensationSucceeded),
		entry.DurationMs,
	)
	return err
}

// Update rewrites an existing entry by id.
func (l *SQLLog) Update(ctx context.Context, entry *domain.SyncLogEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("%w: entry with id is required", ErrInvalidInput)
	}

	query := `
		UPDATE sync_logs SET
			status = ?, completed_at = ?, retry_count = ?,
			error_message = ?, error_details = ?,
			compensation_attempted = ?, compensation_succeeded = ?,
			duration_ms = ?
		WHERE id = ?
	`
	result, err := l.db.ExecContext(ctx, l.rebind(query),
		string(entry.Status), entry.CompletedAt, entry.RetryCount,
		entry.ErrorMessage, entry.ErrorDetails,
		boolToInt(entry.CompensationAttempted), boolToInt(entry.CompensationSucceeded),
		entry.DurationMs,
		entry.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ByEntity returns the most recent entries for one entity, newest first.
func (l *SQLLog) ByEntity(ctx context.Context, entityID string, limit int) ([]*domain.SyncLogEntry, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entityID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + syncLogColumns + `
		FROM sync_logs
		WHERE entity_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	return l.queryEntries(ctx, query, entityID, normalizeLimit(limit))
}

// Pending returns entries still awaiting an outcome, oldest first.
func (l *SQLLog) Pending(ctx context.Context, limit int) ([]*domain.SyncLogEntry, error) {
	return l.byStatus(ctx, domain.SyncPending, limit)
}

// Failed returns failed entries, oldest first.
func (l *SQLLog) Failed(ctx context.Context, limit int) ([]*domain.SyncLogEntry, error) {
	return l.byStatus(ctx, domain.SyncFailed, limit)
}

func (l *SQLLog) byStatus(ctx context.Context, status domain.SyncStatus, limit int) ([]*domain.SyncLogEntry, error) {
	query := `
		SELECT ` + syncLogColumns + `
		FROM sync_logs
		WHERE status = ?
		ORDER BY created_at
		LIMIT ?
	`
	return l.queryEntries(ctx, query, string(status), normalizeLimit(limit))
}

// Purge removes finalized entries created before the cutoff.
func (l *SQLLog) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM sync_logs
		WHERE created_at < ? AND status IN (?, ?)
	`
	result, err := l.db.ExecContext(ctx, l.rebind(query),
		olderThan, string(domain.SyncSynced), string(domain.SyncCompensated))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (l *SQLLog) Close() error {
	return l.db.Close()
}

func (l *SQLLog) queryEntries(ctx context.Context, query string, args ...any) ([]*domain.SyncLogEntry, error) {
	rows, err := l.db.QueryContext(ctx, l.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.SyncLogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (*domain.SyncLogEntry, error) {
	var entry domain.SyncLogEntry
	var operation, status, source, destination, payload string
	var completedAt sql.NullTime
	var compAttempted, compSucceeded int

	if err := rows.Scan(
		&entry.ID, &entry.EntityID, &entry.EntityType,
		&operation, &status, &source, &destination,
		&entry.CreatedAt, &completedAt,
		&entry.RetryCount, &entry.MaxRetries,
		&entry.ErrorMessage, &entry.ErrorDetails,
		&payload, &entry.CorrelationID,
		&compAttempted, &compSucceeded,
		&entry.DurationMs,
	); err != nil {
		return nil, err
	}

	entry.Operation = domain.SyncOperation(operation)
	entry.Status = domain.SyncStatus(status)
	entry.Source = domain.Target(source)
	entry.Destination = domain.Target(destination)
	if payload != "" {
		entry.Payload = []byte(payload)
	}
	if completedAt.Valid {
		t := completedAt.Time
		entry.CompletedAt = &t
	}
	entry.CompensationAttempted = compAttempted == 1
	entry.CompensationSucceeded = compSucceeded == 1

	return &entry, nil
}

func (l *SQLLog) rebind(query string) string {
	if l.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
