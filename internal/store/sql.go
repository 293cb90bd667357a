package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/polystore/polystore/internal/domain"
)

// SQLStore implements domain.Store using database/sql.
// Works with both SQLite and PostgreSQL drivers. Entities are stored as
// canonical JSON documents in a single table keyed by (entity_type, id).
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore creates a relational store based on configuration.
func NewSQLStore(cfg domain.StoreConfig) (*SQLStore, error) {
	db, err := OpenSQL(cfg)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// OpenSQL opens a database/sql handle for the configured driver and applies
// pool settings. Shared with the SQL sync log, which keeps its own handle.
func OpenSQL(cfg domain.StoreConfig) (*sql.DB, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}

func (s *SQLStore) migrate() error {
	if _, err := s.db.Exec(entitiesSchema); err != nil {
		return err
	}
	return nil
}

// Get retrieves a document by id.
func (s *SQLStore) Get(ctx context.Context, entityType, id string) ([]byte, error) {
	if err := validateKey(entityType, id); err != nil {
		return nil, err
	}

	query := `SELECT doc FROM entities WHERE entity_type = ? AND id = ?`

	var doc string
	err := s.db.QueryRowContext(ctx, s.rebind(query), entityType, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return []byte(doc), nil
}

// Insert stores a new document.
func (s *SQLStore) Insert(ctx context.Context, entityType, id string, doc []byte) error {
	if err := validateKey(entityType, id); err != nil {
		return err
	}

	exists, err := s.Exists(ctx, entityType, id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, entityType, id)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO entities (entity_type, id, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, s.rebind(query), entityType, id, string(doc), now, now)
	return err
}

// Update replaces an existing document.
func (s *SQLStore) Update(ctx context.Context, entityType, id string, doc []byte) error {
	if err := validateKey(entityType, id); err != nil {
		return err
	}

	query := `
		UPDATE entities
		SET doc = ?, updated_at = ?
		WHERE entity_type = ? AND id = ?
	`
	result, err := s.db.ExecContext(ctx, s.rebind(query), string(doc), time.Now().UTC(), entityType, id)
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

// Upsert stores the document regardless of prior existence.
func (s *SQLStore) Upsert(ctx context.Context, entityType, id string, doc []byte) error {
	if err := validateKey(entityType, id); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO entities (entity_type, id, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, id) DO UPDATE SET
			doc = excluded.doc,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query), entityType, id, string(doc), now, now)
	return err
}

// Delete removes a document. Absent documents are not an error.
func (s *SQLStore) Delete(ctx context.Context, entityType, id string) (bool, error) {
	if err := validateKey(entityType, id); err != nil {
		return false, err
	}

	query := `DELETE FROM entities WHERE entity_type = ? AND id = ?`
	result, err := s.db.ExecContext(ctx, s.rebind(query), entityType, id)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Exists reports whether a document is present.
func (s *SQLStore) Exists(ctx context.Context, entityType, id string) (bool, error) {
	if err := validateKey(entityType, id); err != nil {
		return false, err
	}

	query := `SELECT 1 FROM entities WHERE entity_type = ? AND id = ?`

	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(query), entityType, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns a page of documents ordered by id.
func (s *SQLStore) List(ctx context.Context, entityType string, offset, limit int) ([]domain.Document, error) {
	if entityType == "" {
		return nil, fmt.Errorf("%w: entityType is required", ErrInvalidInput)
	}
	offset, limit = normalizePage(offset, limit)

	query := `
		SELECT id, doc FROM entities
		WHERE entity_type = ?
		ORDER BY id
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), entityType, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, domain.Document{ID: id, Data: []byte(doc)})
	}
	return docs, rows.Err()
}

// IDs returns a page of ids ordered by id.
func (s *SQLStore) IDs(ctx context.Context, entityType string, offset, limit int) ([]string, error) {
	if entityType == "" {
		return nil, fmt.Errorf("%w: entityType is required", ErrInvalidInput)
	}
	offset, limit = normalizePage(offset, limit)

	query := `
		SELECT id FROM entities
		WHERE entity_type = ?
		ORDER BY id
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), entityType, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of documents for an entity type.
func (s *SQLStore) Count(ctx context.Context, entityType string) (int64, error) {
	if entityType == "" {
		return 0, fmt.Errorf("%w: entityType is required", ErrInvalidInput)
	}

	query := `SELECT COUNT(*) FROM entities WHERE entity_type = ?`

	var count int64
	if err := s.db.QueryRowContext(ctx, s.rebind(query), entityType).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	return rebind(s.driver, query)
}

func rebind(driver, query string) string {
	if driver != "postgres" {
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
