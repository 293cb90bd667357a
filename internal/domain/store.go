package domain

import (
	"context"
	"time"
)

// Store is the uniform CRUD surface over one concrete storage engine.
// Documents are canonical JSON, keyed by (entityType, id). Implementations
// are auto-committing: a mutation is durable when the call returns.
type Store interface {
	// Get returns the stored document. Returns ErrNotFound (from the
	// implementing package) when absent.
	Get(ctx context.Context, entityType, id string) ([]byte, error)

	// Insert stores a new document. Fails if the key already exists.
	Insert(ctx context.Context, entityType, id string, doc []byte) error

	// Update replaces an existing document. Fails with not-found if absent.
	Update(ctx context.Context, entityType, id string, doc []byte) error

	// Upsert stores the document regardless of prior existence.
	Upsert(ctx context.Context, entityType, id string, doc []byte) error

	// Delete removes a document. Removing an absent document is not an
	// error; the bool reports whether anything was removed.
	Delete(ctx context.Context, entityType, id string) (bool, error)

	// Exists reports whether a document is present.
	Exists(ctx context.Context, entityType, id string) (bool, error)

	// List returns a page of documents for an entity type, ordered by id.
	List(ctx context.Context, entityType string, offset, limit int) ([]Document, error)

	// IDs returns a page of ids for an entity type, ordered by id.
	IDs(ctx context.Context, entityType string, offset, limit int) ([]string, error)

	// Count returns the number of documents for an entity type.
	Count(ctx context.Context, entityType string) (int64, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// Document is one stored record as seen by batch scans.
type Document struct {
	ID   string
	Data []byte
}

// StoreConfig holds configuration for backend store initialization.
type StoreConfig struct {
	// Driver is the storage engine: "memory", "sqlite", "postgres" or "mongo".
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDB"`
	PostgresSSLMode  string `yaml:"postgresSSLMode"`

	// MongoDB specific
	MongoURI        string `yaml:"mongoURI"`
	MongoDatabase   string `yaml:"mongoDatabase"`
	MongoCollection string `yaml:"mongoCollection"`

	// Connection pool settings (SQL drivers)
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
