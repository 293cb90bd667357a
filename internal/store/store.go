// Package store provides the backend store adapters.
package store

import (
	"errors"
	"fmt"

	"github.com/polystore/polystore/internal/domain"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// New creates a backend store based on configuration.
func New(cfg domain.StoreConfig) (domain.Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "postgres":
		return NewSQLStore(cfg)
	case "mongo":
		return NewMongoStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

func validateKey(entityType, id string) error {
	if entityType == "" {
		return fmt.Errorf("%w: entityType is required", ErrInvalidInput)
	}
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	return nil
}

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}
	return offset, limit
}
