// Package synclog persists the cross-backend synchronization audit trail.
package synclog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/polystore/polystore/internal/domain"
)

var (
	ErrNotFound     = errors.New("sync log entry not found")
	ErrInvalidInput = errors.New("invalid input")
)

// New creates a sync log store based on configuration.
func New(cfg domain.SyncLogConfig) (domain.SyncLog, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryLog(), nil
	case "sqlite", "postgres":
		return NewSQLLog(cfg)
	default:
		return nil, fmt.Errorf("unsupported sync log driver: %s", cfg.Driver)
	}
}

// NewEntry builds a pending entry for a dual-write attempt.
func NewEntry(entityType, entityID string, op domain.SyncOperation, source, destination domain.Target, payload []byte, maxRetries int) *domain.SyncLogEntry {
	return &domain.SyncLogEntry{
		ID:            uuid.New().String(),
		EntityID:      entityID,
		EntityType:    entityType,
		Operation:     op,
		Status:        domain.SyncPending,
		Source:        source,
		Destination:   destination,
		CreatedAt:     time.Now().UTC(),
		MaxRetries:    maxRetries,
		Payload:       payload,
		CorrelationID: uuid.New().String(),
	}
}
