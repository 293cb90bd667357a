package domain

import (
	"context"
	"time"
)

// SyncOperation is the mutation a sync log entry records.
type SyncOperation string

const (
	OpInsert SyncOperation = "insert"
	OpUpdate SyncOperation = "update"
	OpDelete SyncOperation = "delete"
)

// SyncStatus is the lifecycle state of a sync log entry.
//
// Transitions: Pending -> Synced | Failed; Failed -> Failed (retry) |
// Compensated. Entries are immutable once Synced or Compensated.
type SyncStatus string

const (
	SyncPending     SyncStatus = "pending"
	SyncSynced      SyncStatus = "synced"
	SyncFailed      SyncStatus = "failed"
	SyncCompensated SyncStatus = "compensated"
)

// SyncLogEntry is the audit record of one cross-backend synchronization
// attempt. The orchestrator that created an entry drives its whole
// lifecycle; concurrent writers to one entry are not expected.
type SyncLogEntry struct {
	ID            string        `json:"id"`
	EntityID      string        `json:"entityId"`
	EntityType    string        `json:"entityType"`
	Operation     SyncOperation `json:"operation"`
	Status        SyncStatus    `json:"status"`
	Source        Target        `json:"source"`
	Destination   Target        `json:"destination"`
	CreatedAt     time.Time     `json:"createdAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
	RetryCount    int           `json:"retryCount"`
	MaxRetries    int           `json:"maxRetries"`
	ErrorMessage  string        `json:"errorMessage,omitempty"`
	ErrorDetails  string        `json:"errorDetails,omitempty"`
	Payload       []byte        `json:"payload,omitempty"`
	CorrelationID string        `json:"correlationId,omitempty"`

	CompensationAttempted bool `json:"compensationAttempted"`
	CompensationSucceeded bool `json:"compensationSucceeded"`

	DurationMs int64 `json:"durationMs"`
}

// CanRetry reports whether the entry is eligible for another attempt.
func (e *SyncLogEntry) CanRetry() bool {
	return e.Status == SyncFailed && e.RetryCount < e.MaxRetries
}

// MarkSynced finalizes the entry as successfully synchronized.
func (e *SyncLogEntry) MarkSynced(elapsed time.Duration) {
	now := time.Now().UTC()
	e.Status = SyncSynced
	e.CompletedAt = &now
	e.DurationMs = elapsed.Milliseconds()
	e.ErrorMessage = ""
	e.ErrorDetails = ""
}

// MarkFailed records a failed attempt. The entry stays retryable until
// RetryCount reaches MaxRetries.
func (e *SyncLogEntry) MarkFailed(err error, elapsed time.Duration) {
	now := time.Now().UTC()
	e.Status = SyncFailed
	e.CompletedAt = &now
	e.DurationMs = elapsed.Milliseconds()
	if err != nil {
		e.ErrorMessage = err.Error()
		e.ErrorDetails = err.Error()
	}
}

// MarkCompensated finalizes the entry after a compensation attempt.
func (e *SyncLogEntry) MarkCompensated(succeeded bool) {
	now := time.Now().UTC()
	e.Status = SyncCompensated
	e.CompletedAt = &now
	e.CompensationAttempted = true
	e.CompensationSucceeded = succeeded
}

// SyncLog is the append-only audit store for sync log entries.
type SyncLog interface {
	// Append persists a new entry.
	Append(ctx context.Context, entry *SyncLogEntry) error

	// Update rewrites an existing entry by id.
	Update(ctx context.Context, entry *SyncLogEntry) error

	// ByEntity returns the most recent entries for one entity, newest first.
	ByEntity(ctx context.Context, entityID string, limit int) ([]*SyncLogEntry, error)

	// Pending returns entries still awaiting an outcome, oldest first.
	Pending(ctx context.Context, limit int) ([]*SyncLogEntry, error)

	// Failed returns failed entries, oldest first.
	Failed(ctx context.Context, limit int) ([]*SyncLogEntry, error)

	// Purge removes finalized entries created before the cutoff and returns
	// how many were removed.
	Purge(ctx context.Context, olderThan time.Time) (int64, error)

	// Lifecycle
	Close() error
}
