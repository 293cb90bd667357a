package synclog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polystore/polystore/internal/domain"
)

// MemoryLog is a thread-safe in-memory sync log. Used for tests and
// zero-dependency single-node setups.
type MemoryLog struct {
	mu      sync.RWMutex
	entries map[string]*domain.SyncLogEntry
}

// NewMemoryLog creates an empty in-memory sync log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		entries: make(map[string]*domain.SyncLogEntry),
	}
}

// Append persists a new entry.
func (l *MemoryLog) Append(ctx context.Context, entry *domain.SyncLogEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("%w: entry with id is required", ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	copied := *entry
	l.entries[entry.ID] = &copied
	return nil
}

// Update rewrites an existing entry by id.
func (l *MemoryLog) Update(ctx context.Context, entry *domain.SyncLogEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("%w: entry with id is required", ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[entry.ID]; !ok {
		return ErrNotFound
	}
	copied := *entry
	l.entries[entry.ID] = &copied
	return nil
}

// ByEntity returns the most recent entries for one entity, newest first.
func (l *MemoryLog) ByEntity(ctx context.Context, entityID string, limit int) ([]*domain.SyncLogEntry, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entityID is required", ErrInvalidInput)
	}

	entries := l.filter(func(e *domain.SyncLogEntry) bool {
		return e.EntityID == entityID
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return clip(entries, limit), nil
}

// Pending returns entries still awaiting an outcome, oldest first.
func (l *MemoryLog) Pending(ctx context.Context, limit int) ([]*domain.SyncLogEntry, error) {
	return l.byStatus(domain.SyncPending, limit), nil
}

// Failed returns failed entries, oldest first.
func (l *MemoryLog) Failed(ctx context.Context, limit int) ([]*domain.SyncLogEntry, error) {
	return l.byStatus(domain.SyncFailed, limit), nil
}

// Purge removes finalized entries created before the cutoff.
func (l *MemoryLog) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int64
	for id, e := range l.entries {
		finalized := e.Status == domain.SyncSynced || e.Status == domain.SyncCompensated
		if finalized && e.CreatedAt.Before(olderThan) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Close clears the log.
func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*domain.SyncLogEntry)
	return nil
}

func (l *MemoryLog) byStatus(status domain.SyncStatus, limit int) []*domain.SyncLogEntry {
	entries := l.filter(func(e *domain.SyncLogEntry) bool {
		return e.Status == status
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return clip(entries, limit)
}

func (l *MemoryLog) filter(keep func(*domain.SyncLogEntry) bool) []*domain.SyncLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.SyncLogEntry
	for _, e := range l.entries {
		if keep(e) {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out
}

func clip(entries []*domain.SyncLogEntry, limit int) []*domain.SyncLogEntry {
	limit = normalizeLimit(limit)
	if len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
