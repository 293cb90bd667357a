package polyglot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polystore/polystore/internal/codec"
	"github.com/polystore/polystore/internal/domain"
	"github.com/polystore/polystore/internal/resolver"
	"github.com/polystore/polystore/internal/store"
)

// defaultBatchSize bounds backend scans when the caller passes no batch size.
const defaultBatchSize = 100

// RetrySummary aggregates one retryFailedSyncs run.
type RetrySummary struct {
	Scanned   int `json:"scanned"`
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Backfiller is the out-of-band reconciliation service: bulk copies between
// backends with insert/update/skip/fail accounting, inconsistency scans, and
// replay of failed sync log entries. The explicitly passed source backend is
// authoritative; on conflict the target copy is overwritten.
type Backfiller struct {
	document   domain.Store
	relational domain.Store
	syncLog    domain.SyncLog
	bus        domain.EventBus
	resolver   *resolver.Resolver
}

// NewBackfiller builds the reconciliation service over the two backend
// adapters. The sync log and bus may be nil.
func NewBackfiller(document, relational domain.Store, log domain.SyncLog, bus domain.EventBus, res *resolver.Resolver) *Backfiller {
	return &Backfiller{
		document:   document,
		relational: relational,
		syncLog:    log,
		bus:        bus,
		resolver:   res,
	}
}

func (b *Backfiller) storeFor(t domain.Target) domain.Store {
	if t == domain.TargetDocument {
		return b.document
	}
	return b.relational
}

func (b *Backfiller) pair(source, target domain.Target) (domain.Store, domain.Store, error) {
	src := b.storeFor(source)
	if src == nil {
		return nil, nil, fmt.Errorf("%s backend not configured", source)
	}
	tgt := b.storeFor(target)
	if tgt == nil {
		return nil, nil, fmt.Errorf("%s backend not configured", target)
	}
	return src, tgt, nil
}

// BackfillAll streams every entity of a type from source and reconciles it
// into target. Per-entity failures are recorded without aborting the batch;
// cancellation is checked between entities.
func (b *Backfiller) BackfillAll(ctx context.Context, entityType string, source, target domain.Target, batchSize int) (*domain.BackfillSummary, error) {
	src, tgt, err := b.pair(source, target)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	summary := &domain.BackfillSummary{
		EntityType:  entityType,
		Source:      source,
		Destination: target,
	}
	start := time.Now()

	offset := 0
	for {
		docs, err := src.List(ctx, entityType, offset, batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source backend: %w", err)
		}
		for _, d := range docs {
			if err := ctx.Err(); err != nil {
				summary.TotalDurationMs = time.Since(start).Milliseconds()
				return summary, err
			}
			summary.Record(b.reconcile(ctx, tgt, entityType, d.ID, d.Data))
		}
		if len(docs) < batchSize {
			break
		}
		offset += len(docs)
	}

	summary.TotalDurationMs = time.Since(start).Milliseconds()
	b.publishSummary(ctx, summary)
	slog.Info("backfill completed",
		"entity_type", entityType,
		"source", string(source),
		"destination", string(target),
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

// BackfillEntity reconciles one entity from source into target. A source
// read failure is recorded as a failed result, not returned as an error.
func (b *Backfiller) BackfillEntity(ctx context.Context, entityType, id string, source, target domain.Target) (domain.BackfillResult, error) {
	src, tgt, err := b.pair(source, target)
	if err != nil {
		return domain.BackfillResult{}, err
	}

	doc, err := src.Get(ctx, entityType, id)
	if err != nil {
		msg := fmt.Sprintf("source read failed: %v", err)
		if errors.Is(err, store.ErrNotFound) {
			msg = "entity not found in source backend"
		}
		return domain.BackfillResult{
			EntityID:     id,
			Operation:    domain.BackfillFailed,
			ErrorMessage: msg,
		}, nil
	}

	return b.reconcile(ctx, tgt, entityType, id, doc), nil
}

// BackfillEntities runs the per-entity reconciliation over an explicit id
// set, used for targeted repair.
func (b *Backfiller) BackfillEntities(ctx context.Context, entityType string, ids []string, source, target domain.Target) (*domain.BackfillSummary, error) {
	if _, _, err := b.pair(source, target); err != nil {
		return nil, err
	}

	summary := &domain.BackfillSummary{
		EntityType:  entityType,
		Source:      source,
		Destination: target,
	}
	start := time.Now()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			summary.TotalDurationMs = time.Since(start).Milliseconds()
			return summary, err
		}
		result, err := b.BackfillEntity(ctx, entityType, id, source, target)
		if err != nil {
			return nil, err
		}
		summary.Record(result)
	}

	summary.TotalDurationMs = time.Since(start).Milliseconds()
	b.publishSummary(ctx, summary)
	return summary, nil
}

// FindInconsistent scans every id of a type in its primary backend and
// validates each against the secondary, collecting every non-consistent
// result. O(n) backend calls; meant for background jobs.
func (b *Backfiller) FindInconsistent(ctx context.Context, entityType string, batchSize int) ([]domain.ConsistencyResult, error) {
	primaryTarget := b.resolver.TargetFor(entityType, nil)
	primary := b.storeFor(primaryTarget)
	if primary == nil {
		return nil, fmt.Errorf("%s backend not configured", primaryTarget)
	}
	validator := NewValidator(primaryTarget, primary, b.storeFor(primaryTarget.Other()))

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var inconsistent []domain.ConsistencyResult
	offset := 0
	for {
		ids, err := primary.IDs(ctx, entityType, offset, batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to scan primary backend: %w", err)
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return inconsistent, err
			}
			if result := validator.Validate(ctx, entityType, id); !result.IsConsistent() {
				inconsistent = append(inconsistent, result)
			}
		}
		if len(ids) < batchSize {
			return inconsistent, nil
		}
		offset += len(ids)
	}
}

// BackfillInconsistent finds every inconsistent entity of a type and repairs
// it from source, overwriting the target copy.
func (b *Backfiller) BackfillInconsistent(ctx context.Context, entityType string, source, target domain.Target, batchSize int) (*domain.BackfillSummary, error) {
	results, err := b.FindInconsistent(ctx, entityType, batchSize)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.EntityID)
	}
	return b.BackfillEntities(ctx, entityType, ids, source, target)
}

// RetryFailedSyncs replays retryable failed sync log entries against their
// destination backend. Entries at or past maxRetries stay failed for manual
// intervention.
func (b *Backfiller) RetryFailedSyncs(ctx context.Context, maxRetries int) (*RetrySummary, error) {
	if b.syncLog == nil {
		return nil, errors.New("sync log not configured")
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}

	entries, err := b.syncLog.Failed(ctx, defaultBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync log: %w", err)
	}

	summary := &RetrySummary{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Scanned++
		if !entry.CanRetry() || entry.RetryCount >= maxRetries {
			continue
		}

		entry.RetryCount++
		summary.Retried++

		tgt := b.storeFor(entry.Destination)
		if tgt == nil {
			entry.MarkFailed(fmt.Errorf("%s backend not configured", entry.Destination), 0)
			summary.Failed++
			b.updateEntry(ctx, entry)
			continue
		}

		start := time.Now()
		err := applySync(ctx, tgt, entry.EntityType, entry.Operation, entry.EntityID, entry.Payload)
		if err != nil {
			entry.MarkFailed(err, time.Since(start))
			summary.Failed++
			slog.Warn("sync retry failed",
				"sync_log_id", entry.ID,
				"entity_type", entry.EntityType,
				"entity_id", entry.EntityID,
				"retry_count", entry.RetryCount,
				"error", err,
			)
		} else {
			entry.MarkSynced(time.Since(start))
			summary.Succeeded++
		}
		b.updateEntry(ctx, entry)
	}
	return summary, nil
}

// EntityCounts returns independent per-backend counts for one entity type,
// used for coarse drift detection.
func (b *Backfiller) EntityCounts(ctx context.Context, entityType string) (map[domain.Target]int64, error) {
	counts := make(map[domain.Target]int64, 2)
	for _, t := range []domain.Target{domain.TargetDocument, domain.TargetRelational} {
		s := b.storeFor(t)
		if s == nil {
			continue
		}
		n, err := s.Count(ctx, entityType)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s backend: %w", t, err)
		}
		counts[t] = n
	}
	return counts, nil
}

// reconcile applies one authoritative source document to the target backend:
// insert when absent, update when different, skip when canonically equal.
func (b *Backfiller) reconcile(ctx context.Context, tgt domain.Store, entityType, id string, doc []byte) domain.BackfillResult {
	start := time.Now()
	result := domain.BackfillResult{EntityID: id}

	existing, err := tgt.Get(ctx, entityType, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if ierr := tgt.Insert(ctx, entityType, id, doc); ierr != nil {
			result.Operation = domain.BackfillFailed
			result.ErrorMessage = ierr.Error()
		} else {
			result.Success = true
			result.Operation = domain.BackfillInsert
		}
	case err != nil:
		result.Operation = domain.BackfillFailed
		result.ErrorMessage = err.Error()
	default:
		equal, cerr := codec.Equal(existing, doc)
		switch {
		case cerr != nil:
			result.Operation = domain.BackfillFailed
			result.ErrorMessage = cerr.Error()
		case equal:
			result.Success = true
			result.Operation = domain.BackfillSkip
		default:
			if uerr := tgt.Update(ctx, entityType, id, doc); uerr != nil {
				result.Operation = domain.BackfillFailed
				result.ErrorMessage = uerr.Error()
			} else {
				result.Success = true
				result.Operation = domain.BackfillUpdate
			}
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

func (b *Backfiller) updateEntry(ctx context.Context, entry *domain.SyncLogEntry) {
	if err := b.syncLog.Update(ctx, entry); err != nil {
		slog.Error("failed to update sync log entry", "sync_log_id", entry.ID, "error", err)
	}
}

func (b *Backfiller) publishSummary(ctx context.Context, summary *domain.BackfillSummary) {
	if b.bus == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := b.bus.Publish(ctx, domain.TopicBackfillCompleted, payload); err != nil {
		slog.Warn("failed to publish backfill event", "error", err)
	}
}
