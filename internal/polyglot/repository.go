// Package polyglot implements the dual-write orchestrator: a generic
// repository that routes an entity type to its primary backend, serves
// cache-aside reads from it, and in dual-write mode replays every mutation
// against the secondary backend under the resilience pipeline, with sync
// logging and optional compensation.
package polyglot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polystore/polystore/internal/cache"
	"github.com/polystore/polystore/internal/codec"
	"github.com/polystore/polystore/internal/domain"
	"github.com/polystore/polystore/internal/resilience"
	"github.com/polystore/polystore/internal/resolver"
	"github.com/polystore/polystore/internal/synclog"
)

var tracer = otel.Tracer("polystore-polyglot")

var (
	// ErrSecondaryUnconfigured is returned by operations that explicitly
	// address the secondary backend when none is wired.
	ErrSecondaryUnconfigured = errors.New("secondary backend not configured")
)

// listBatchSize is the page size used by full scans of a backend.
const listBatchSize = 200

// Backends holds the two concrete store adapters by target. Either may be
// nil when a deployment runs a single backend.
type Backends struct {
	Document   domain.Store
	Relational domain.Store
}

// For returns the store adapter for a target, or nil if unconfigured.
func (b Backends) For(t domain.Target) domain.Store {
	if t == domain.TargetDocument {
		return b.Document
	}
	return b.Relational
}

// Repository is the dual-write orchestrator for one entity type. Reads
// always come from the resolved primary backend; in dual-write mode every
// mutation is first committed to the primary, then replayed against the
// secondary under the resilience pipeline. Secondary failures never surface
// to callers except when an enabled compensation itself fails.
type Repository[T domain.Entity] struct {
	typeName      string
	mode          domain.Mode
	primaryTarget domain.Target
	primary       domain.Store
	secondary     domain.Store

	cache          domain.Cache
	cachingEnabled bool
	cacheTTL       time.Duration

	syncLog     domain.SyncLog
	syncLogging bool
	maxRetries  int
	compensate  bool

	bus      domain.EventBus
	pipeline *resilience.Pipeline
}

// NewRepository builds the orchestrator for entity type T. The primary
// backend is resolved from configuration, T's own Routed declaration, or the
// default; a missing adapter for the resolved target is a construction
// error. The sync log, cache and bus may be nil, in which case the matching
// concern is skipped.
func NewRepository[T domain.Entity](
	cfg domain.PolyglotConfig,
	res *resolver.Resolver,
	backends Backends,
	c domain.Cache,
	log domain.SyncLog,
	pipe *resilience.Pipeline,
	bus domain.EventBus,
) (*Repository[T], error) {
	typeName := typeNameOf[T]()

	var prototype T
	target := res.TargetFor(typeName, prototype)

	primary := backends.For(target)
	if primary == nil {
		return nil, fmt.Errorf("no %s backend configured for entity type %s", target, typeName)
	}

	var secondary domain.Store
	if cfg.Mode == domain.ModeDualWrite {
		secondary = backends.For(target.Other())
	}

	ttl := time.Duration(cfg.CacheExpirationSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	maxRetries := cfg.SyncMaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	return &Repository[T]{
		typeName:       typeName,
		mode:           cfg.Mode,
		primaryTarget:  target,
		primary:        primary,
		secondary:      secondary,
		cache:          c,
		cachingEnabled: cfg.EnableCaching && c != nil,
		cacheTTL:       ttl,
		syncLog:        log,
		syncLogging:    cfg.EnableSyncLogging && log != nil,
		maxRetries:     maxRetries,
		compensate:     cfg.EnableCompensation,
		bus:            bus,
		pipeline:       pipe,
	}, nil
}

// TypeName returns the entity type name this repository serves.
func (r *Repository[T]) TypeName() string {
	return r.typeName
}

// PrimaryTarget returns the resolved primary backend.
func (r *Repository[T]) PrimaryTarget() domain.Target {
	return r.primaryTarget
}

// GetByID reads one entity from the primary backend through the cache.
func (r *Repository[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T

	if !r.cachingEnabled {
		return r.GetByIDNoCache(ctx, id)
	}

	key := cache.Key(r.typeName, id)
	if data, err := r.cache.Get(ctx, key); err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
	} else if data != nil {
		var entity T
		if err := json.Unmarshal(data, &entity); err == nil {
			return entity, nil
		}
		slog.Warn("discarding undecodable cache entry", "key", key)
	}

	data, err := r.primary.Get(ctx, r.typeName, id)
	if err != nil {
		return zero, err
	}

	var entity T
	if err := json.Unmarshal(data, &entity); err != nil {
		return zero, fmt.Errorf("failed to decode %s %s: %w", r.typeName, id, err)
	}

	if err := r.cache.Set(ctx, key, data, r.cacheTTL); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
	return entity, nil
}

// GetByIDNoCache reads one entity from the primary backend, bypassing the
// cache entirely.
func (r *Repository[T]) GetByIDNoCache(ctx context.Context, id string) (T, error) {
	var zero T

	data, err := r.primary.Get(ctx, r.typeName, id)
	if err != nil {
		return zero, err
	}

	var entity T
	if err := json.Unmarshal(data, &entity); err != nil {
		return zero, fmt.Errorf("failed to decode %s %s: %w", r.typeName, id, err)
	}
	return entity, nil
}

// GetFromBackend reads one entity from an explicitly chosen backend. This is
// a diagnostics and backfill operation; normal reads never touch the
// secondary.
func (r *Repository[T]) GetFromBackend(ctx context.Context, id string, role domain.BackendRole) (T, error) {
	var zero T

	s := r.primary
	if role == domain.RoleSecondary {
		if r.secondary == nil {
			return zero, ErrSecondaryUnconfigured
		}
		s = r.secondary
	}

	data, err := s.Get(ctx, r.typeName, id)
	if err != nil {
		return zero, err
	}

	var entity T
	if err := json.Unmarshal(data, &entity); err != nil {
		return zero, fmt.Errorf("failed to decode %s %s: %w", r.typeName, id, err)
	}
	return entity, nil
}

// GetAll returns every entity of this type from the primary backend.
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	var out []T
	err := r.ForEach(ctx, func(e T) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Find returns the entities matching the predicate.
func (r *Repository[T]) Find(ctx context.Context, predicate func(T) bool) ([]T, error) {
	var out []T
	err := r.ForEach(ctx, func(e T) error {
		if predicate(e) {
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ForEach streams every entity of this type from the primary backend in id
// order, invoking fn per entity. Cancellation is checked between entities.
func (r *Repository[T]) ForEach(ctx context.Context, fn func(T) error) error {
	offset := 0
	for {
		docs, err := r.primary.List(ctx, r.typeName, offset, listBatchSize)
		if err != nil {
			return fmt.Errorf("failed to scan %s entities: %w", r.typeName, err)
		}
		for _, d := range docs {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entity T
			if err := json.Unmarshal(d.Data, &entity); err != nil {
				return fmt.Errorf("failed to decode %s %s: %w", r.typeName, d.ID, err)
			}
			if err := fn(entity); err != nil {
				return err
			}
		}
		if len(docs) < listBatchSize {
			return nil
		}
		offset += len(docs)
	}
}

// Add writes a new entity to the primary backend, then replays the insert
// against the secondary in dual-write mode. A primary failure propagates and
// makes no secondary attempt.
func (r *Repository[T]) Add(ctx context.Context, entity T) error {
	id := entity.EntityID()

	ctx, span := tracer.Start(ctx, "polyglot.add", trace.WithAttributes(
		attribute.String("entity_type", r.typeName),
		attribute.String("entity_id", id),
	))
	defer span.End()

	doc, err := codec.Canonical(entity)
	if err != nil {
		return err
	}

	if err := r.primary.Insert(ctx, r.typeName, id, doc); err != nil {
		return fmt.Errorf("primary insert failed: %w", err)
	}

	return r.syncSecondary(ctx, domain.OpInsert, id, doc)
}

// Update replaces an existing entity in the primary backend, invalidates its
// cache entry, then replays the update against the secondary.
func (r *Repository[T]) Update(ctx context.Context, entity T) error {
	id := entity.EntityID()

	ctx, span := tracer.Start(ctx, "polyglot.update", trace.WithAttributes(
		attribute.String("entity_type", r.typeName),
		attribute.String("entity_id", id),
	))
	defer span.End()

	doc, err := codec.Canonical(entity)
	if err != nil {
		return err
	}

	if err := r.primary.Update(ctx, r.typeName, id, doc); err != nil {
		return fmt.Errorf("primary update failed: %w", err)
	}
	r.invalidate(ctx, id)

	return r.syncSecondary(ctx, domain.OpUpdate, id, doc)
}

// Delete removes an entity from the primary backend, invalidates its cache
// entry, then replays the delete against the secondary. Deleting an absent
// entity is not an error; the bool reports whether the primary held it.
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "polyglot.delete", trace.WithAttributes(
		attribute.String("entity_type", r.typeName),
		attribute.String("entity_id", id),
	))
	defer span.End()

	removed, err := r.primary.Delete(ctx, r.typeName, id)
	if err != nil {
		return false, fmt.Errorf("primary delete failed: %w", err)
	}
	r.invalidate(ctx, id)

	if err := r.syncSecondary(ctx, domain.OpDelete, id, nil); err != nil {
		return removed, err
	}
	return removed, nil
}

// DeleteEntity removes the entity by its own id.
func (r *Repository[T]) DeleteEntity(ctx context.Context, entity T) (bool, error) {
	return r.Delete(ctx, entity.EntityID())
}

// Exists reports whether the primary backend holds the entity.
func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	return r.primary.Exists(ctx, r.typeName, id)
}

// Count returns the number of entities of this type in the primary backend.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	return r.primary.Count(ctx, r.typeName)
}

// PrimaryHealthy probes the primary backend. Never returns an error.
func (r *Repository[T]) PrimaryHealthy(ctx context.Context) bool {
	return r.primary.Ping(ctx) == nil
}

// SecondaryHealthy probes the secondary backend. An unconfigured secondary
// is unhealthy.
func (r *Repository[T]) SecondaryHealthy(ctx context.Context) bool {
	return r.secondary != nil && r.secondary.Ping(ctx) == nil
}

// syncSecondary replays one committed primary mutation against the
// secondary backend under the resilience pipeline, driving the sync log
// entry through its lifecycle. Returns an error only when an enabled
// compensation fails; every other secondary outcome is absorbed.
func (r *Repository[T]) syncSecondary(ctx context.Context, op domain.SyncOperation, id string, doc []byte) error {
	if r.mode != domain.ModeDualWrite || r.secondary == nil {
		return nil
	}

	entry := synclog.NewEntry(r.typeName, id, op, r.primaryTarget, r.primaryTarget.Other(), doc, r.maxRetries)
	r.appendLog(ctx, entry)

	// Independent copy so the two adapters never share a buffer.
	payload := append([]byte(nil), doc...)

	start := time.Now()
	err := r.pipeline.Execute(ctx, func(ctx context.Context) error {
		return applySync(ctx, r.secondary, r.typeName, op, id, payload)
	})
	if err == nil {
		entry.MarkSynced(time.Since(start))
		r.updateLog(ctx, entry)
		slog.Debug("secondary write synced",
			"entity_type", r.typeName,
			"entity_id", id,
			"operation", string(op),
			"duration_ms", entry.DurationMs,
		)
		return nil
	}

	entry.MarkFailed(err, time.Since(start))
	slog.Warn("secondary write failed",
		"entity_type", r.typeName,
		"entity_id", id,
		"operation", string(op),
		"error", err,
	)

	if r.compensate && op == domain.OpInsert {
		if _, derr := r.primary.Delete(ctx, r.typeName, id); derr != nil {
			entry.MarkCompensated(false)
			r.updateLog(ctx, entry)
			r.publish(ctx, domain.TopicSyncCompensated, entry)
			slog.Error("compensation failed, entity remains only in primary",
				"entity_type", r.typeName,
				"entity_id", id,
				"error", derr,
			)
			return fmt.Errorf("compensating delete failed: %w", derr)
		}
		r.invalidate(ctx, id)
		entry.MarkCompensated(true)
		r.updateLog(ctx, entry)
		r.publish(ctx, domain.TopicSyncCompensated, entry)
		slog.Warn("primary insert compensated after secondary failure",
			"entity_type", r.typeName,
			"entity_id", id,
		)
		return nil
	}

	r.updateLog(ctx, entry)
	r.publish(ctx, domain.TopicSyncFailed, entry)
	return nil
}

func (r *Repository[T]) invalidate(ctx context.Context, id string) {
	if !r.cachingEnabled {
		return
	}
	key := cache.Key(r.typeName, id)
	if err := r.cache.Delete(ctx, key); err != nil {
		slog.Warn("cache invalidation failed", "key", key, "error", err)
	}
}

func (r *Repository[T]) appendLog(ctx context.Context, entry *domain.SyncLogEntry) {
	if !r.syncLogging {
		return
	}
	if err := r.syncLog.Append(ctx, entry); err != nil {
		slog.Error("failed to append sync log entry",
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

func (r *Repository[T]) updateLog(ctx context.Context, entry *domain.SyncLogEntry) {
	if !r.syncLogging {
		return
	}
	if err := r.syncLog.Update(ctx, entry); err != nil {
		slog.Error("failed to update sync log entry",
			"sync_log_id", entry.ID,
			"error", err,
		)
	}
}

func (r *Repository[T]) publish(ctx context.Context, topic string, entry *domain.SyncLogEntry) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish sync event", "topic", topic, "error", err)
	}
}

// applySync applies one logged mutation to a backend. Inserts and updates
// are applied as upserts so replaying is idempotent; deleting an absent
// document counts as success.
func applySync(ctx context.Context, s domain.Store, entityType string, op domain.SyncOperation, id string, doc []byte) error {
	switch op {
	case domain.OpInsert, domain.OpUpdate:
		return s.Upsert(ctx, entityType, id, doc)
	case domain.OpDelete:
		_, err := s.Delete(ctx, entityType, id)
		return err
	default:
		return fmt.Errorf("unknown sync operation: %s", op)
	}
}

func typeNameOf[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
