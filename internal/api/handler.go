package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/polystore/polystore/internal/domain"
	"github.com/polystore/polystore/internal/polyglot"
	"github.com/polystore/polystore/internal/resolver"
)

// Handler holds dependencies for the operator API handlers. It works on the
// type-agnostic surfaces: the sync log, the backfill service, and the raw
// backend adapters.
type Handler struct {
	backends   polyglot.Backends
	cache      domain.Cache
	syncLog    domain.SyncLog
	backfiller *polyglot.Backfiller
	resolver   *resolver.Resolver
	version    string
}

// NewHandler creates the operator API handler.
func NewHandler(backends polyglot.Backends, cache domain.Cache, log domain.SyncLog, backfiller *polyglot.Backfiller, res *resolver.Resolver, version string) *Handler {
	return &Handler{
		backends:   backends,
		cache:      cache,
		syncLog:    log,
		backfiller: backfiller,
		resolver:   res,
		version:    version,
	}
}

// Health returns server health status: healthy when every configured
// collaborator answers its ping, degraded otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	backendStatus := make(map[string]string, 2)

	for _, t := range []domain.Target{domain.TargetDocument, domain.TargetRelational} {
		s := h.backends.For(t)
		if s == nil {
			backendStatus[string(t)] = "unconfigured"
			continue
		}
		if err := s.Ping(ctx); err != nil {
			backendStatus[string(t)] = "unreachable"
			status = "degraded"
		} else {
			backendStatus[string(t)] = "healthy"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"version":  h.version,
		"backends": backendStatus,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetSyncLogs handles GET /sync-logs?entity_id={id}&limit={n}.
func (h *Handler) GetSyncLogs(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entity_id query parameter is required",
		})
		return
	}

	logs, err := h.syncLog.ByEntity(r.Context(), entityID, queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entityId": entityID,
		"count":    len(logs),
		"logs":     logs,
	})
}

// GetPendingSyncs handles GET /sync-logs/pending?limit={n}.
func (h *Handler) GetPendingSyncs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.syncLog.Pending(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(logs),
		"logs":  logs,
	})
}

// GetConsistency handles GET /consistency/{type}/{id}: validates one entity
// across both backends.
func (h *Handler) GetConsistency(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "type")
	id := chi.URLParam(r, "id")

	primaryTarget := h.resolver.TargetFor(entityType, nil)
	primary := h.backends.For(primaryTarget)
	if primary == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "primary backend not configured",
		})
		return
	}

	validator := polyglot.NewValidator(primaryTarget, primary, h.backends.For(primaryTarget.Other()))
	result := validator.Validate(r.Context(), entityType, id)
	writeJSON(w, http.StatusOK, result)
}

// GetCounts handles GET /counts/{type}: independent per-backend counts.
func (h *Handler) GetCounts(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "type")

	counts, err := h.backfiller.EntityCounts(r.Context(), entityType)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entityType": entityType,
		"counts":     counts,
	})
}

// BackfillRequest is the request body for the backfill endpoints. Source and
// destination default to the entity type's primary backend and its opposite.
type BackfillRequest struct {
	Source      domain.Target `json:"source,omitempty"`
	Destination domain.Target `json:"destination,omitempty"`
	BatchSize   int           `json:"batchSize,omitempty"`
}

func (h *Handler) backfillRequest(r *http.Request, entityType string) (BackfillRequest, bool) {
	var req BackfillRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, false
		}
	}

	primary := h.resolver.TargetFor(entityType, nil)
	if req.Source == "" {
		req.Source = primary
	}
	if req.Destination == "" {
		req.Destination = req.Source.Other()
	}
	if !req.Source.Valid() || !req.Destination.Valid() || req.Source == req.Destination {
		return req, false
	}
	return req, true
}

// Backfill handles POST /backfill/{type}: full reconciliation of one entity
// type from source to destination.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "type")

	req, ok := h.backfillRequest(r, entityType)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid backfill request: source and destination must be distinct valid targets",
		})
		return
	}

	summary, err := h.backfiller.BackfillAll(r.Context(), entityType, req.Source, req.Destination, req.BatchSize)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// BackfillInconsistent handles POST /backfill/{type}/inconsistent: targeted
// repair of entities the consistency scan flags.
func (h *Handler) BackfillInconsistent(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "type")

	req, ok := h.backfillRequest(r, entityType)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid backfill request: source and destination must be distinct valid targets",
		})
		return
	}

	summary, err := h.backfiller.BackfillInconsistent(r.Context(), entityType, req.Source, req.Destination, req.BatchSize)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// RetrySyncs handles POST /sync-retries?max_retries={n}: replays retryable
// failed sync log entries.
func (h *Handler) RetrySyncs(w http.ResponseWriter, r *http.Request) {
	maxRetries := 0
	if raw := r.URL.Query().Get("max_retries"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "max_retries must be a non-negative integer",
			})
			return
		}
		maxRetries = n
	}

	summary, err := h.backfiller.RetryFailedSyncs(r.Context(), maxRetries)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
