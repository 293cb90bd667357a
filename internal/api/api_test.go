package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/polystore/polystore/internal/cache"
	"github.com/polystore/polystore/internal/domain"
	"github.com/polystore/polystore/internal/polyglot"
	"github.com/polystore/polystore/internal/resolver"
	"github.com/polystore/polystore/internal/store"
	"github.com/polystore/polystore/internal/synclog"
)

type testEnv struct {
	server     *Server
	relational domain.Store
	document   domain.Store
	log        domain.SyncLog
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	relational := store.NewMemoryStore()
	document := store.NewMemoryStore()
	log := synclog.NewMemoryLog()
	res := resolver.New(domain.PolyglotConfig{DefaultTarget: domain.TargetRelational})
	backends := polyglot.Backends{Document: document, Relational: relational}
	backfiller := polyglot.NewBackfiller(document, relational, log, nil, res)

	handler := NewHandler(backends, cache.NewMemoryCache(100), log, backfiller, res, "test")
	server := NewServer(domain.ServerConfig{Host: "127.0.0.1", Port: 0}, handler)

	return &testEnv{
		server:     server,
		relational: relational,
		document:   document,
		log:        log,
	}
}

func (e *testEnv) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", body["status"])
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected request id header")
	}
}

func TestReady(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSyncLogEndpoints(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	entry := synclog.NewEntry("account", "u1", domain.OpInsert,
		domain.TargetRelational, domain.TargetDocument, nil, 5)
	if err := env.log.Append(ctx, entry); err != nil {
		t.Fatal(err)
	}

	t.Run("ByEntity", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/sync-logs?entity_id=u1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["count"] != float64(1) {
			t.Errorf("expected 1 log entry, got %v", body["count"])
		}
	})

	t.Run("RequiresEntityID", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/sync-logs", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("Pending", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/sync-logs/pending?limit=10", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["count"] != float64(1) {
			t.Errorf("expected 1 pending entry, got %v", body["count"])
		}
	})
}

func TestConsistencyEndpoint(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	if err := env.relational.Insert(ctx, "account", "u1", []byte(`{"id":"u1"}`)); err != nil {
		t.Fatal(err)
	}

	rec := env.request(t, http.MethodGet, "/consistency/account/u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["status"] != string(domain.MissingInSecondary) {
		t.Errorf("expected missing_in_secondary, got %v", body["status"])
	}
}

func TestCountsEndpoint(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	if err := env.relational.Insert(ctx, "account", "u1", []byte(`{"id":"u1"}`)); err != nil {
		t.Fatal(err)
	}

	rec := env.request(t, http.MethodGet, "/counts/account", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	counts, ok := body["counts"].(map[string]any)
	if !ok {
		t.Fatalf("expected counts object, got %v", body)
	}
	if counts["relational"] != float64(1) || counts["document"] != float64(0) {
		t.Errorf("expected relational=1 document=0, got %v", counts)
	}
}

func TestBackfillEndpoints(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	if err := env.relational.Insert(ctx, "account", "u1", []byte(`{"id":"u1"}`)); err != nil {
		t.Fatal(err)
	}

	t.Run("DefaultsToPrimaryAsSource", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/backfill/account", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["inserted"] != float64(1) {
			t.Errorf("expected 1 insert, got %v", body)
		}

		if ok, _ := env.document.Exists(ctx, "account", "u1"); !ok {
			t.Error("expected document copy after backfill")
		}
	})

	t.Run("RejectsSameSourceAndDestination", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/backfill/account",
			`{"source":"relational","destination":"relational"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("Inconsistent", func(t *testing.T) {
		if err := env.relational.Insert(ctx, "account", "u2", []byte(`{"id":"u2"}`)); err != nil {
			t.Fatal(err)
		}

		rec := env.request(t, http.MethodPost, "/backfill/account/inconsistent", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["inserted"] != float64(1) {
			t.Errorf("expected 1 insert for drifted entity, got %v", body)
		}
	})
}

func TestRetrySyncsEndpoint(t *testing.T) {
	env := newTestServer(t)

	t.Run("InvalidMaxRetries", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/sync-retries?max_retries=nope", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("EmptyLog", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/sync-retries?max_retries=3", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["scanned"] != float64(0) {
			t.Errorf("expected empty scan, got %v", body)
		}
	})
}
