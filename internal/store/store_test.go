package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/polystore/polystore/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "polystore-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	s, err := NewSQLStore(domain.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	exerciseStore(t, s)
}

func exerciseStore(t *testing.T, s domain.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("InsertAndGet", func(t *testing.T) {
		doc := []byte(`{"id":"u1","name":"Alice"}`)
		if err := s.Insert(ctx, "User", "u1", doc); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		got, err := s.Get(ctx, "User", "u1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != string(doc) {
			t.Errorf("expected %s, got %s", doc, got)
		}
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		err := s.Insert(ctx, "User", "u1", []byte(`{"id":"u1"}`))
		if !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got: %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		doc := []byte(`{"id":"u1","name":"Bob"}`)
		if err := s.Update(ctx, "User", "u1", doc); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		got, err := s.Get(ctx, "User", "u1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != string(doc) {
			t.Errorf("expected %s, got %s", doc, got)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		err := s.Update(ctx, "User", "nope", []byte(`{}`))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		if err := s.Upsert(ctx, "User", "u2", []byte(`{"id":"u2"}`)); err != nil {
			t.Fatalf("Upsert insert failed: %v", err)
		}
		if err := s.Upsert(ctx, "User", "u2", []byte(`{"id":"u2","v":2}`)); err != nil {
			t.Fatalf("Upsert update failed: %v", err)
		}

		got, err := s.Get(ctx, "User", "u2")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `{"id":"u2","v":2}` {
			t.Errorf("unexpected doc: %s", got)
		}
	})

	t.Run("TypeIsolation", func(t *testing.T) {
		_, err := s.Get(ctx, "Order", "u1")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound across types, got: %v", err)
		}

		count, err := s.Count(ctx, "Order")
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 orders, got %d", count)
		}
	})

	t.Run("ExistsAndCount", func(t *testing.T) {
		ok, err := s.Exists(ctx, "User", "u1")
		if err != nil || !ok {
			t.Errorf("expected u1 to exist, ok=%v err=%v", ok, err)
		}
		ok, err = s.Exists(ctx, "User", "missing")
		if err != nil || ok {
			t.Errorf("expected missing to be absent, ok=%v err=%v", ok, err)
		}

		count, err := s.Count(ctx, "User")
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 users, got %d", count)
		}
	})

	t.Run("ListAndIDsPaged", func(t *testing.T) {
		for _, id := range []string{"u3", "u4", "u5"} {
			if err := s.Upsert(ctx, "User", id, []byte(`{"id":"`+id+`"}`)); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}
		}

		ids, err := s.IDs(ctx, "User", 0, 3)
		if err != nil {
			t.Fatalf("IDs failed: %v", err)
		}
		if len(ids) != 3 || ids[0] != "u1" || ids[2] != "u3" {
			t.Errorf("unexpected first page: %v", ids)
		}

		docs, err := s.List(ctx, "User", 3, 3)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(docs) != 2 || docs[0].ID != "u4" || docs[1].ID != "u5" {
			t.Errorf("unexpected second page: %v", docs)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		removed, err := s.Delete(ctx, "User", "u5")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if !removed {
			t.Error("expected delete to remove u5")
		}

		removed, err = s.Delete(ctx, "User", "u5")
		if err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
		if removed {
			t.Error("expected second delete to be a no-op")
		}
	})

	t.Run("RequiresKey", func(t *testing.T) {
		if _, err := s.Get(ctx, "", "u1"); err == nil {
			t.Error("expected error for empty entityType")
		}
		if err := s.Insert(ctx, "User", "", []byte(`{}`)); err == nil {
			t.Error("expected error for empty id")
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.StoreConfig{Driver: "cassandra"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT doc FROM entities WHERE id = ?", "SELECT doc FROM entities WHERE id = $1"},
		{"INSERT INTO entities (a, b) VALUES (?, ?)", "INSERT INTO entities (a, b) VALUES ($1, $2)"},
		{"SELECT COUNT(*) FROM entities", "SELECT COUNT(*) FROM entities"},
	}

	for _, tt := range tests {
		result := rebind("postgres", tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	if got := rebind("sqlite", "WHERE id = ?"); got != "WHERE id = ?" {
		t.Errorf("sqlite rebind should be a no-op, got %q", got)
	}
}
