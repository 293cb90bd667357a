package cache

import (
	"context"
	"testing"
	"time"

	"github.com/polystore/polystore/internal/domain"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(3)
	defer c.Close()

	t.Run("GetMiss", func(t *testing.T) {
		val, err := c.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for miss, got %s", val)
		}
	})

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "a", []byte("1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := c.Get(ctx, "a")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "1" {
			t.Errorf("expected 1, got %s", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := c.Delete(ctx, "a"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		val, _ := c.Get(ctx, "a")
		if val != nil {
			t.Errorf("expected nil after delete, got %s", val)
		}
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		if err := c.Set(ctx, "short", []byte("x"), 10*time.Millisecond); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		time.Sleep(20 * time.Millisecond)

		val, _ := c.Get(ctx, "short")
		if val != nil {
			t.Errorf("expected expired value to be gone, got %s", val)
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		for _, k := range []string{"k1", "k2", "k3", "k4"} {
			if err := c.Set(ctx, k, []byte(k), time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
		}

		size, capacity := c.Stats()
		if size > capacity {
			t.Errorf("size %d exceeds capacity %d", size, capacity)
		}

		// Oldest key should have been evicted
		val, _ := c.Get(ctx, "k1")
		if val != nil {
			t.Errorf("expected k1 evicted, got %s", val)
		}
	})
}

func TestCacheKeyNamespace(t *testing.T) {
	if got := Key("User", "u1"); got != "polyglot:User:u1" {
		t.Errorf("unexpected key: %s", got)
	}
}

func TestUnsupportedCacheType(t *testing.T) {
	_, err := New(domain.CacheConfig{Type: "memcached"})
	if err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
