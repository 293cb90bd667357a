// Package cache provides caching implementations for polystore.
package cache

import (
	"fmt"

	"github.com/polystore/polystore/internal/domain"
)

// New creates a new cache based on configuration.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCache(cfg.LocalMaxSize), nil
	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// Key builds the namespaced cache key for an entity.
func Key(entityType, id string) string {
	return "polyglot:" + entityType + ":" + id
}
