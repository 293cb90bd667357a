package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/polystore/polystore/internal/domain"
)

// MemoryStore is a thread-safe in-memory Store. Used for tests and for
// zero-dependency single-node setups.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // entityType -> id -> doc
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string][]byte),
	}
}

// Get retrieves a document by id.
func (s *MemoryStore) Get(ctx context.Context, entityType, id string) ([]byte, error) {
	if err := validateKey(entityType, id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.data[entityType][id]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

// Insert stores a new document.
func (s *MemoryStore) Insert(ctx context.Context, entityType, id string, doc []byte) error {
	if err := validateKey(entityType, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[entityType][id]; ok {
		return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, entityType, id)
	}
	s.put(entityType, id, doc)
	return nil
}

// Update replaces an existing document.
func (s *MemoryStore) Update(ctx context.Context, entityType, id string, doc []byte) error {
	if err := validateKey(entityType, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[entityType][id]; !ok {
		return ErrNotFound
	}
	s.put(entityType, id, doc)
	return nil
}

// Upsert stores the document regardless of prior existence.
func (s *MemoryStore) Upsert(ctx context.Context, entityType, id string, doc []byte) error {
	if err := validateKey(entityType, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(entityType, id, doc)
	return nil
}

// Delete removes a document. Absent documents are not an error.
func (s *MemoryStore) Delete(ctx context.Context, entityType, id string) (bool, error) {
	if err := validateKey(entityType, id); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[entityType][id]; !ok {
		return false, nil
	}
	delete(s.data[entityType], id)
	return true, nil
}

// Exists reports whether a document is present.
func (s *MemoryStore) Exists(ctx context.Context, entityType, id string) (bool, error) {
	if err := validateKey(entityType, id); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[entityType][id]
	return ok, nil
}

// List returns a page of documents ordered by id.
func (s *MemoryStore) List(ctx context.Context, entityType string, offset, limit int) ([]domain.Document, error) {
	ids, err := s.IDs(ctx, entityType, offset, limit)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		doc := s.data[entityType][id]
		out := make([]byte, len(doc))
		copy(out, doc)
		docs = append(docs, domain.Document{ID: id, Data: out})
	}
	return docs, nil
}

// IDs returns a page of ids ordered by id.
func (s *MemoryStore) IDs(ctx context.Context, entityType string, offset, limit int) ([]string, error) {
	if entityType == "" {
		return nil, fmt.Errorf("%w: entityType is required", ErrInvalidInput)
	}
	offset, limit = normalizePage(offset, limit)

	s.mu.RLock()
	all := make([]string, 0, len(s.data[entityType]))
	for id := range s.data[entityType] {
		all = append(all, id)
	}
	s.mu.RUnlock()

	sort.Strings(all)

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Count returns the number of documents for an entity type.
func (s *MemoryStore) Count(ctx context.Context, entityType string) (int64, error) {
	if entityType == "" {
		return 0, fmt.Errorf("%w: entityType is required", ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data[entityType])), nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close clears the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]map[string][]byte)
	return nil
}

// put assumes the write lock is held.
func (s *MemoryStore) put(entityType, id string, doc []byte) {
	if s.data[entityType] == nil {
		s.data[entityType] = make(map[string][]byte)
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	s.data[entityType][id] = out
}
