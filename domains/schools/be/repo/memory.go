package repo

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/schoolhub/domains/schools/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and local runs.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]service.School
	bySlug map[string]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]service.School), bySlug: make(map[string]uuid.UUID)}
}

func (r *MemoryRepository) Create(ctx context.Context, s service.School) (service.School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySlug[s.Slug]; exists {
		return service.School{}, service.ErrConflictSlug
	}
	r.byID[s.ID] = s
	r.bySlug[s.Slug] = s.ID
	return s, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.School, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return service.School{}, service.ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return service.ErrNotFound
	}
	s.IsActive = active
	r.byID[id] = s
	return nil
}

func (r *MemoryRepository) ListActiveIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.byID))
	for id, s := range r.byID {
		if s.IsActive && bytes.Compare(id[:], after[:]) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

var _ service.Repository = (*MemoryRepository)(nil)
