package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/schoolhub/domains/schools/be/service"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
)

// PostgresRepository implements the school repository using the shared persistence layer.
type PostgresRepository struct {
	store *persistence.SchoolStore
}

// NewPostgresRepository constructs a repository backed by SchoolStore.
func NewPostgresRepository(store *persistence.SchoolStore) *PostgresRepository {
	if store == nil {
		panic("school store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, s service.School) (service.School, error) {
	rec, err := r.store.Create(ctx, persistence.SchoolRecord{
		SchoolID:     s.ID,
		Slug:         s.Slug,
		Name:         s.Name,
		IsActive:     s.IsActive,
		RegisteredAt: s.RegisteredAt,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return service.School{}, service.ErrConflictSlug
		}
		return service.School{}, err
	}
	return toServiceSchool(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.School, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.School{}, mapNotFound(err)
	}
	return toServiceSchool(rec), nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return mapNotFound(r.store.SetActive(ctx, id, active))
}

func (r *PostgresRepository) ListActiveIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	return r.store.ListActiveIDs(ctx, after, limit)
}

func toServiceSchool(rec persistence.SchoolRecord) service.School {
	return service.School{
		ID:           rec.SchoolID,
		Slug:         rec.Slug,
		Name:         rec.Name,
		IsActive:     rec.IsActive,
		RegisteredAt: rec.RegisteredAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
