package repo

import (
	"context"

	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
)

// Repository exposes persistence operations required by the plans service.
type Repository interface {
	List(ctx context.Context) ([]persistence.PlanRecord, error)
	GetByCode(ctx context.Context, code string) (persistence.PlanRecord, error)
	// UpsertAll writes every plan or none.
	UpsertAll(ctx context.Context, plans []persistence.PlanRecord) ([]persistence.PlanRecord, error)
}

type postgresRepository struct {
	db    *persistence.DB
	store *persistence.PlanStore
}

// NewPostgresRepository builds a Repository backed by the shared persistence layer.
func NewPostgresRepository(db *persistence.DB, store *persistence.PlanStore) Repository {
	if db == nil {
		panic("db is required")
	}
	if store == nil {
		panic("plan store is required")
	}
	return &postgresRepository{db: db, store: store}
}

func (r *postgresRepository) List(ctx context.Context) ([]persistence.PlanRecord, error) {
	return r.store.List(ctx)
}

func (r *postgresRepository) GetByCode(ctx context.Context, code string) (persistence.PlanRecord, error) {
	return r.store.GetByCode(ctx, code)
}

func (r *postgresRepository) UpsertAll(ctx context.Context, plans []persistence.PlanRecord) ([]persistence.PlanRecord, error) {
	out := make([]persistence.PlanRecord, 0, len(plans))
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		for _, plan := range plans {
			saved, err := r.store.Upsert(ctx, plan)
			if err != nil {
				return err
			}
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
