package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/schoolhub/domains/limits/be/service"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
)

// PostgresRepository implements the limits repository over the shared stores.
type PostgresRepository struct {
	db            *persistence.DB
	schools       *persistence.SchoolStore
	subscriptions *persistence.SubscriptionStore
	resources     *persistence.ResourceStore
}

// NewPostgresRepository constructs a repository backed by the persistence layer.
func NewPostgresRepository(db *persistence.DB, schools *persistence.SchoolStore, subscriptions *persistence.SubscriptionStore, resources *persistence.ResourceStore) *PostgresRepository {
	if db == nil {
		panic("db is required")
	}
	if schools == nil || subscriptions == nil || resources == nil {
		panic("school, subscription and resource stores are required")
	}
	return &PostgresRepository{db: db, schools: schools, subscriptions: subscriptions, resources: resources}
}

func (r *PostgresRepository) ActiveSubscription(ctx context.Context, schoolID uuid.UUID) (service.Subscription, error) {
	rec, err := r.subscriptions.GetActiveWithPlan(ctx, schoolID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return service.Subscription{}, service.ErrNoActiveSubscription
		}
		return service.Subscription{}, err
	}
	return service.Subscription{
		ID:           rec.Subscription.SubscriptionID,
		PlanName:     rec.Plan.Name,
		EndDate:      rec.Subscription.EndDate,
		MaxStudents:  rec.Plan.MaxStudents,
		MaxTeachers:  rec.Plan.MaxTeachers,
		MaxClasses:   rec.Plan.MaxClasses,
		MaxStorageGB: rec.Plan.MaxStorageGB,
	}, nil
}

func (r *PostgresRepository) Count(ctx context.Context, schoolID uuid.UUID, kind service.Kind) (int64, error) {
	resource, err := toResourceKind(kind)
	if err != nil {
		return 0, err
	}
	return r.resources.CountByKind(ctx, schoolID, resource)
}

func (r *PostgresRepository) LockSchool(ctx context.Context, schoolID uuid.UUID) error {
	err := r.schools.LockForUpdate(ctx, schoolID)
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNoActiveSubscription
	}
	return err
}

func (r *PostgresRepository) InSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithSerializable(ctx, fn)
}

func toResourceKind(kind service.Kind) (persistence.ResourceKind, error) {
	switch kind {
	case service.KindStudents:
		return persistence.ResourceStudents, nil
	case service.KindTeachers:
		return persistence.ResourceTeachers, nil
	case service.KindClasses:
		return persistence.ResourceClasses, nil
	default:
		return "", fmt.Errorf("kind %q is not countable", kind)
	}
}

// DocumentMeter measures storage from document metadata rows.
type DocumentMeter struct {
	resources *persistence.ResourceStore
}

// NewDocumentMeter constructs the database-backed storage meter.
func NewDocumentMeter(resources *persistence.ResourceStore) *DocumentMeter {
	if resources == nil {
		panic("resource store is required")
	}
	return &DocumentMeter{resources: resources}
}

func (m *DocumentMeter) UsedBytes(ctx context.Context, schoolID uuid.UUID) (int64, error) {
	return m.resources.SumDocumentBytes(ctx, schoolID)
}

var (
	_ service.Repository = (*PostgresRepository)(nil)
	_ service.UsageMeter = (*DocumentMeter)(nil)
)
