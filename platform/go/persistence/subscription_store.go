package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SubscriptionsTable holds school subscriptions.
const SubscriptionsTable = "subscriptions"

// Subscription status values.
const (
	SubscriptionActive    = "ACTIVE"
	SubscriptionExpired   = "EXPIRED"
	SubscriptionCancelled = "CANCELLED"
)

// SubscriptionRecord represents a subscription row. StartDate and EndDate are civil days at UTC midnight.
type SubscriptionRecord struct {
	SubscriptionID uuid.UUID `db:"subscription_id"`
	SchoolID       uuid.UUID `db:"school_id"`
	PlanID         uuid.UUID `db:"plan_id"`
	Status         string    `db:"status"`
	StartDate      time.Time `db:"start_date"`
	EndDate        time.Time `db:"end_date"`
	Version        int64     `db:"version"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// SubscriptionWithPlan joins a subscription with the plan it grants.
type SubscriptionWithPlan struct {
	Subscription SubscriptionRecord
	Plan         PlanRecord
}

// SubscriptionStore provides access to subscriptions.
type SubscriptionStore struct {
	db *DB
}

// NewSubscriptionStore creates a store; assumes migrations already created the table.
func NewSubscriptionStore(db *DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &SubscriptionStore{db: db}, nil
}

const subscriptionColumns = "s.subscription_id, s.school_id, s.plan_id, s.status, s.start_date, s.end_date, s.version, s.updated_at"

const joinedPlanColumns = `p.plan_id, p.code, p.name, p.max_students, p.max_teachers, p.max_classes, p.max_storage_gb,
    p.monthly_price::text, p.yearly_price::text, p.features, p.created_at, p.updated_at`

// Create inserts a subscription. A second ACTIVE subscription for the same school fails with ErrDuplicate.
func (s *SubscriptionStore) Create(ctx context.Context, rec SubscriptionRecord) (SubscriptionRecord, error) {
	if rec.SubscriptionID == uuid.Nil {
		rec.SubscriptionID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = SubscriptionActive
	}

	query := fmt.Sprintf(`
        INSERT INTO %s AS s (subscription_id, school_id, plan_id, status, start_date, end_date)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, SubscriptionsTable, subscriptionColumns)

	out, err := scanSubscription(s.db.Conn(ctx).QueryRow(ctx, query,
		rec.SubscriptionID, rec.SchoolID, rec.PlanID, rec.Status, rec.StartDate, rec.EndDate))
	if err != nil {
		return SubscriptionRecord{}, mapWriteError(err)
	}
	return out, nil
}

// Get fetches a subscription by id.
func (s *SubscriptionStore) Get(ctx context.Context, id uuid.UUID) (SubscriptionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s s WHERE s.subscription_id = $1`, subscriptionColumns, SubscriptionsTable)
	return scanSubscription(s.db.Conn(ctx).QueryRow(ctx, query, id))
}

// GetActiveWithPlan returns the school's ACTIVE subscription and its plan.
func (s *SubscriptionStore) GetActiveWithPlan(ctx context.Context, schoolID uuid.UUID) (SubscriptionWithPlan, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM %s s JOIN %s p ON p.plan_id = s.plan_id
        WHERE s.school_id = $1 AND s.status = $2
        ORDER BY s.end_date DESC
        LIMIT 1`, subscriptionColumns, joinedPlanColumns, SubscriptionsTable, PlansTable)
	return scanSubscriptionWithPlan(s.db.Conn(ctx).QueryRow(ctx, query, schoolID, SubscriptionActive))
}

// ListActiveEndingBetween returns ACTIVE subscriptions whose end date falls in [from, to].
func (s *SubscriptionStore) ListActiveEndingBetween(ctx context.Context, from, to time.Time) ([]SubscriptionWithPlan, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM %s s JOIN %s p ON p.plan_id = s.plan_id
        WHERE s.status = $1 AND s.end_date >= $2 AND s.end_date <= $3
        ORDER BY s.end_date, s.subscription_id`, subscriptionColumns, joinedPlanColumns, SubscriptionsTable, PlansTable)
	return s.listWithPlan(ctx, query, SubscriptionActive, from, to)
}

// ListActiveEndedBefore returns ACTIVE subscriptions whose end date is strictly before day.
func (s *SubscriptionStore) ListActiveEndedBefore(ctx context.Context, day time.Time) ([]SubscriptionWithPlan, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM %s s JOIN %s p ON p.plan_id = s.plan_id
        WHERE s.status = $1 AND s.end_date < $2
        ORDER BY s.end_date, s.subscription_id`, subscriptionColumns, joinedPlanColumns, SubscriptionsTable, PlansTable)
	return s.listWithPlan(ctx, query, SubscriptionActive, day)
}

// MarkExpired moves an ACTIVE subscription to EXPIRED if it is still at expectedVersion.
func (s *SubscriptionStore) MarkExpired(ctx context.Context, id uuid.UUID, expectedVersion int64) (SubscriptionRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s AS s SET status = $3, version = s.version + 1, updated_at = NOW()
        WHERE s.subscription_id = $1 AND s.version = $2 AND s.status = $4
        RETURNING %s
    `, SubscriptionsTable, subscriptionColumns)

	out, err := scanSubscription(s.db.Conn(ctx).QueryRow(ctx, query, id, expectedVersion, SubscriptionExpired, SubscriptionActive))
	if errors.Is(err, ErrNotFound) {
		return SubscriptionRecord{}, ErrStaleVersion
	}
	return out, err
}

func (s *SubscriptionStore) listWithPlan(ctx context.Context, query string, args ...any) ([]SubscriptionWithPlan, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubscriptionWithPlan
	for rows.Next() {
		rec, err := scanSubscriptionWithPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSubscription(row pgx.Row) (SubscriptionRecord, error) {
	var rec SubscriptionRecord
	if err := row.Scan(&rec.SubscriptionID, &rec.SchoolID, &rec.PlanID, &rec.Status, &rec.StartDate, &rec.EndDate, &rec.Version, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SubscriptionRecord{}, ErrNotFound
		}
		return SubscriptionRecord{}, err
	}
	return rec, nil
}

func scanSubscriptionWithPlan(row pgx.Row) (SubscriptionWithPlan, error) {
	var out SubscriptionWithPlan
	sub := &out.Subscription
	plan := &out.Plan
	var monthly, yearly string
	var features []byte
	if err := row.Scan(
		&sub.SubscriptionID, &sub.SchoolID, &sub.PlanID, &sub.Status, &sub.StartDate, &sub.EndDate, &sub.Version, &sub.UpdatedAt,
		&plan.PlanID, &plan.Code, &plan.Name, &plan.MaxStudents, &plan.MaxTeachers, &plan.MaxClasses, &plan.MaxStorageGB,
		&monthly, &yearly, &features, &plan.CreatedAt, &plan.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SubscriptionWithPlan{}, ErrNotFound
		}
		return SubscriptionWithPlan{}, err
	}
	if err := setPlanPrices(plan, monthly, yearly); err != nil {
		return SubscriptionWithPlan{}, err
	}
	plan.Features = features
	return out, nil
}
