package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PlansTable holds subscription plan reference data.
const PlansTable = "subscription_plans"

// PlanRecord represents a subscription plan row.
type PlanRecord struct {
	PlanID       uuid.UUID       `db:"plan_id"`
	Code         string          `db:"code"`
	Name         string          `db:"name"`
	MaxStudents  int64           `db:"max_students"`
	MaxTeachers  int64           `db:"max_teachers"`
	MaxClasses   int64           `db:"max_classes"`
	MaxStorageGB int64           `db:"max_storage_gb"`
	MonthlyPrice decimal.Decimal `db:"monthly_price"`
	YearlyPrice  decimal.Decimal `db:"yearly_price"`
	Features     json.RawMessage `db:"features"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// PlanStore provides access to subscription plans.
type PlanStore struct {
	db *DB
}

// NewPlanStore creates a store; assumes migrations already created the table.
func NewPlanStore(db *DB) (*PlanStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &PlanStore{db: db}, nil
}

// Prices travel as text so numeric(12,2) values never pass through float64.
const planColumns = `plan_id, code, name, max_students, max_teachers, max_classes, max_storage_gb,
    monthly_price::text, yearly_price::text, features, created_at, updated_at`

// Upsert inserts a plan or updates the existing plan with the same code.
func (s *PlanStore) Upsert(ctx context.Context, rec PlanRecord) (PlanRecord, error) {
	if rec.PlanID == uuid.Nil {
		rec.PlanID = uuid.New()
	}
	features := rec.Features
	if len(features) == 0 {
		features = json.RawMessage(`{}`)
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (plan_id, code, name, max_students, max_teachers, max_classes, max_storage_gb,
            monthly_price, yearly_price, features)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10)
        ON CONFLICT (code) DO UPDATE SET
            name = EXCLUDED.name,
            max_students = EXCLUDED.max_students,
            max_teachers = EXCLUDED.max_teachers,
            max_classes = EXCLUDED.max_classes,
            max_storage_gb = EXCLUDED.max_storage_gb,
            monthly_price = EXCLUDED.monthly_price,
            yearly_price = EXCLUDED.yearly_price,
            features = EXCLUDED.features,
            updated_at = NOW()
        RETURNING %s
    `, PlansTable, planColumns)

	row := s.db.Conn(ctx).QueryRow(ctx, query,
		rec.PlanID, rec.Code, rec.Name, rec.MaxStudents, rec.MaxTeachers, rec.MaxClasses, rec.MaxStorageGB,
		rec.MonthlyPrice.StringFixed(2), rec.YearlyPrice.StringFixed(2), features,
	)
	out, err := scanPlan(row)
	if err != nil {
		return PlanRecord{}, mapWriteError(err)
	}
	return out, nil
}

// Get fetches a plan by id.
func (s *PlanStore) Get(ctx context.Context, id uuid.UUID) (PlanRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE plan_id = $1`, planColumns, PlansTable)
	return scanPlan(s.db.Conn(ctx).QueryRow(ctx, query, id))
}

// GetByCode fetches a plan by its unique code.
func (s *PlanStore) GetByCode(ctx context.Context, code string) (PlanRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE code = $1`, planColumns, PlansTable)
	return scanPlan(s.db.Conn(ctx).QueryRow(ctx, query, code))
}

// List returns every plan ordered by monthly price then code.
func (s *PlanStore) List(ctx context.Context) ([]PlanRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY monthly_price, code`, planColumns, PlansTable)
	rows, err := s.db.Conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlanRecord
	for rows.Next() {
		rec, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanPlan(row pgx.Row) (PlanRecord, error) {
	var rec PlanRecord
	var monthly, yearly string
	var features []byte
	if err := row.Scan(&rec.PlanID, &rec.Code, &rec.Name, &rec.MaxStudents, &rec.MaxTeachers, &rec.MaxClasses,
		&rec.MaxStorageGB, &monthly, &yearly, &features, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PlanRecord{}, ErrNotFound
		}
		return PlanRecord{}, err
	}

	if err := setPlanPrices(&rec, monthly, yearly); err != nil {
		return PlanRecord{}, err
	}
	rec.Features = json.RawMessage(features)
	return rec, nil
}

func setPlanPrices(rec *PlanRecord, monthly, yearly string) error {
	var err error
	if rec.MonthlyPrice, err = decimal.NewFromString(monthly); err != nil {
		return fmt.Errorf("parse monthly price: %w", err)
	}
	if rec.YearlyPrice, err = decimal.NewFromString(yearly); err != nil {
		return fmt.Errorf("parse yearly price: %w", err)
	}
	return nil
}
