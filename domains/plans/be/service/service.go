package service

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainrepo "github.com/zenGate-Global/schoolhub/domains/plans/be/repo"
	platformlogging "github.com/zenGate-Global/schoolhub/platform/go/logging"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
	"github.com/zenGate-Global/schoolhub/platform/go/requesttrace"
)

//go:embed plans.schema.json
var importSchema []byte

const importSchemaName = "plans-import"

var importValidator = persistence.MustSchemaValidator(map[string][]byte{importSchemaName: importSchema})

// FieldErrors maps document fields to validation issues.
type FieldErrors map[string][]string

// ValidationError captures input validation problems surfaced by the service.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// ErrNotFound is returned when no plan has the requested code.
var ErrNotFound = errors.New("subscription plan not found")

// Plan is immutable reference data granting per-school caps.
type Plan struct {
	ID           uuid.UUID
	Code         string
	Name         string
	MaxStudents  int64
	MaxTeachers  int64
	MaxClasses   int64
	MaxStorageGB int64
	MonthlyPrice decimal.Decimal
	YearlyPrice  decimal.Decimal
	Features     json.RawMessage
}

// Service exposes the plans domain operations.
type Service interface {
	List(ctx context.Context) ([]Plan, error)
	GetByCode(ctx context.Context, code string) (Plan, error)
	// Import validates a JSON plan document and upserts its plans by code.
	Import(ctx context.Context, audit requesttrace.AuditInfo, document []byte) ([]Plan, error)
}

type service struct {
	repo      domainrepo.Repository
	validator *persistence.SchemaValidator
}

// New builds a plans Service backed by the provided repository.
func New(repo domainrepo.Repository) Service {
	if repo == nil {
		panic("plans repo is required")
	}
	return &service{repo: repo, validator: importValidator}
}

func (s *service) List(ctx context.Context) ([]Plan, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	plans := make([]Plan, 0, len(records))
	for _, rec := range records {
		plans = append(plans, mapPlan(rec))
	}
	return plans, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (Plan, error) {
	rec, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Plan{}, ErrNotFound
		}
		return Plan{}, err
	}
	return mapPlan(rec), nil
}

type importDocument struct {
	Plans []importPlan `json:"plans"`
}

type importPlan struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	MaxStudents  int64           `json:"maxStudents"`
	MaxTeachers  int64           `json:"maxTeachers"`
	MaxClasses   int64           `json:"maxClasses"`
	MaxStorageGB int64           `json:"maxStorageGb"`
	MonthlyPrice decimal.Decimal `json:"monthlyPrice"`
	YearlyPrice  decimal.Decimal `json:"yearlyPrice"`
	Features     json.RawMessage `json:"features,omitempty"`
}

func (s *service) Import(ctx context.Context, audit requesttrace.AuditInfo, document []byte) ([]Plan, error) {
	if err := s.validator.Validate(importSchemaName, document); err != nil {
		var violation *persistence.SchemaViolationError
		if !errors.As(err, &violation) {
			return nil, err
		}
		fields := FieldErrors{}
		for _, v := range violation.Violations {
			key := "document" + v.Path
			fields[key] = append(fields[key], v.Message)
		}
		return nil, &ValidationError{Fields: fields}
	}

	var doc importDocument
	if err := json.Unmarshal(document, &doc); err != nil {
		return nil, &ValidationError{Fields: FieldErrors{"document": {err.Error()}}}
	}

	fields := FieldErrors{}
	seen := make(map[string]struct{}, len(doc.Plans))
	records := make([]persistence.PlanRecord, 0, len(doc.Plans))
	for i, p := range doc.Plans {
		if _, dup := seen[p.Code]; dup {
			key := fmt.Sprintf("plans[%d].code", i)
			fields[key] = append(fields[key], "duplicate code "+p.Code)
			continue
		}
		seen[p.Code] = struct{}{}

		records = append(records, persistence.PlanRecord{
			Code:         p.Code,
			Name:         p.Name,
			MaxStudents:  p.MaxStudents,
			MaxTeachers:  p.MaxTeachers,
			MaxClasses:   p.MaxClasses,
			MaxStorageGB: p.MaxStorageGB,
			MonthlyPrice: p.MonthlyPrice,
			YearlyPrice:  p.YearlyPrice,
			Features:     p.Features,
		})
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	saved, err := s.repo.UpsertAll(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("upsert plans: %w", err)
	}

	platformlogging.FromContextOr(ctx, nil).Info("subscription plans imported",
		zap.Int("count", len(saved)),
		zap.String("actor_kind", string(audit.ActorKind)),
		zap.String("request_id", audit.RequestID),
	)

	plans := make([]Plan, 0, len(saved))
	for _, rec := range saved {
		plans = append(plans, mapPlan(rec))
	}
	return plans, nil
}

func mapPlan(rec persistence.PlanRecord) Plan {
	return Plan{
		ID:           rec.PlanID,
		Code:         rec.Code,
		Name:         rec.Name,
		MaxStudents:  rec.MaxStudents,
		MaxTeachers:  rec.MaxTeachers,
		MaxClasses:   rec.MaxClasses,
		MaxStorageGB: rec.MaxStorageGB,
		MonthlyPrice: rec.MonthlyPrice,
		YearlyPrice:  rec.YearlyPrice,
		Features:     rec.Features,
	}
}
