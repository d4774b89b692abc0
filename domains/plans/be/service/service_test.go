package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
	"github.com/zenGate-Global/schoolhub/platform/go/requesttrace"
)

type mockRepository struct {
	listFn      func(ctx context.Context) ([]persistence.PlanRecord, error)
	getByCodeFn func(ctx context.Context, code string) (persistence.PlanRecord, error)
	upsertAllFn func(ctx context.Context, plans []persistence.PlanRecord) ([]persistence.PlanRecord, error)
}

func (m *mockRepository) List(ctx context.Context) ([]persistence.PlanRecord, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx)
}

func (m *mockRepository) GetByCode(ctx context.Context, code string) (persistence.PlanRecord, error) {
	if m.getByCodeFn == nil {
		panic("getByCodeFn not configured")
	}
	return m.getByCodeFn(ctx, code)
}

func (m *mockRepository) UpsertAll(ctx context.Context, plans []persistence.PlanRecord) ([]persistence.PlanRecord, error) {
	if m.upsertAllFn == nil {
		panic("upsertAllFn not configured")
	}
	return m.upsertAllFn(ctx, plans)
}

const validDocument = `{
  "plans": [
    {"code": "basic", "name": "Basic", "maxStudents": 100, "maxTeachers": 10, "maxClasses": 5, "maxStorageGb": 5,
     "monthlyPrice": "49.90", "yearlyPrice": "499.00"},
    {"code": "premium", "name": "Premium", "maxStudents": 1000, "maxTeachers": 80, "maxClasses": 40, "maxStorageGb": 100,
     "monthlyPrice": "199.00", "yearlyPrice": "1990.00", "features": {"chat": true}}
  ]
}`

func TestServiceImportUpsertsPlans(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	repo.upsertAllFn = func(ctx context.Context, plans []persistence.PlanRecord) ([]persistence.PlanRecord, error) {
		require.Len(t, plans, 2)
		require.Equal(t, "basic", plans[0].Code)
		require.True(t, plans[0].MonthlyPrice.Equal(decimal.RequireFromString("49.90")))
		require.Equal(t, int64(80), plans[1].MaxTeachers)
		for i := range plans {
			plans[i].PlanID = uuid.New()
		}
		return plans, nil
	}

	svc := New(repo)
	plans, err := svc.Import(context.Background(), requesttrace.System("import"), []byte(validDocument))
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.Equal(t, "Premium", plans[1].Name)
	require.JSONEq(t, `{"chat": true}`, string(plans[1].Features))
}

func TestServiceImportRejectsInvalidDocuments(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":       `{`,
		"empty plans":    `{"plans": []}`,
		"zero cap":       `{"plans":[{"code":"x","name":"X","maxStudents":0,"maxTeachers":1,"maxClasses":1,"maxStorageGb":1,"monthlyPrice":"1","yearlyPrice":"1"}]}`,
		"negative price": `{"plans":[{"code":"x","name":"X","maxStudents":1,"maxTeachers":1,"maxClasses":1,"maxStorageGb":1,"monthlyPrice":"-1","yearlyPrice":"1"}]}`,
		"bad code":       `{"plans":[{"code":"Not Valid","name":"X","maxStudents":1,"maxTeachers":1,"maxClasses":1,"maxStorageGb":1,"monthlyPrice":"1","yearlyPrice":"1"}]}`,
		"duplicate code": `{"plans":[
			{"code":"x","name":"X","maxStudents":1,"maxTeachers":1,"maxClasses":1,"maxStorageGb":1,"monthlyPrice":"1","yearlyPrice":"1"},
			{"code":"x","name":"Y","maxStudents":1,"maxTeachers":1,"maxClasses":1,"maxStorageGb":1,"monthlyPrice":"1","yearlyPrice":"1"}]}`,
	}

	for name, doc := range cases {
		doc := doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			svc := New(&mockRepository{})
			_, err := svc.Import(context.Background(), requesttrace.System("import"), []byte(doc))
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			require.NotEmpty(t, validationErr.Fields)
		})
	}
}

func TestServiceGetByCodeMapsNotFound(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{
		getByCodeFn: func(ctx context.Context, code string) (persistence.PlanRecord, error) {
			return persistence.PlanRecord{}, persistence.ErrNotFound
		},
	}

	_, err := New(repo).GetByCode(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
