package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/schoolhub/domains/limits/be/repo"
	"github.com/zenGate-Global/schoolhub/domains/limits/be/service"
)

func basicPlan() service.Subscription {
	return service.Subscription{
		ID:           uuid.New(),
		PlanName:     "Basic",
		EndDate:      time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		MaxStudents:  3,
		MaxTeachers:  2,
		MaxClasses:   1,
		MaxStorageGB: 1,
	}
}

func newGuard(t *testing.T) (service.Service, *repo.MemoryRepository, uuid.UUID) {
	t.Helper()
	mem := repo.NewMemoryRepository()
	schoolID := uuid.New()
	mem.SetSubscription(schoolID, basicPlan())
	return service.New(mem, mem, zaptest.NewLogger(t)), mem, schoolID
}

func TestValidateCountLimits(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		kind     service.Kind
		count    int64
		validate func(service.Service, context.Context, uuid.UUID) error
		canAdd   func(service.Service, context.Context, uuid.UUID) bool
		wantErr  bool
	}{
		{"students below cap", service.KindStudents, 2, service.Service.ValidateStudentLimit, service.Service.CanAddStudent, false},
		{"students at cap", service.KindStudents, 3, service.Service.ValidateStudentLimit, service.Service.CanAddStudent, true},
		{"students over cap", service.KindStudents, 4, service.Service.ValidateStudentLimit, service.Service.CanAddStudent, true},
		{"teachers below cap", service.KindTeachers, 0, service.Service.ValidateTeacherLimit, service.Service.CanAddTeacher, false},
		{"teachers at cap", service.KindTeachers, 2, service.Service.ValidateTeacherLimit, service.Service.CanAddTeacher, true},
		{"classes at cap", service.KindClasses, 1, service.Service.ValidateClassLimit, service.Service.CanAddClass, true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			guard, mem, schoolID := newGuard(t)
			mem.Add(schoolID, tc.kind, tc.count)
			ctx := context.Background()

			err := tc.validate(guard, ctx, schoolID)
			require.Equal(t, err == nil, tc.canAdd(guard, ctx, schoolID))
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, service.ErrLimitExceeded)
			var limitErr *service.LimitExceededError
			require.True(t, errors.As(err, &limitErr))
			require.Equal(t, tc.kind, limitErr.Kind)
			require.Equal(t, tc.count, limitErr.Current)
		})
	}
}

func TestValidateWithoutActiveSubscription(t *testing.T) {
	t.Parallel()

	guard := service.New(repo.NewMemoryRepository(), repo.NewMemoryRepository(), zaptest.NewLogger(t))
	schoolID := uuid.New()
	ctx := context.Background()

	require.ErrorIs(t, guard.ValidateStudentLimit(ctx, schoolID), service.ErrNoActiveSubscription)
	require.ErrorIs(t, guard.ValidateStorageLimit(ctx, schoolID, 1), service.ErrNoActiveSubscription)
	require.False(t, guard.CanAddStudent(ctx, schoolID))
	require.False(t, guard.CanAddTeacher(ctx, schoolID))
	require.False(t, guard.CanAddClass(ctx, schoolID))

	_, err := guard.GetCurrentLimits(ctx, schoolID)
	require.ErrorIs(t, err, service.ErrNoActiveSubscription)
}

func TestValidateStorageLimitUsesRealUsage(t *testing.T) {
	t.Parallel()

	guard, mem, schoolID := newGuard(t)
	ctx := context.Background()
	const gb = int64(1) << 30
	mem.Add(schoolID, service.KindStorage, gb-100)

	require.NoError(t, guard.ValidateStorageLimit(ctx, schoolID, 100))

	err := guard.ValidateStorageLimit(ctx, schoolID, 101)
	require.ErrorIs(t, err, service.ErrLimitExceeded)
	var limitErr *service.LimitExceededError
	require.True(t, errors.As(err, &limitErr))
	require.Equal(t, gb-100, limitErr.Current)
	require.Equal(t, gb, limitErr.Max)
	require.Equal(t, int64(101), limitErr.Requested)

	var validationErr *service.ValidationError
	require.True(t, errors.As(guard.ValidateStorageLimit(ctx, schoolID, -1), &validationErr))
}

func TestValidateStorageLimitRejectsHugeUploads(t *testing.T) {
	t.Parallel()

	guard, mem, schoolID := newGuard(t)
	ctx := context.Background()
	const gb = int64(1) << 30
	mem.Add(schoolID, service.KindStorage, 1)

	err := guard.ValidateStorageLimit(ctx, schoolID, math.MaxInt64)
	require.ErrorIs(t, err, service.ErrLimitExceeded)
	var limitErr *service.LimitExceededError
	require.True(t, errors.As(err, &limitErr))
	require.Equal(t, int64(math.MaxInt64), limitErr.Requested)

	require.ErrorIs(t, guard.ValidateStorageLimit(ctx, schoolID, math.MaxInt64-gb), service.ErrLimitExceeded)
	require.NoError(t, guard.ValidateStorageLimit(ctx, schoolID, gb-1))

	// Usage already above the cap rejects even empty uploads.
	mem.Add(schoolID, service.KindStorage, gb)
	require.ErrorIs(t, guard.ValidateStorageLimit(ctx, schoolID, 0), service.ErrLimitExceeded)
}

func TestSubscriptionMaxStorageSaturates(t *testing.T) {
	t.Parallel()

	sub := service.Subscription{MaxStorageGB: math.MaxInt64 / 2}
	require.Equal(t, int64(math.MaxInt64), sub.Max(service.KindStorage))
	require.Equal(t, int64(5)<<30, service.Subscription{MaxStorageGB: 5}.Max(service.KindStorage))
}

func TestGetCurrentLimits(t *testing.T) {
	t.Parallel()

	guard, mem, schoolID := newGuard(t)
	mem.Add(schoolID, service.KindStudents, 2)
	mem.Add(schoolID, service.KindClasses, 1)
	mem.Add(schoolID, service.KindStorage, 2048)

	limits, err := guard.GetCurrentLimits(context.Background(), schoolID)
	require.NoError(t, err)
	require.Equal(t, "Basic", limits.PlanName)
	require.Equal(t, service.Usage{Current: 2, Max: 3}, limits.Students)
	require.Equal(t, service.Usage{Current: 0, Max: 2}, limits.Teachers)
	require.Equal(t, service.Usage{Current: 1, Max: 1}, limits.Classes)
	require.Equal(t, service.Usage{Current: 2048, Max: 1 << 30}, limits.Storage)
}

func TestAdmitSerializesConcurrentCreates(t *testing.T) {
	t.Parallel()

	guard, mem, schoolID := newGuard(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, rejected := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := guard.Admit(ctx, schoolID, service.KindStudents, func(ctx context.Context) error {
				mem.Add(schoolID, service.KindStudents, 1)
				return nil
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
				return
			}
			require.ErrorIs(t, err, service.ErrLimitExceeded)
			rejected++
		}()
	}
	wg.Wait()

	require.Equal(t, 3, admitted)
	require.Equal(t, 17, rejected)
	count, err := mem.Count(ctx, schoolID, service.KindStudents)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestAdmitDocumentAndInvalidKinds(t *testing.T) {
	t.Parallel()

	guard, mem, schoolID := newGuard(t)
	ctx := context.Background()

	created := false
	err := guard.AdmitDocument(ctx, schoolID, 1<<20, func(ctx context.Context) error {
		created = true
		mem.Add(schoolID, service.KindStorage, 1<<20)
		return nil
	})
	require.NoError(t, err)
	require.True(t, created)

	err = guard.AdmitDocument(ctx, schoolID, 1<<30, func(ctx context.Context) error {
		t.Fatal("create must not run when storage is full")
		return nil
	})
	require.ErrorIs(t, err, service.ErrLimitExceeded)

	var validationErr *service.ValidationError
	require.True(t, errors.As(guard.Admit(ctx, schoolID, service.KindStorage, func(context.Context) error { return nil }), &validationErr))
	require.True(t, errors.As(guard.Admit(ctx, schoolID, "lockers", func(context.Context) error { return nil }), &validationErr))
}

type failingRepo struct {
	*repo.MemoryRepository
	countFn func() (int64, error)
}

func (f failingRepo) Count(ctx context.Context, schoolID uuid.UUID, kind service.Kind) (int64, error) {
	return f.countFn()
}

func TestCanAddNeverFails(t *testing.T) {
	t.Parallel()

	mem := repo.NewMemoryRepository()
	schoolID := uuid.New()
	mem.SetSubscription(schoolID, basicPlan())
	ctx := context.Background()

	broken := service.New(failingRepo{MemoryRepository: mem, countFn: func() (int64, error) {
		return 0, errors.New("connection reset")
	}}, mem, zaptest.NewLogger(t))
	require.False(t, broken.CanAddStudent(ctx, schoolID))
	require.Error(t, broken.ValidateStudentLimit(ctx, schoolID))
	require.NotErrorIs(t, broken.ValidateStudentLimit(ctx, schoolID), service.ErrLimitExceeded)

	panicking := service.New(failingRepo{MemoryRepository: mem, countFn: func() (int64, error) {
		panic("nil pool")
	}}, mem, zaptest.NewLogger(t))
	require.NotPanics(t, func() {
		require.False(t, panicking.CanAddTeacher(ctx, schoolID))
	})
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	kind, err := service.ParseKind("classes")
	require.NoError(t, err)
	require.Equal(t, service.KindClasses, kind)

	_, err = service.ParseKind("lockers")
	var validationErr *service.ValidationError
	require.True(t, errors.As(err, &validationErr))
}
