package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/schoolhub/domains/schools/be/repo"
	"github.com/zenGate-Global/schoolhub/domains/schools/be/service"
	tenantmiddleware "github.com/zenGate-Global/schoolhub/platform/go/tenant/middleware"
)

func TestCreateNormalizesSlug(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository(), "dev")

	school, err := svc.Create(context.Background(), service.CreateInput{Slug: "  Greenfield-High ", Name: "Greenfield High"})
	require.NoError(t, err)
	require.Equal(t, "greenfield-high", school.Slug)
	require.True(t, school.IsActive)

	_, err = svc.Create(context.Background(), service.CreateInput{Slug: "greenfield-high", Name: "Dup"})
	require.ErrorIs(t, err, service.ErrConflictSlug)

	_, err = svc.Create(context.Background(), service.CreateInput{Slug: "bad slug", Name: "X"})
	require.Error(t, err)
}

func TestResolveTenantAndStoragePrefix(t *testing.T) {
	ctx := context.Background()
	svc := service.New(repo.NewMemoryRepository(), "dev")

	school, err := svc.Create(ctx, service.CreateInput{Slug: "riverside", Name: "Riverside"})
	require.NoError(t, err)

	tc, err := svc.ResolveTenant(ctx, school.ID)
	require.NoError(t, err)
	require.Equal(t, school.ID, tc.SchoolID)
	require.Equal(t, "riverside", tc.Slug)
	require.Len(t, tc.ShortID, 8)

	prefix, err := svc.StoragePrefix(ctx, school.ID)
	require.NoError(t, err)
	require.Equal(t, "dev/riverside-"+tc.ShortID+"/", prefix)

	require.NoError(t, svc.Deactivate(ctx, school.ID))
	_, err = svc.ResolveTenant(ctx, school.ID)
	require.ErrorIs(t, err, service.ErrDisabled)
	require.ErrorIs(t, err, tenantmiddleware.ErrInactive)

	_, err = svc.ResolveTenant(ctx, uuid.New())
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestForEachActivePagesThroughSchools(t *testing.T) {
	ctx := context.Background()
	svc := service.New(repo.NewMemoryRepository(), "dev")

	var inactive uuid.UUID
	for i, slug := range []string{"a", "b", "c", "d", "e"} {
		s, err := svc.Create(ctx, service.CreateInput{Slug: slug, Name: slug})
		require.NoError(t, err)
		if i == 1 {
			inactive = s.ID
		}
	}
	require.NoError(t, svc.Deactivate(ctx, inactive))

	var visited []uuid.UUID
	err := svc.ForEachActive(ctx, 2, func(ctx context.Context, id uuid.UUID) error {
		visited = append(visited, id)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, visited, 4)
	require.NotContains(t, visited, inactive)

	boom := errors.New("boom")
	calls := 0
	err = svc.ForEachActive(ctx, 2, func(ctx context.Context, id uuid.UUID) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}
