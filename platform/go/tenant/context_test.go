package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
	require.Equal(t, uuid.Nil, SchoolID(context.Background()))

	tc := Context{SchoolID: uuid.New(), Slug: "green-valley", ActorID: uuid.New()}
	ctx := WithContext(context.Background(), tc)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, tc, got)
	require.Equal(t, tc.SchoolID, SchoolID(ctx))
}

func TestBuildBasePrefix(t *testing.T) {
	id := uuid.MustParse("0a1b2c3d-4e5f-6789-abcd-ef0123456789")
	require.Equal(t, "0a1b2c3d", ShortID(id))
	require.Equal(t, "prod/green-valley-0a1b2c3d/", BuildBasePrefix("prod/", "green-valley", ShortID(id)))
}
