package requesttrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/schoolhub/platform/go/auth"
)

func TestIntoContextAndFromContext(t *testing.T) {
	audit := AuditInfo{ActorKind: ActorKindUser, UserID: ptr("user-123"), RequestID: "req-abc"}

	got, ok := FromContext(IntoContext(context.Background(), audit))
	require.True(t, ok)
	require.Equal(t, audit, got)

	_, ok = FromContext(context.Background())
	require.False(t, ok)
	require.Equal(t, ActorKindAnonymous, FromContextOrAnonymous(context.Background()).ActorKind)
}

func TestFromCredentials(t *testing.T) {
	audit, err := FromCredentials(&platformauth.UserCredentials{ID: "user-456", SchoolID: ptr("school-1")}, "req-xyz")
	require.NoError(t, err)
	require.Equal(t, ActorKindUser, audit.ActorKind)
	require.Equal(t, "user-456", *audit.UserID)
	require.Equal(t, "school-1", *audit.SchoolID)
	require.Equal(t, "req-xyz", audit.RequestID)

	_, err = FromCredentials(&platformauth.UserCredentials{}, "req-1")
	require.Error(t, err)
	_, err = FromCredentials(nil, "req-1")
	require.Error(t, err)
}

func TestSystem(t *testing.T) {
	audit := System("run-7")
	require.Equal(t, ActorKindSystem, audit.ActorKind)
	require.Nil(t, audit.UserID)
	require.Equal(t, "run-7", audit.RequestID)
}

func ptr[T any](v T) *T { return &v }
