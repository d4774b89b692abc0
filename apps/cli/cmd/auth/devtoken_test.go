package auth

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/schoolhub/platform/go/auth"
)

func TestDevTokenCommand(t *testing.T) {
	schoolID := uuid.NewString()

	var out bytes.Buffer
	cmd := Command()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"devtoken",
		"--user-id", "u-1",
		"--email", "admin@greenfield.test",
		"--role", "admin",
		"--school-id", schoolID,
		"--secret", "local-secret",
	})
	require.NoError(t, cmd.Execute())

	token := strings.TrimSpace(out.String())
	claims, err := platformauth.HS256Verifier([]byte("local-secret"))(context.Background(), token)
	require.NoError(t, err)

	creds, err := platformauth.DefaultCredentialExtractor(claims)
	require.NoError(t, err)
	require.Equal(t, "u-1", creds.ID)
	require.Equal(t, platformauth.RoleAdmin, creds.Role)
	require.NotNil(t, creds.SchoolID)
	require.Equal(t, schoolID, *creds.SchoolID)
}

func TestDevTokenCommandRequiresSchoolForSchoolRoles(t *testing.T) {
	cmd := Command()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"devtoken", "--user-id", "u-1", "--email", "t@greenfield.test", "--role", "TEACHER", "--secret", "s"})
	require.Error(t, cmd.Execute())
}
