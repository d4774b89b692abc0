package jobscmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := Command()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list"})
	require.NoError(t, cmd.Execute())

	text := out.String()
	require.Contains(t, text, "subscription-expiry")
	require.Contains(t, text, "*/15 * * * *")
	require.Len(t, strings.Split(strings.TrimSpace(text), "\n"), 4)
}

func TestRunCommandRejectsUnknownProcedure(t *testing.T) {
	cmd := Command()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "vacuum"})
	require.Error(t, cmd.Execute())
}
