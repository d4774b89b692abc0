package contracts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadLimitsContract(t *testing.T) {
	t.Parallel()

	require.Contains(t, Names(), "limits")

	doc, err := Load("limits")
	require.NoError(t, err)
	require.NotNil(t, doc.Paths.Find("/limits"))
	require.NotNil(t, doc.Paths.Find("/limits/{kind}/availability"))
	require.Contains(t, doc.Components.SecuritySchemes, "bearerAuth")
}

func TestLoadUnknownContract(t *testing.T) {
	t.Parallel()

	_, err := Load("missing")
	require.Error(t, err)
}
