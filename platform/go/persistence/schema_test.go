package persistence

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSplitStatementsDropsComments(t *testing.T) {
	sql := `
-- leading comment
CREATE TABLE a (id INT);

-- one per school
CREATE UNIQUE INDEX a_idx ON a (id);
`
	stmts := splitStatements(sql)
	require.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE UNIQUE INDEX a_idx ON a (id)"}, stmts)
}

func TestPaymentIsOverdue(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	base := PaymentRecord{Amount: decimal.RequireFromString("120.50")}

	cases := []struct {
		name   string
		due    time.Time
		status string
		want   bool
	}{
		{"pending past due", day.AddDate(0, 0, -1), PaymentPending, true},
		{"pending due today", day, PaymentPending, false},
		{"pending future", day.AddDate(0, 0, 3), PaymentPending, false},
		{"paid past due", day.AddDate(0, 0, -10), PaymentPaid, false},
		{"cancelled past due", day.AddDate(0, 0, -10), PaymentCancelled, false},
		{"legacy overdue status", day.AddDate(0, 0, -2), "OVERDUE", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			p.DueDate = tc.due
			p.Status = tc.status
			require.Equal(t, tc.want, p.IsOverdue(day))
		})
	}
}

func TestSchemaValidatorReportsViolationsByPath(t *testing.T) {
	definition := []byte(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {
			"code": { "type": "string", "minLength": 1 },
			"maxStudents": { "type": "integer", "minimum": 1 }
		},
		"required": ["code"]
	}`)

	v, err := NewSchemaValidator(map[string][]byte{"plan": definition})
	require.NoError(t, err)

	require.NoError(t, v.Validate("plan", []byte(`{"code":"basic","maxStudents":10}`)))

	err = v.Validate("plan", []byte(`{"code":"","maxStudents":0}`))
	var violation *SchemaViolationError
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "plan", violation.Schema)
	paths := make([]string, 0, len(violation.Violations))
	for _, item := range violation.Violations {
		paths = append(paths, item.Path)
	}
	require.Equal(t, []string{"/code", "/maxStudents"}, paths)

	require.ErrorAs(t, v.Validate("plan", nil), &violation)
	require.ErrorAs(t, v.Validate("plan", []byte(`{`)), &violation)
	require.ErrorContains(t, v.Validate("missing", []byte(`{}`)), "not registered")
}

func TestNewSchemaValidatorRejectsBrokenDefinition(t *testing.T) {
	_, err := NewSchemaValidator(map[string][]byte{"broken": []byte(`{"type":`)})
	require.Error(t, err)
	require.Panics(t, func() { MustSchemaValidator(map[string][]byte{"broken": []byte(`{`)}) })
}
