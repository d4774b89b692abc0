package sqlassets

import _ "embed"

//go:embed schema/schools.sql
var SchoolsSQL string

//go:embed schema/billing.sql
var BillingSQL string

//go:embed schema/academics.sql
var AcademicsSQL string

//go:embed schema/operations.sql
var OperationsSQL string

// Ordered lists the DDL files in dependency order.
func Ordered() []string {
	return []string{SchoolsSQL, BillingSQL, AcademicsSQL, OperationsSQL}
}
