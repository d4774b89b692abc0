package root

import (
	"github.com/zenGate-Global/schoolhub/apps/cli/cmd/auth"
	jobscmd "github.com/zenGate-Global/schoolhub/apps/cli/cmd/jobs"
	migratecmd "github.com/zenGate-Global/schoolhub/apps/cli/cmd/migrate"
	planscmd "github.com/zenGate-Global/schoolhub/apps/cli/cmd/plans"
	schoolscmd "github.com/zenGate-Global/schoolhub/apps/cli/cmd/schools"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(migratecmd.Command())
	Root().AddCommand(planscmd.Command())
	Root().AddCommand(schoolscmd.Command())
	Root().AddCommand(jobscmd.Command())
}
