package planscmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	plansrepo "github.com/zenGate-Global/schoolhub/domains/plans/be/repo"
	plansservice "github.com/zenGate-Global/schoolhub/domains/plans/be/service"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
	"github.com/zenGate-Global/schoolhub/platform/go/requesttrace"
)

// Command groups subscription plan helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Subscription plan utilities (list, import)",
	}

	cmd.PersistentFlags().String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string (defaults to DATABASE_URL)")

	cmd.AddCommand(listCommand())
	cmd.AddCommand(importCommand())
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subscription plans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc plansservice.Service) error {
				plans, err := svc.List(ctx)
				if err != nil {
					return err
				}
				return printPlans(cmd.OutOrStdout(), plans)
			})
		},
	}
}

func importCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate a JSON plan document and upsert its plans by code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			document, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read plan document: %w", err)
			}

			return withService(cmd, func(ctx context.Context, svc plansservice.Service) error {
				audit := requesttrace.System("cli-" + uuid.NewString())
				plans, err := svc.Import(ctx, audit, document)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d plans\n", len(plans))
				return printPlans(cmd.OutOrStdout(), plans)
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to the plan JSON document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func withService(cmd *cobra.Command, fn func(ctx context.Context, svc plansservice.Service) error) error {
	databaseURL, err := cmd.Flags().GetString("database-url")
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL, ApplicationName: "schoolhub-cli"})
	if err != nil {
		return fmt.Errorf("init pool: %w", err)
	}
	defer persistence.ClosePool(pool)

	db := persistence.NewDB(pool)
	store, err := persistence.NewPlanStore(db)
	if err != nil {
		return fmt.Errorf("init plan store: %w", err)
	}
	return fn(ctx, plansservice.New(plansrepo.NewPostgresRepository(db, store)))
}

func printPlans(w io.Writer, plans []plansservice.Plan) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tSTUDENTS\tTEACHERS\tCLASSES\tSTORAGE_GB\tMONTHLY\tYEARLY")
	for _, p := range plans {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			p.Code, p.Name, p.MaxStudents, p.MaxTeachers, p.MaxClasses, p.MaxStorageGB,
			p.MonthlyPrice.StringFixed(2), p.YearlyPrice.StringFixed(2))
	}
	return tw.Flush()
}
