package schoolscmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	schoolsrepo "github.com/zenGate-Global/schoolhub/domains/schools/be/repo"
	schoolsservice "github.com/zenGate-Global/schoolhub/domains/schools/be/service"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
	"github.com/zenGate-Global/schoolhub/platform/go/setups"
)

// Command groups school registry helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schools",
		Short: "School registry utilities (create, activate, deactivate)",
	}

	cmd.PersistentFlags().String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string (defaults to DATABASE_URL)")
	cmd.PersistentFlags().String("env-key", envOr("ENV_KEY", "dev"), "Environment key used to derive storage prefixes (e.g. dev, stg, prod)")

	cmd.AddCommand(createCommand())
	cmd.AddCommand(toggleCommand("activate", "Reactivate a school", true))
	cmd.AddCommand(toggleCommand("deactivate", "Soft-deactivate a school; its users lose API access", false))
	return cmd
}

type cliDeps struct {
	db      *persistence.DB
	stores  *setups.Stores
	schools *schoolsservice.Service
}

func withDeps(cmd *cobra.Command, fn func(ctx context.Context, e cliDeps) error) error {
	databaseURL, err := cmd.Flags().GetString("database-url")
	if err != nil {
		return err
	}
	envKey, err := cmd.Flags().GetString("env-key")
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
	stores, err := setups.NewStores(db)
	if err != nil {
		return err
	}
	return fn(ctx, cliDeps{
		db:      db,
		stores:  stores,
		schools: schoolsservice.New(schoolsrepo.NewPostgresRepository(stores.Schools), envKey),
	})
}

func createCommand() *cobra.Command {
	var (
		slug       string
		name       string
		adminEmail string
		adminName  string
		planCode   string
		months     int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a school, optionally with its first admin and an ACTIVE subscription",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (adminEmail == "") != (adminName == "") {
				return fmt.Errorf("--admin-email and --admin-name go together")
			}
			if planCode != "" && months <= 0 {
				return fmt.Errorf("--months must be positive")
			}

			return withDeps(cmd, func(ctx context.Context, e cliDeps) error {
				return e.db.WithTx(ctx, func(ctx context.Context) error {
					school, err := e.schools.Create(ctx, schoolsservice.CreateInput{Slug: slug, Name: name})
					if err != nil {
						return fmt.Errorf("create school: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "school %s (%s) created\n", school.ID, school.Slug)

					if adminEmail != "" {
						schoolID := school.ID
						admin, err := e.stores.Users.Create(ctx, persistence.UserRecord{
							SchoolID: &schoolID,
							Email:    strings.TrimSpace(adminEmail),
							FullName: strings.TrimSpace(adminName),
							Role:     persistence.RoleAdmin,
						})
						if err != nil {
							return fmt.Errorf("create admin: %w", err)
						}
						fmt.Fprintf(cmd.OutOrStdout(), "admin %s (%s) created\n", admin.UserID, admin.Email)
					}

					if planCode != "" {
						plan, err := e.stores.Plans.GetByCode(ctx, planCode)
						if err != nil {
							return fmt.Errorf("get plan %q: %w", planCode, err)
						}
						start := time.Now().UTC().Truncate(24 * time.Hour)
						sub, err := e.stores.Subscriptions.Create(ctx, persistence.SubscriptionRecord{
							SchoolID:  school.ID,
							PlanID:    plan.PlanID,
							Status:    persistence.SubscriptionActive,
							StartDate: start,
							EndDate:   start.AddDate(0, months, 0),
						})
						if err != nil {
							return fmt.Errorf("create subscription: %w", err)
						}
						fmt.Fprintf(cmd.OutOrStdout(), "subscription %s on %s until %s\n",
							sub.SubscriptionID, plan.Code, sub.EndDate.Format("2006-01-02"))
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&slug, "slug", "", "school slug (lowercase letters, digits, hyphens)")
	cmd.Flags().StringVar(&name, "name", "", "school display name")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "email of the first ADMIN user")
	cmd.Flags().StringVar(&adminName, "admin-name", "", "full name of the first ADMIN user")
	cmd.Flags().StringVar(&planCode, "plan", "", "plan code for an initial ACTIVE subscription")
	cmd.Flags().IntVar(&months, "months", 12, "subscription length in months")
	_ = cmd.MarkFlagRequired("slug")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func toggleCommand(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <school-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid school id: %w", err)
			}

			return withDeps(cmd, func(ctx context.Context, e cliDeps) error {
				if active {
					err = e.schools.Activate(ctx, id)
				} else {
					err = e.schools.Deactivate(ctx, id)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "school %s %sd\n", id, use)
				return nil
			})
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
