package jobscmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/schoolhub/apps/internal/sweeps"
	jobsrunner "github.com/zenGate-Global/schoolhub/domains/jobs/be/runner"
	jobsservice "github.com/zenGate-Global/schoolhub/domains/jobs/be/service"
	platformlogging "github.com/zenGate-Global/schoolhub/platform/go/logging"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
	"github.com/zenGate-Global/schoolhub/platform/go/setups"
)

// Command groups sweep helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Scheduled sweep utilities (list, run)",
	}

	cmd.AddCommand(listCommand())
	cmd.AddCommand(runCommand())
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sweep procedures and their default schedules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schedules := jobsrunner.DefaultSchedules()
			for _, p := range jobsservice.Procedures() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", p, schedules[p])
			}
			return nil
		},
	}
}

func runCommand() *cobra.Command {
	var (
		databaseURL string
		logLevel    string
	)

	names := make([]string, 0, 4)
	for _, p := range jobsservice.Procedures() {
		names = append(names, string(p))
	}

	cmd := &cobra.Command{
		Use:       "run <procedure>",
		Short:     "Run one sweep now, outside the schedule",
		Long:      "Run one sweep now. Sweep settings (ENV_KEY, SCHOOL_TIMEZONE, REDIS_ADDR, ...) are read from the environment like the worker.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			procedure, err := jobsservice.ParseProcedure(args[0])
			if err != nil {
				return fmt.Errorf("%w (want one of %s)", err, strings.Join(names, ", "))
			}

			var cfg sweeps.Config
			if err := env.Parse(&cfg); err != nil {
				return fmt.Errorf("load sweep config: %w", err)
			}
			var redisCfg setups.RedisConfig
			if err := env.Parse(&redisCfg); err != nil {
				return fmt.Errorf("load redis config: %w", err)
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: logLevel})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx := context.Background()
			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL, ApplicationName: "schoolhub-cli"})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			stores, err := setups.NewStores(persistence.NewDB(pool))
			if err != nil {
				return err
			}
			redisClient, err := setups.NewRedisClient(ctx, redisCfg)
			if err != nil {
				return err
			}
			defer redisClient.Close()

			deps := sweeps.Deps{Stores: stores, Redis: redisClient, Outbox: cfg.Outbox(redisClient, "cli"), Logger: logger}
			runner := jobsrunner.New(sweeps.NewService(cfg, loc, deps), nil, cfg.RunnerConfig(loc), logger)

			report, err := runner.RunOnce(ctx, procedure)
			if err != nil {
				return err
			}
			logger.Debug("sweep report", zap.Any("report", report))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: candidates=%d notified=%d mutated=%d failed=%d\n",
				procedure, report.Candidates, report.Notified, report.Mutated, report.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string (defaults to DATABASE_URL)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}
