// Package sweeps wires the sweep service and its notification sink for the binaries that run sweeps.
package sweeps

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	jobsrepo "github.com/zenGate-Global/schoolhub/domains/jobs/be/repo"
	jobsrunner "github.com/zenGate-Global/schoolhub/domains/jobs/be/runner"
	jobsservice "github.com/zenGate-Global/schoolhub/domains/jobs/be/service"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dedup"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/outbox"
	notificationsrepo "github.com/zenGate-Global/schoolhub/domains/notifications/be/repo"
	notifications "github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
	schoolsrepo "github.com/zenGate-Global/schoolhub/domains/schools/be/repo"
	schoolsservice "github.com/zenGate-Global/schoolhub/domains/schools/be/service"
	"github.com/zenGate-Global/schoolhub/platform/go/setups"
)

// Config holds the sweep settings shared by the worker and the CLI.
type Config struct {
	EnvKey         string        `env:"ENV_KEY,required"`
	Timezone       string        `env:"SCHOOL_TIMEZONE" envDefault:"UTC"`
	JobTimeout     time.Duration `env:"JOB_TIMEOUT" envDefault:"10m"`
	DedupTTL       time.Duration `env:"DEDUP_TTL" envDefault:"48h"`
	OutboxStream   string        `env:"OUTBOX_STREAM" envDefault:"notifications:outbox"`
	OutboxGroup    string        `env:"OUTBOX_GROUP" envDefault:"notification-dispatchers"`
	OutboxMaxLen   int64         `env:"OUTBOX_MAX_LEN" envDefault:"100000"`
	ExpiryCron     string        `env:"EXPIRY_CRON" envDefault:"0 9 * * *"`
	PaymentCron    string        `env:"PAYMENT_CRON" envDefault:"0 8 * * *"`
	DigestCron     string        `env:"DIGEST_CRON" envDefault:"0 7 * * 1"`
	AssignCron     string        `env:"ASSIGN_CRON" envDefault:"*/15 * * * *"`
	SchoolPageSize int           `env:"SCHOOL_PAGE_SIZE" envDefault:"200"`
}

// Location resolves SCHOOL_TIMEZONE.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RunnerConfig maps the cron settings onto the runner.
func (c Config) RunnerConfig(loc *time.Location) jobsrunner.Config {
	return jobsrunner.Config{
		Location: loc,
		Timeout:  c.JobTimeout,
		Schedules: map[jobsservice.Procedure]string{
			jobsservice.ProcedureSubscriptionExpiry:   c.ExpiryCron,
			jobsservice.ProcedurePaymentReminders:     c.PaymentCron,
			jobsservice.ProcedureAttendanceDigest:     c.DigestCron,
			jobsservice.ProcedureAssignCriticalIssues: c.AssignCron,
		},
	}
}

// Outbox builds the Redis stream outbox for consumer.
func (c Config) Outbox(client *redis.Client, consumer string) *outbox.RedisOutbox {
	return outbox.NewRedisOutbox(client, outbox.RedisConfig{
		Stream:   c.OutboxStream,
		Group:    c.OutboxGroup,
		Consumer: consumer,
		MaxLen:   c.OutboxMaxLen,
	})
}

// Deps is everything the sweep service is built from.
type Deps struct {
	Stores *setups.Stores
	Redis  *redis.Client
	Outbox *outbox.RedisOutbox
	Logger *zap.Logger
}

// NewSink builds the notification sink over Postgres and Redis. Intents for rows written inside
// a sweep transaction are published after it commits.
func NewSink(cfg Config, deps Deps) notifications.Sink {
	return notifications.New(
		notificationsrepo.NewPostgresRepository(deps.Stores.Notifications, deps.Stores.Users),
		outbox.PublishAfterCommit(deps.Outbox, deps.Logger),
		dedup.NewRedisDeduper(deps.Redis, cfg.DedupTTL),
		deps.Logger,
	)
}

// NewService builds the sweep service.
func NewService(cfg Config, loc *time.Location, deps Deps) *jobsservice.Service {
	schools := schoolsservice.New(schoolsrepo.NewPostgresRepository(deps.Stores.Schools), cfg.EnvKey)
	repo := jobsrepo.NewPostgresRepository(jobsrepo.Stores{
		DB:            deps.Stores.DB,
		Subscriptions: deps.Stores.Subscriptions,
		Payments:      deps.Stores.Payments,
		Users:         deps.Stores.Users,
		Resources:     deps.Stores.Resources,
		Attendance:    deps.Stores.Attendance,
		Issues:        deps.Stores.Issues,
	})
	return jobsservice.New(repo, schools, NewSink(cfg, deps), jobsservice.Config{
		Location:       loc,
		SchoolPageSize: cfg.SchoolPageSize,
	}, deps.Logger)
}
