package setups

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
)

// Stores bundles every persistence store over one DB handle, so binaries wire them once.
type Stores struct {
	DB            *persistence.DB
	Schools       *persistence.SchoolStore
	Plans         *persistence.PlanStore
	Subscriptions *persistence.SubscriptionStore
	Resources     *persistence.ResourceStore
	Users         *persistence.UserStore
	Payments      *persistence.PaymentStore
	Attendance    *persistence.AttendanceStore
	Issues        *persistence.IssueStore
	Notifications *persistence.NotificationStore
}

// NewStores builds every store on db.
func NewStores(db *persistence.DB) (*Stores, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}

	s := &Stores{DB: db}
	var err error
	if s.Schools, err = persistence.NewSchoolStore(db); err != nil {
		return nil, fmt.Errorf("school store: %w", err)
	}
	if s.Plans, err = persistence.NewPlanStore(db); err != nil {
		return nil, fmt.Errorf("plan store: %w", err)
	}
	if s.Subscriptions, err = persistence.NewSubscriptionStore(db); err != nil {
		return nil, fmt.Errorf("subscription store: %w", err)
	}
	if s.Resources, err = persistence.NewResourceStore(db); err != nil {
		return nil, fmt.Errorf("resource store: %w", err)
	}
	if s.Users, err = persistence.NewUserStore(db); err != nil {
		return nil, fmt.Errorf("user store: %w", err)
	}
	if s.Payments, err = persistence.NewPaymentStore(db); err != nil {
		return nil, fmt.Errorf("payment store: %w", err)
	}
	if s.Attendance, err = persistence.NewAttendanceStore(db); err != nil {
		return nil, fmt.Errorf("attendance store: %w", err)
	}
	if s.Issues, err = persistence.NewIssueStore(db); err != nil {
		return nil, fmt.Errorf("issue store: %w", err)
	}
	if s.Notifications, err = persistence.NewNotificationStore(db); err != nil {
		return nil, fmt.Errorf("notification store: %w", err)
	}
	return s, nil
}

// RedisConfig addresses the Redis instance backing the outbox and dedup keys.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// NewRedisClient connects and pings; the client is closed again when the ping fails.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
