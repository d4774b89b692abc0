package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dispatcher"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
)

// PostgresRepository stores notifications and resolves recipients through the shared persistence layer.
type PostgresRepository struct {
	notifications *persistence.NotificationStore
	users         *persistence.UserStore
}

// NewPostgresRepository constructs a repository backed by NotificationStore and UserStore.
func NewPostgresRepository(notifications *persistence.NotificationStore, users *persistence.UserStore) *PostgresRepository {
	if notifications == nil {
		panic("notification store is required")
	}
	if users == nil {
		panic("user store is required")
	}
	return &PostgresRepository{notifications: notifications, users: users}
}

func (r *PostgresRepository) Create(ctx context.Context, n service.Notification) (service.Notification, error) {
	rec, err := r.notifications.Create(ctx, persistence.NotificationRecord{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Title:          n.Title,
		Message:        n.Body,
		Severity:       string(n.Severity),
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		return service.Notification{}, err
	}
	return toServiceNotification(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Notification, error) {
	rec, err := r.notifications.Get(ctx, id)
	if err != nil {
		return service.Notification{}, mapNotFound(err)
	}
	return toServiceNotification(rec), nil
}

func (r *PostgresRepository) Recipient(ctx context.Context, userID uuid.UUID) (dispatcher.Recipient, error) {
	user, err := r.users.Get(ctx, userID)
	if err != nil {
		return dispatcher.Recipient{}, mapNotFound(err)
	}
	return dispatcher.Recipient{Email: user.Email, Name: user.FullName}, nil
}

func (r *PostgresRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	return mapNotFound(r.notifications.MarkDelivered(ctx, id, at))
}

func (r *PostgresRepository) ClaimStale(ctx context.Context, cutoff, now time.Time, limit int) ([]service.Notification, error) {
	recs, err := r.notifications.ClaimStale(ctx, cutoff, now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]service.Notification, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceNotification(rec))
	}
	return out, nil
}

func (r *PostgresRepository) RecordFailure(ctx context.Context, id uuid.UUID, at time.Time, maxAttempts int) (bool, error) {
	dead, err := r.notifications.RecordFailedAttempt(ctx, id, at, maxAttempts)
	return dead, mapNotFound(err)
}

func toServiceNotification(rec persistence.NotificationRecord) service.Notification {
	return service.Notification{
		ID:          rec.NotificationID,
		UserID:      rec.UserID,
		Title:       rec.Title,
		Body:        rec.Message,
		Severity:    service.Severity(rec.Severity),
		CreatedAt:   rec.CreatedAt,
		DeliveredAt: rec.DeliveredAt,

		Attempts:       rec.Attempts,
		LastAttemptAt:  rec.LastAttemptAt,
		DeadLetteredAt: rec.DeadLetteredAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

// Ensure interface compliance.
var (
	_ service.Repository = (*PostgresRepository)(nil)
	_ dispatcher.Store   = (*PostgresRepository)(nil)
)
