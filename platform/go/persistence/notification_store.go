package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// NotificationsTable holds in-app notifications and their delivery state.
const NotificationsTable = "notifications"

// NotificationRecord represents a notification row.
type NotificationRecord struct {
	NotificationID uuid.UUID  `db:"notification_id"`
	UserID         uuid.UUID  `db:"user_id"`
	Title          string     `db:"title"`
	Message        string     `db:"message"`
	Severity       string     `db:"severity"`
	CreatedAt      time.Time  `db:"created_at"`
	ReadAt         *time.Time `db:"read_at"`
	DeliveredAt    *time.Time `db:"delivered_at"`
	Attempts       int        `db:"attempts"`
	LastAttemptAt  *time.Time `db:"last_attempt_at"`
	DeadLetteredAt *time.Time `db:"dead_lettered_at"`
}

// NotificationStore provides access to notifications.
type NotificationStore struct {
	db *DB
}

// NewNotificationStore creates a store; assumes migrations already created the table.
func NewNotificationStore(db *DB) (*NotificationStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &NotificationStore{db: db}, nil
}

const notificationColumns = "notification_id, user_id, title, message, severity, created_at, read_at, delivered_at, attempts, last_attempt_at, dead_lettered_at"

// Create inserts an undelivered notification.
func (s *NotificationStore) Create(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	if rec.NotificationID == uuid.Nil {
		rec.NotificationID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
        INSERT INTO %s (notification_id, user_id, title, message, severity, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, NotificationsTable, notificationColumns)

	out, err := scanNotification(s.db.Conn(ctx).QueryRow(ctx, query,
		rec.NotificationID, rec.UserID, rec.Title, rec.Message, rec.Severity, rec.CreatedAt))
	if err != nil {
		return NotificationRecord{}, mapWriteError(err)
	}
	return out, nil
}

// Get fetches a notification by id.
func (s *NotificationStore) Get(ctx context.Context, id uuid.UUID) (NotificationRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE notification_id = $1`, notificationColumns, NotificationsTable)
	return scanNotification(s.db.Conn(ctx).QueryRow(ctx, query, id))
}

// MarkDelivered stamps delivered_at once; a second call leaves the first timestamp intact.
func (s *NotificationStore) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET delivered_at = COALESCE(delivered_at, $2) WHERE notification_id = $1`, NotificationsTable)
	tag, err := s.db.Conn(ctx).Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimStale stamps last_attempt_at = now on up to limit undelivered, live rows whose last
// attempt (or creation, if never attempted) is older than cutoff, least recently tried first,
// and returns them. Claimed rows move to the back of the queue, so rows that keep failing
// cannot starve newer ones. Concurrent claimers skip each other's rows.
func (s *NotificationStore) ClaimStale(ctx context.Context, cutoff, now time.Time, limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
        UPDATE %[1]s SET last_attempt_at = $2
        WHERE notification_id IN (
            SELECT notification_id FROM %[1]s
            WHERE delivered_at IS NULL AND dead_lettered_at IS NULL
              AND COALESCE(last_attempt_at, created_at) < $1
            ORDER BY COALESCE(last_attempt_at, created_at), notification_id
            LIMIT %[2]d
            FOR UPDATE SKIP LOCKED
        )
        RETURNING %[3]s`, NotificationsTable, limit, notificationColumns)
	return s.list(ctx, query, cutoff, now)
}

// RecordFailedAttempt counts a failed delivery of an undelivered row and dead-letters it once
// attempts reaches maxAttempts. It reports whether the row is now dead-lettered.
func (s *NotificationStore) RecordFailedAttempt(ctx context.Context, id uuid.UUID, at time.Time, maxAttempts int) (bool, error) {
	query := fmt.Sprintf(`
        UPDATE %s SET attempts = attempts + 1, last_attempt_at = $2,
            dead_lettered_at = CASE WHEN attempts + 1 >= $3 THEN $2 ELSE dead_lettered_at END
        WHERE notification_id = $1 AND delivered_at IS NULL
        RETURNING dead_lettered_at IS NOT NULL`, NotificationsTable)

	var dead bool
	if err := s.db.Conn(ctx).QueryRow(ctx, query, id, at, maxAttempts).Scan(&dead); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return dead, nil
}

func (s *NotificationStore) list(ctx context.Context, query string, args ...any) ([]NotificationRecord, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationRecord
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanNotification(row pgx.Row) (NotificationRecord, error) {
	var rec NotificationRecord
	if err := row.Scan(&rec.NotificationID, &rec.UserID, &rec.Title, &rec.Message, &rec.Severity,
		&rec.CreatedAt, &rec.ReadAt, &rec.DeliveredAt, &rec.Attempts, &rec.LastAttemptAt, &rec.DeadLetteredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NotificationRecord{}, ErrNotFound
		}
		return NotificationRecord{}, err
	}
	return rec, nil
}
