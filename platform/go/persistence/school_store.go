package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SchoolsTable holds the tenant registry.
const SchoolsTable = "schools"

// SchoolRecord represents a tenant row.
type SchoolRecord struct {
	SchoolID     uuid.UUID `db:"school_id"`
	Slug         string    `db:"slug"`
	Name         string    `db:"name"`
	IsActive     bool      `db:"is_active"`
	RegisteredAt time.Time `db:"registered_at"`
}

// SchoolStore provides access to the schools table.
type SchoolStore struct {
	db *DB
}

// NewSchoolStore creates a store; assumes migrations already created the table.
func NewSchoolStore(db *DB) (*SchoolStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &SchoolStore{db: db}, nil
}

// Create inserts a school.
func (s *SchoolStore) Create(ctx context.Context, rec SchoolRecord) (SchoolRecord, error) {
	if rec.SchoolID == uuid.Nil {
		rec.SchoolID = uuid.New()
	}
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (school_id, slug, name, is_active, registered_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING school_id, slug, name, is_active, registered_at
    `, SchoolsTable)

	out, err := scanSchool(s.db.Conn(ctx).QueryRow(ctx, query, rec.SchoolID, rec.Slug, rec.Name, rec.IsActive, rec.RegisteredAt))
	if err != nil {
		return SchoolRecord{}, mapWriteError(err)
	}
	return out, nil
}

// Get returns a school regardless of its active flag.
func (s *SchoolStore) Get(ctx context.Context, id uuid.UUID) (SchoolRecord, error) {
	query := fmt.Sprintf(`SELECT school_id, slug, name, is_active, registered_at FROM %s WHERE school_id = $1`, SchoolsTable)
	return scanSchool(s.db.Conn(ctx).QueryRow(ctx, query, id))
}

// SetActive toggles the soft-deactivation flag.
func (s *SchoolStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := fmt.Sprintf(`UPDATE %s SET is_active = $2 WHERE school_id = $1`, SchoolsTable)
	tag, err := s.db.Conn(ctx).Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveIDs returns up to limit active school ids strictly greater than after, in id order.
// Pass uuid.Nil to start from the beginning.
func (s *SchoolStore) ListActiveIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT school_id FROM %s
        WHERE is_active = TRUE AND school_id > $1
        ORDER BY school_id
        LIMIT %d`, SchoolsTable, limit)

	rows, err := s.db.Conn(ctx).Query(ctx, query, after)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// LockForUpdate takes a row lock on the school for the rest of the current transaction.
// It must be called with a transaction on ctx.
func (s *SchoolStore) LockForUpdate(ctx context.Context, id uuid.UUID) error {
	if !InTx(ctx) {
		return errors.New("lock school: transaction required")
	}
	query := fmt.Sprintf(`SELECT school_id FROM %s WHERE school_id = $1 FOR UPDATE`, SchoolsTable)
	var locked uuid.UUID
	if err := s.db.Conn(ctx).QueryRow(ctx, query, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func scanSchool(row pgx.Row) (SchoolRecord, error) {
	var rec SchoolRecord
	if err := row.Scan(&rec.SchoolID, &rec.Slug, &rec.Name, &rec.IsActive, &rec.RegisteredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SchoolRecord{}, ErrNotFound
		}
		return SchoolRecord{}, err
	}
	return rec, nil
}
