package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UsersTable holds every account, school-scoped or platform-wide.
const UsersTable = "users"

// Role values stored in users.role.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleTeacher    = "TEACHER"
	RoleStudent    = "STUDENT"
	RoleParent     = "PARENT"
)

// UserRecord represents a user row. SchoolID is nil only for super-admins.
type UserRecord struct {
	UserID    uuid.UUID  `db:"user_id"`
	SchoolID  *uuid.UUID `db:"school_id"`
	Email     string     `db:"email"`
	FullName  string     `db:"full_name"`
	Role      string     `db:"role"`
	CreatedAt time.Time  `db:"created_at"`
}

// UserStore provides access to the users table.
type UserStore struct {
	db *DB
}

// NewUserStore creates a store; assumes migrations already created the table.
func NewUserStore(db *DB) (*UserStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &UserStore{db: db}, nil
}

const userColumns = "user_id, school_id, email, full_name, role, created_at"

// Create inserts a user.
func (s *UserStore) Create(ctx context.Context, rec UserRecord) (UserRecord, error) {
	if rec.UserID == uuid.Nil {
		rec.UserID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, UsersTable, userColumns, userColumns)

	out, err := scanUser(s.db.Conn(ctx).QueryRow(ctx, query, rec.UserID, rec.SchoolID, rec.Email, rec.FullName, rec.Role, rec.CreatedAt))
	if err != nil {
		return UserRecord{}, mapWriteError(err)
	}
	return out, nil
}

// Get fetches a user by id.
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (UserRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1`, userColumns, UsersTable)
	return scanUser(s.db.Conn(ctx).QueryRow(ctx, query, id))
}

// ListBySchoolAndRoles returns the school's users holding any of roles, ordered by id.
func (s *UserStore) ListBySchoolAndRoles(ctx context.Context, schoolID uuid.UUID, roles ...string) ([]UserRecord, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE school_id = $1 AND role = ANY($2) ORDER BY user_id`, userColumns, UsersTable)
	return s.list(ctx, query, schoolID, roles)
}

// ListSuperAdmins returns every platform super-admin ordered by id.
func (s *UserStore) ListSuperAdmins(ctx context.Context) ([]UserRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE role = $1 ORDER BY user_id`, userColumns, UsersTable)
	return s.list(ctx, query, RoleSuperAdmin)
}

func (s *UserStore) list(ctx context.Context, query string, args ...any) ([]UserRecord, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserRecord
	for rows.Next() {
		rec, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (UserRecord, error) {
	var rec UserRecord
	if err := row.Scan(&rec.UserID, &rec.SchoolID, &rec.Email, &rec.FullName, &rec.Role, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrNotFound
		}
		return UserRecord{}, err
	}
	return rec, nil
}
