package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IssuesTable holds support issues raised by schools.
const IssuesTable = "issues"

// Issue priority and status values.
const (
	IssuePriorityLow      = "LOW"
	IssuePriorityMedium   = "MEDIUM"
	IssuePriorityHigh     = "HIGH"
	IssuePriorityCritical = "CRITICAL"

	IssueOpen       = "OPEN"
	IssueInProgress = "IN_PROGRESS"
	IssueResolved   = "RESOLVED"
	IssueClosed     = "CLOSED"
)

// IssueRecord represents an issue row. AssigneeID, when set, references a super-admin.
type IssueRecord struct {
	IssueID    uuid.UUID  `db:"issue_id"`
	SchoolID   uuid.UUID  `db:"school_id"`
	ReporterID uuid.UUID  `db:"reporter_id"`
	AssigneeID *uuid.UUID `db:"assignee_id"`
	Title      string     `db:"title"`
	Priority   string     `db:"priority"`
	Status     string     `db:"status"`
	Version    int64      `db:"version"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// IssueStore provides access to issues.
type IssueStore struct {
	db *DB
}

// NewIssueStore creates a store; assumes migrations already created the table.
func NewIssueStore(db *DB) (*IssueStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &IssueStore{db: db}, nil
}

const issueColumns = "issue_id, school_id, reporter_id, assignee_id, title, priority, status, version, created_at, updated_at"

// Create inserts an issue.
func (s *IssueStore) Create(ctx context.Context, rec IssueRecord) (IssueRecord, error) {
	if rec.IssueID == uuid.Nil {
		rec.IssueID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = IssueOpen
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
        INSERT INTO %s (issue_id, school_id, reporter_id, assignee_id, title, priority, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
        RETURNING %s
    `, IssuesTable, issueColumns)

	out, err := scanIssue(s.db.Conn(ctx).QueryRow(ctx, query,
		rec.IssueID, rec.SchoolID, rec.ReporterID, rec.AssigneeID, rec.Title, rec.Priority, rec.Status, rec.CreatedAt))
	if err != nil {
		return IssueRecord{}, mapWriteError(err)
	}
	return out, nil
}

// Get fetches an issue by id.
func (s *IssueStore) Get(ctx context.Context, id uuid.UUID) (IssueRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE issue_id = $1`, issueColumns, IssuesTable)
	return scanIssue(s.db.Conn(ctx).QueryRow(ctx, query, id))
}

// ListOpenCriticalUnassigned returns OPEN, CRITICAL, unassigned issues oldest first.
func (s *IssueStore) ListOpenCriticalUnassigned(ctx context.Context) ([]IssueRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE status = $1 AND priority = $2 AND assignee_id IS NULL
        ORDER BY created_at, issue_id`, issueColumns, IssuesTable)

	rows, err := s.db.Conn(ctx).Query(ctx, query, IssueOpen, IssuePriorityCritical)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IssueRecord
	for rows.Next() {
		rec, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// WorkloadByAssignee counts OPEN and IN_PROGRESS issues per assignee. Assignees with no
// load are absent from the result.
func (s *IssueStore) WorkloadByAssignee(ctx context.Context, assignees []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(assignees))
	if len(assignees) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT assignee_id, COUNT(*) FROM %s
        WHERE assignee_id = ANY($1) AND status IN ($2, $3)
        GROUP BY assignee_id`, IssuesTable)

	rows, err := s.db.Conn(ctx).Query(ctx, query, assignees, IssueOpen, IssueInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		out[id] = count
	}
	return out, rows.Err()
}

// Assign sets the assignee and moves the issue to IN_PROGRESS if it is still unassigned
// at expectedVersion; otherwise ErrStaleVersion.
func (s *IssueStore) Assign(ctx context.Context, issueID, assigneeID uuid.UUID, expectedVersion int64) (IssueRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s SET assignee_id = $3, status = $4, version = version + 1, updated_at = NOW()
        WHERE issue_id = $1 AND version = $2 AND assignee_id IS NULL
        RETURNING %s
    `, IssuesTable, issueColumns)

	out, err := scanIssue(s.db.Conn(ctx).QueryRow(ctx, query, issueID, expectedVersion, assigneeID, IssueInProgress))
	if errors.Is(err, ErrNotFound) {
		return IssueRecord{}, ErrStaleVersion
	}
	return out, err
}

func scanIssue(row pgx.Row) (IssueRecord, error) {
	var rec IssueRecord
	if err := row.Scan(&rec.IssueID, &rec.SchoolID, &rec.ReporterID, &rec.AssigneeID, &rec.Title, &rec.Priority,
		&rec.Status, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IssueRecord{}, ErrNotFound
		}
		return IssueRecord{}, err
	}
	return rec, nil
}
