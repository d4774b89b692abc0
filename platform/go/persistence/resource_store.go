package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ResourceKind names a countable, plan-capped resource.
type ResourceKind string

const (
	ResourceStudents ResourceKind = "students"
	ResourceTeachers ResourceKind = "teachers"
	ResourceClasses  ResourceKind = "classes"
)

// resourceTables maps each countable kind to its table.
var resourceTables = map[ResourceKind]string{
	ResourceStudents: "students",
	ResourceTeachers: "teachers",
	ResourceClasses:  "classrooms",
}

// DocumentsTable holds uploaded document metadata.
const DocumentsTable = "documents"

// ResourceStore counts and creates the resources capped by subscription plans.
// Counts are always live; there is no cached quota.
type ResourceStore struct {
	db *DB
}

// NewResourceStore creates a store; assumes migrations already created the tables.
func NewResourceStore(db *DB) (*ResourceStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &ResourceStore{db: db}, nil
}

// CountByKind returns the number of rows of kind owned by the school.
func (s *ResourceStore) CountByKind(ctx context.Context, schoolID uuid.UUID, kind ResourceKind) (int64, error) {
	table, ok := resourceTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown resource kind %q", kind)
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE school_id = $1`, table)
	var count int64
	if err := s.db.Conn(ctx).QueryRow(ctx, query, schoolID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SumDocumentBytes returns the total size of the school's stored documents.
func (s *ResourceStore) SumDocumentBytes(ctx context.Context, schoolID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(`SELECT COALESCE(SUM(size_bytes), 0)::bigint FROM %s WHERE school_id = $1`, DocumentsTable)
	var total int64
	if err := s.db.Conn(ctx).QueryRow(ctx, query, schoolID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// CreateStudent inserts a student row and returns its id.
func (s *ResourceStore) CreateStudent(ctx context.Context, schoolID, userID uuid.UUID, fullName string) (uuid.UUID, error) {
	return s.insert(ctx, `INSERT INTO students (student_id, school_id, user_id, full_name) VALUES ($1, $2, $3, $4)`,
		schoolID, userID, fullName)
}

// CreateTeacher inserts a teacher row and returns its id.
func (s *ResourceStore) CreateTeacher(ctx context.Context, schoolID, userID uuid.UUID) (uuid.UUID, error) {
	return s.insert(ctx, `INSERT INTO teachers (teacher_id, school_id, user_id) VALUES ($1, $2, $3)`, schoolID, userID)
}

// CreateClassroom inserts a classroom row and returns its id.
func (s *ResourceStore) CreateClassroom(ctx context.Context, schoolID uuid.UUID, name string) (uuid.UUID, error) {
	return s.insert(ctx, `INSERT INTO classrooms (class_id, school_id, name) VALUES ($1, $2, $3)`, schoolID, name)
}

// CreateDocument records an uploaded document's metadata and returns its id.
func (s *ResourceStore) CreateDocument(ctx context.Context, schoolID uuid.UUID, objectKey string, sizeBytes int64) (uuid.UUID, error) {
	return s.insert(ctx, `INSERT INTO documents (document_id, school_id, object_key, size_bytes) VALUES ($1, $2, $3, $4)`,
		schoolID, objectKey, sizeBytes)
}

func (s *ResourceStore) insert(ctx context.Context, query string, args ...any) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := s.db.Conn(ctx).Exec(ctx, query, append([]any{id}, args...)...); err != nil {
		return uuid.Nil, mapWriteError(err)
	}
	return id, nil
}
