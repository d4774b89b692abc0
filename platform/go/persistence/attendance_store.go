package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttendanceTable holds daily attendance marks.
const AttendanceTable = "attendance_records"

// Attendance status values.
const (
	AttendancePresent = "PRESENT"
	AttendanceAbsent  = "ABSENT"
	AttendanceLate    = "LATE"
	AttendanceExcused = "EXCUSED"
)

// AttendanceRecord represents one student's mark for one day.
type AttendanceRecord struct {
	RecordID  uuid.UUID `db:"record_id"`
	SchoolID  uuid.UUID `db:"school_id"`
	StudentID uuid.UUID `db:"student_id"`
	Day       time.Time `db:"day"`
	Status    string    `db:"status"`
}

// AttendanceStore provides access to attendance records.
type AttendanceStore struct {
	db *DB
}

// NewAttendanceStore creates a store; assumes migrations already created the table.
func NewAttendanceStore(db *DB) (*AttendanceStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &AttendanceStore{db: db}, nil
}

// Record inserts an attendance mark.
func (s *AttendanceStore) Record(ctx context.Context, rec AttendanceRecord) (uuid.UUID, error) {
	if rec.RecordID == uuid.Nil {
		rec.RecordID = uuid.New()
	}
	query := fmt.Sprintf(`INSERT INTO %s (record_id, school_id, student_id, day, status) VALUES ($1, $2, $3, $4, $5)`, AttendanceTable)
	if _, err := s.db.Conn(ctx).Exec(ctx, query, rec.RecordID, rec.SchoolID, rec.StudentID, rec.Day, rec.Status); err != nil {
		return uuid.Nil, mapWriteError(err)
	}
	return rec.RecordID, nil
}

// CountAbsences counts ABSENT marks for the school with from <= day < to.
func (s *AttendanceStore) CountAbsences(ctx context.Context, schoolID uuid.UUID, from, to time.Time) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE school_id = $1 AND status = $2 AND day >= $3 AND day < $4`, AttendanceTable)
	var count int64
	if err := s.db.Conn(ctx).QueryRow(ctx, query, schoolID, AttendanceAbsent, from, to).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
