package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	notifications "github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

// Digest is the weekly attendance summary of one school.
type Digest struct {
	TotalStudents  int64
	TotalAbsences  int64
	AttendanceRate float64
}

// ComputeDigest derives the attendance rate over windowDays; zero students yield a zero rate.
func ComputeDigest(students, absences int64, windowDays int) Digest {
	d := Digest{TotalStudents: students, TotalAbsences: absences}
	possible := float64(students) * float64(windowDays)
	if possible <= 0 {
		return d
	}
	d.AttendanceRate = (possible - float64(absences)) / possible * 100
	return d
}

// AttendanceDigest sends every admin and teacher of each active school the trailing-week summary.
func (s *Service) AttendanceDigest(ctx context.Context) (Report, error) {
	const p = ProcedureAttendanceDigest
	var report Report
	today := s.Today()
	from := today.AddDate(0, 0, -s.cfg.DigestWindowDays)
	year, week := today.ISOWeek()
	weekKey := fmt.Sprintf("%d-W%02d", year, week)

	err := s.schools.ForEachActive(ctx, s.cfg.SchoolPageSize, func(ctx context.Context, schoolID uuid.UUID) error {
		report.Candidates++

		students, err := s.repo.CountStudents(ctx, schoolID)
		if err != nil {
			s.stepFailed(ctx, p, &report, schoolID, fmt.Errorf("count students: %w", err))
			return nil
		}
		absences, err := s.repo.CountAbsences(ctx, schoolID, from, today)
		if err != nil {
			s.stepFailed(ctx, p, &report, schoolID, fmt.Errorf("count absences: %w", err))
			return nil
		}
		digest := ComputeDigest(students, absences, s.cfg.DigestWindowDays)

		recipients, err := s.repo.ListSchoolUsers(ctx, schoolID, RoleAdmin, RoleTeacher)
		if err != nil {
			s.stepFailed(ctx, p, &report, schoolID, fmt.Errorf("list recipients: %w", err))
			return nil
		}

		body := fmt.Sprintf("Attendance from %s to %s: %d students, %d absences, attendance rate %.2f%%.",
			from.Format(dayLayout), today.AddDate(0, 0, -1).Format(dayLayout),
			digest.TotalStudents, digest.TotalAbsences, digest.AttendanceRate)
		for _, user := range recipients {
			s.notify(ctx, p, &report,
				fmt.Sprintf("attendance-digest:%s:%s:%s", schoolID, weekKey, user.ID),
				notifications.Message{
					UserID:   user.ID,
					Title:    "Weekly attendance digest " + weekKey,
					Body:     body,
					Severity: notifications.SeverityInfo,
				})
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("enumerate schools: %w", err)
	}
	return report, nil
}
