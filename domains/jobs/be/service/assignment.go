package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	notifications "github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

// AssignCriticalIssues hands each OPEN, CRITICAL, unassigned issue to the least-loaded super-admin.
// Admins are walked in id order and the first minimum wins; the tally is updated after every
// assignment so one batch spreads across admins.
func (s *Service) AssignCriticalIssues(ctx context.Context) (Report, error) {
	const p = ProcedureAssignCriticalIssues
	var report Report

	issues, err := s.repo.ListOpenCriticalUnassignedIssues(ctx)
	if err != nil {
		return report, fmt.Errorf("list critical issues: %w", err)
	}
	if len(issues) == 0 {
		return report, nil
	}

	admins, err := s.repo.ListSuperAdmins(ctx)
	if err != nil {
		return report, fmt.Errorf("list super-admins: %w", err)
	}
	if len(admins) == 0 {
		s.loggerFrom(ctx).Warn("no super-admins to assign critical issues to", zap.Int("issues", len(issues)))
		return Report{}, nil
	}
	sort.Slice(admins, func(i, j int) bool { return bytes.Compare(admins[i].ID[:], admins[j].ID[:]) < 0 })

	ids := make([]uuid.UUID, len(admins))
	for i, a := range admins {
		ids[i] = a.ID
	}
	tally, err := s.repo.Workloads(ctx, ids)
	if err != nil {
		return report, fmt.Errorf("load workloads: %w", err)
	}
	if tally == nil {
		tally = make(map[uuid.UUID]int64, len(admins))
	}

	report.Candidates = len(issues)
	for _, issue := range issues {
		assignee := leastLoaded(admins, tally)

		// The assignment and the assignee's notice commit together.
		err := s.repo.InTx(ctx, func(ctx context.Context) error {
			if err := s.repo.AssignIssue(ctx, issue.ID, assignee.ID, issue.Version); err != nil {
				return fmt.Errorf("assign: %w", err)
			}
			_, err := s.sendAll(ctx, []User{assignee}, func(u User) notifications.Message {
				return notifications.Message{
					UserID:   u.ID,
					Title:    "Critical issue assigned",
					Body:     fmt.Sprintf("Critical issue %q has been assigned to you and is now in progress.", issue.Title),
					Severity: notifications.SeverityCritical,
				}
			})
			return err
		})
		if err != nil {
			s.stepFailed(ctx, p, &report, issue.ID, err)
			continue
		}
		tally[assignee.ID]++
		report.Mutated++
		report.Notified++
	}

	return report, nil
}

// leastLoaded returns the first admin, in order, with the smallest tally.
func leastLoaded(admins []User, tally map[uuid.UUID]int64) User {
	best := admins[0]
	for _, a := range admins[1:] {
		if tally[a.ID] < tally[best.ID] {
			best = a
		}
	}
	return best
}
