package service

import (
	"context"
	"fmt"

	notifications "github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

// PaymentReminders reminds students of payments due soon and tells students and admins about
// overdue ones.
func (s *Service) PaymentReminders(ctx context.Context) (Report, error) {
	const p = ProcedurePaymentReminders
	var report Report
	today := s.Today()
	day := today.Format(dayLayout)

	dueSoon, err := s.repo.ListPendingPaymentsDueOn(ctx, today.AddDate(0, 0, s.cfg.PaymentReminderDays))
	if err != nil {
		return report, fmt.Errorf("list upcoming payments: %w", err)
	}
	report.Candidates += len(dueSoon)

	for _, pay := range dueSoon {
		s.notify(ctx, p, &report,
			fmt.Sprintf("payment-due:%s:%s:%s", pay.ID, day, pay.StudentUserID),
			notifications.Message{
				UserID:   pay.StudentUserID,
				Title:    "Payment due soon",
				Body:     fmt.Sprintf("Invoice %s for %s is due on %s.", pay.InvoiceNumber, pay.Amount.StringFixed(2), pay.DueDate.Format(dayLayout)),
				Severity: notifications.SeverityInfo,
			})
	}

	overdue, err := s.repo.ListOverduePayments(ctx, today)
	if err != nil {
		return report, fmt.Errorf("list overdue payments: %w", err)
	}
	report.Candidates += len(overdue)

	for _, pay := range overdue {
		daysOverdue := daysBetween(civilDay(pay.DueDate), today)
		amount := pay.Amount.StringFixed(2)

		s.notify(ctx, p, &report,
			fmt.Sprintf("payment-overdue:%s:%s:%s", pay.ID, day, pay.StudentUserID),
			notifications.Message{
				UserID:   pay.StudentUserID,
				Title:    "Payment overdue",
				Body:     fmt.Sprintf("Invoice %s for %s is %d %s overdue.", pay.InvoiceNumber, amount, daysOverdue, plural(daysOverdue, "day", "days")),
				Severity: notifications.SeverityWarning,
			})

		admins, err := s.repo.ListSchoolUsers(ctx, pay.SchoolID, RoleAdmin)
		if err != nil {
			s.stepFailed(ctx, p, &report, pay.ID, fmt.Errorf("list admins: %w", err))
			continue
		}
		for _, admin := range admins {
			s.notify(ctx, p, &report,
				fmt.Sprintf("payment-overdue:%s:%s:%s", pay.ID, day, admin.ID),
				notifications.Message{
					UserID:   admin.ID,
					Title:    "Student payment overdue",
					Body:     fmt.Sprintf("Invoice %s for %s is %d %s overdue.", pay.InvoiceNumber, amount, daysOverdue, plural(daysOverdue, "day", "days")),
					Severity: notifications.SeverityWarning,
				})
		}
	}

	return report, nil
}
