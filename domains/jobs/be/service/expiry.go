package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	notifications "github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

// SubscriptionExpiry warns admins about subscriptions ending within the warning window and
// expires ACTIVE subscriptions whose end date has passed.
func (s *Service) SubscriptionExpiry(ctx context.Context) (Report, error) {
	const p = ProcedureSubscriptionExpiry
	var report Report
	today := s.Today()

	expiring, err := s.repo.ListActiveSubscriptionsEndingBetween(ctx, today, today.AddDate(0, 0, s.cfg.ExpiryWarningDays))
	if err != nil {
		return report, fmt.Errorf("list expiring subscriptions: %w", err)
	}
	report.Candidates += len(expiring)

	for _, sub := range expiring {
		daysRemaining := daysBetween(today, civilDay(sub.EndDate))
		if daysRemaining <= 0 || daysRemaining > s.cfg.ExpiryWarningDays {
			continue
		}

		admins, err := s.repo.ListSchoolUsers(ctx, sub.SchoolID, RoleAdmin)
		if err != nil {
			s.stepFailed(ctx, p, &report, sub.ID, fmt.Errorf("list admins: %w", err))
			continue
		}
		for _, admin := range admins {
			s.notify(ctx, p, &report,
				fmt.Sprintf("subscription-expiring:%s:%s:%s", sub.ID, today.Format(dayLayout), admin.ID),
				notifications.Message{
					UserID:   admin.ID,
					Title:    "Subscription expiring soon",
					Body:     fmt.Sprintf("Your %s subscription expires in %d %s, on %s.", sub.PlanName, daysRemaining, plural(daysRemaining, "day", "days"), sub.EndDate.Format(dayLayout)),
					Severity: notifications.SeverityWarning,
				})
		}
	}

	expired, err := s.repo.ListActiveSubscriptionsEndedBefore(ctx, today)
	if err != nil {
		return report, fmt.Errorf("list expired subscriptions: %w", err)
	}
	report.Candidates += len(expired)

	// Expiry and its notices commit together: a failure leaves the subscription ACTIVE and the
	// next run retries both, so every admin gets exactly one notice.
	for _, sub := range expired {
		admins, err := s.repo.ListSchoolUsers(ctx, sub.SchoolID, RoleAdmin)
		if err != nil {
			s.stepFailed(ctx, p, &report, sub.ID, fmt.Errorf("list admins: %w", err))
			continue
		}

		var sent int
		err = s.repo.InTx(ctx, func(ctx context.Context) error {
			if err := s.repo.ExpireSubscription(ctx, sub.ID, sub.Version); err != nil {
				if errors.Is(err, ErrStaleVersion) {
					return fmt.Errorf("subscription changed concurrently: %w", err)
				}
				return err
			}
			n, err := s.sendAll(ctx, admins, func(admin User) notifications.Message {
				return notifications.Message{
					UserID:   admin.ID,
					Title:    "Subscription expired",
					Body:     fmt.Sprintf("Your %s subscription expired on %s. Renew it to keep adding students, teachers and classes.", sub.PlanName, sub.EndDate.Format(dayLayout)),
					Severity: notifications.SeverityCritical,
				}
			})
			sent = n
			return err
		})
		if err != nil {
			s.stepFailed(ctx, p, &report, sub.ID, err)
			continue
		}

		report.Mutated++
		report.Notified += sent
		s.loggerFrom(ctx).Info("subscription expired",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("school_id", sub.SchoolID.String()),
			zap.Int("admins_notified", sent),
		)
	}

	return report, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
