package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/schoolhub/domains/jobs/be/service"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
)

// Stores groups the persistence stores the sweeps read and write.
type Stores struct {
	DB            *persistence.DB
	Subscriptions *persistence.SubscriptionStore
	Payments      *persistence.PaymentStore
	Users         *persistence.UserStore
	Resources     *persistence.ResourceStore
	Attendance    *persistence.AttendanceStore
	Issues        *persistence.IssueStore
}

// PostgresRepository adapts the shared persistence stores to the sweep repository.
type PostgresRepository struct {
	stores Stores
}

// NewPostgresRepository constructs the repository; every store is required.
func NewPostgresRepository(stores Stores) *PostgresRepository {
	switch {
	case stores.DB == nil:
		panic("db is required")
	case stores.Subscriptions == nil:
		panic("subscription store is required")
	case stores.Payments == nil:
		panic("payment store is required")
	case stores.Users == nil:
		panic("user store is required")
	case stores.Resources == nil:
		panic("resource store is required")
	case stores.Attendance == nil:
		panic("attendance store is required")
	case stores.Issues == nil:
		panic("issue store is required")
	}
	return &PostgresRepository{stores: stores}
}

func (r *PostgresRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.stores.DB.WithTx(ctx, fn)
}

func (r *PostgresRepository) ListActiveSubscriptionsEndingBetween(ctx context.Context, from, to time.Time) ([]service.Subscription, error) {
	recs, err := r.stores.Subscriptions.ListActiveEndingBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return toSubscriptions(recs), nil
}

func (r *PostgresRepository) ListActiveSubscriptionsEndedBefore(ctx context.Context, day time.Time) ([]service.Subscription, error) {
	recs, err := r.stores.Subscriptions.ListActiveEndedBefore(ctx, day)
	if err != nil {
		return nil, err
	}
	return toSubscriptions(recs), nil
}

func (r *PostgresRepository) ExpireSubscription(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	_, err := r.stores.Subscriptions.MarkExpired(ctx, id, expectedVersion)
	return mapStale(err)
}

func (r *PostgresRepository) ListPendingPaymentsDueOn(ctx context.Context, day time.Time) ([]service.Payment, error) {
	recs, err := r.stores.Payments.ListPendingDueOn(ctx, day)
	if err != nil {
		return nil, err
	}
	return toPayments(recs), nil
}

func (r *PostgresRepository) ListOverduePayments(ctx context.Context, day time.Time) ([]service.Payment, error) {
	recs, err := r.stores.Payments.ListOverdue(ctx, day)
	if err != nil {
		return nil, err
	}
	return toPayments(recs), nil
}

func (r *PostgresRepository) ListSchoolUsers(ctx context.Context, schoolID uuid.UUID, roles ...service.Role) ([]service.User, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	recs, err := r.stores.Users.ListBySchoolAndRoles(ctx, schoolID, names...)
	if err != nil {
		return nil, err
	}
	return toUsers(recs), nil
}

func (r *PostgresRepository) CountStudents(ctx context.Context, schoolID uuid.UUID) (int64, error) {
	return r.stores.Resources.CountByKind(ctx, schoolID, persistence.ResourceStudents)
}

func (r *PostgresRepository) CountAbsences(ctx context.Context, schoolID uuid.UUID, from, to time.Time) (int64, error) {
	return r.stores.Attendance.CountAbsences(ctx, schoolID, from, to)
}

func (r *PostgresRepository) ListOpenCriticalUnassignedIssues(ctx context.Context) ([]service.Issue, error) {
	recs, err := r.stores.Issues.ListOpenCriticalUnassigned(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]service.Issue, 0, len(recs))
	for _, rec := range recs {
		out = append(out, service.Issue{ID: rec.IssueID, SchoolID: rec.SchoolID, Title: rec.Title, Version: rec.Version})
	}
	return out, nil
}

func (r *PostgresRepository) ListSuperAdmins(ctx context.Context) ([]service.User, error) {
	recs, err := r.stores.Users.ListSuperAdmins(ctx)
	if err != nil {
		return nil, err
	}
	return toUsers(recs), nil
}

func (r *PostgresRepository) Workloads(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	return r.stores.Issues.WorkloadByAssignee(ctx, userIDs)
}

func (r *PostgresRepository) AssignIssue(ctx context.Context, issueID, assigneeID uuid.UUID, expectedVersion int64) error {
	_, err := r.stores.Issues.Assign(ctx, issueID, assigneeID, expectedVersion)
	return mapStale(err)
}

func toSubscriptions(recs []persistence.SubscriptionWithPlan) []service.Subscription {
	out := make([]service.Subscription, 0, len(recs))
	for _, rec := range recs {
		out = append(out, service.Subscription{
			ID:       rec.Subscription.SubscriptionID,
			SchoolID: rec.Subscription.SchoolID,
			PlanName: rec.Plan.Name,
			EndDate:  rec.Subscription.EndDate,
			Version:  rec.Subscription.Version,
		})
	}
	return out
}

func toPayments(recs []persistence.PaymentWithStudent) []service.Payment {
	out := make([]service.Payment, 0, len(recs))
	for _, rec := range recs {
		out = append(out, service.Payment{
			ID:            rec.Payment.PaymentID,
			SchoolID:      rec.Payment.SchoolID,
			StudentUserID: rec.StudentUserID,
			InvoiceNumber: rec.Payment.InvoiceNumber,
			Amount:        rec.Payment.Amount,
			DueDate:       rec.Payment.DueDate,
		})
	}
	return out
}

func toUsers(recs []persistence.UserRecord) []service.User {
	out := make([]service.User, 0, len(recs))
	for _, rec := range recs {
		out = append(out, service.User{ID: rec.UserID, Name: rec.FullName})
	}
	return out
}

func mapStale(err error) error {
	if errors.Is(err, persistence.ErrStaleVersion) || errors.Is(err, persistence.ErrNotFound) {
		return service.ErrStaleVersion
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
