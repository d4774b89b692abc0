package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	notifications "github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
	platformlogging "github.com/zenGate-Global/schoolhub/platform/go/logging"
)

// Procedure names a sweep.
type Procedure string

const (
	ProcedureSubscriptionExpiry   Procedure = "subscription-expiry"
	ProcedurePaymentReminders     Procedure = "payment-reminders"
	ProcedureAttendanceDigest     Procedure = "attendance-digest"
	ProcedureAssignCriticalIssues Procedure = "assign-critical-issues"
)

// Procedures lists every sweep in a stable order.
func Procedures() []Procedure {
	return []Procedure{
		ProcedureSubscriptionExpiry,
		ProcedurePaymentReminders,
		ProcedureAttendanceDigest,
		ProcedureAssignCriticalIssues,
	}
}

// ErrUnknownProcedure is returned for names that are not a sweep.
var ErrUnknownProcedure = errors.New("unknown procedure")

// ErrStaleVersion is returned by the repository when an optimistic update lost a race.
var ErrStaleVersion = errors.New("stale version")

// ParseProcedure validates a sweep name.
func ParseProcedure(raw string) (Procedure, error) {
	for _, p := range Procedures() {
		if string(p) == raw {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProcedure, raw)
}

// Role of a school user receiving sweep notifications.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
)

// Subscription is an ACTIVE subscription candidate.
type Subscription struct {
	ID       uuid.UUID
	SchoolID uuid.UUID
	PlanName string
	EndDate  time.Time
	Version  int64
}

// Payment is a reminder or overdue candidate.
type Payment struct {
	ID            uuid.UUID
	SchoolID      uuid.UUID
	StudentUserID uuid.UUID
	InvoiceNumber string
	Amount        decimal.Decimal
	DueDate       time.Time
}

// Issue is an OPEN, CRITICAL, unassigned issue.
type Issue struct {
	ID       uuid.UUID
	SchoolID uuid.UUID
	Title    string
	Version  int64
}

// User is a notification recipient.
type User struct {
	ID   uuid.UUID
	Name string
}

// Repository is the data access the sweeps need. Dates are civil days at UTC midnight.
type Repository interface {
	// InTx runs fn in one transaction carried on ctx; notification rows written by the sink
	// through that ctx commit or roll back with it.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	ListActiveSubscriptionsEndingBetween(ctx context.Context, from, to time.Time) ([]Subscription, error)
	ListActiveSubscriptionsEndedBefore(ctx context.Context, day time.Time) ([]Subscription, error)
	// ExpireSubscription returns ErrStaleVersion when the row changed since it was read.
	ExpireSubscription(ctx context.Context, id uuid.UUID, expectedVersion int64) error

	ListPendingPaymentsDueOn(ctx context.Context, day time.Time) ([]Payment, error)
	ListOverduePayments(ctx context.Context, day time.Time) ([]Payment, error)

	ListSchoolUsers(ctx context.Context, schoolID uuid.UUID, roles ...Role) ([]User, error)
	CountStudents(ctx context.Context, schoolID uuid.UUID) (int64, error)
	// CountAbsences counts ABSENT marks with from <= day < to.
	CountAbsences(ctx context.Context, schoolID uuid.UUID, from, to time.Time) (int64, error)

	ListOpenCriticalUnassignedIssues(ctx context.Context) ([]Issue, error)
	// ListSuperAdmins returns super-admins ordered by id.
	ListSuperAdmins(ctx context.Context) ([]User, error)
	Workloads(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	// AssignIssue sets the assignee and IN_PROGRESS; ErrStaleVersion when the row changed.
	AssignIssue(ctx context.Context, issueID, assigneeID uuid.UUID, expectedVersion int64) error
}

// SchoolDirectory enumerates active schools page by page.
type SchoolDirectory interface {
	ForEachActive(ctx context.Context, pageSize int, fn func(ctx context.Context, schoolID uuid.UUID) error) error
}

// Report summarizes one sweep run.
type Report struct {
	Candidates int
	Notified   int
	Mutated    int
	Failed     int
}

// Config tunes the sweeps.
type Config struct {
	// Location defines "today"; defaults to UTC.
	Location            *time.Location
	ExpiryWarningDays   int
	PaymentReminderDays int
	DigestWindowDays    int
	SchoolPageSize      int
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.ExpiryWarningDays <= 0 {
		c.ExpiryWarningDays = 7
	}
	if c.PaymentReminderDays <= 0 {
		c.PaymentReminderDays = 3
	}
	if c.DigestWindowDays <= 0 {
		c.DigestWindowDays = 7
	}
	if c.SchoolPageSize <= 0 {
		c.SchoolPageSize = 200
	}
	return c
}

// Service runs the maintenance sweeps.
type Service struct {
	repo    Repository
	schools SchoolDirectory
	sink    notifications.Sink
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// Option customizes the service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the sweep service.
func New(repo Repository, schools SchoolDirectory, sink notifications.Sink, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("jobs repo is required")
	}
	if schools == nil {
		panic("school directory is required")
	}
	if sink == nil {
		panic("notification sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:    repo,
		schools: schools,
		sink:    sink,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run dispatches to the named sweep.
func (s *Service) Run(ctx context.Context, p Procedure) (Report, error) {
	switch p {
	case ProcedureSubscriptionExpiry:
		return s.SubscriptionExpiry(ctx)
	case ProcedurePaymentReminders:
		return s.PaymentReminders(ctx)
	case ProcedureAttendanceDigest:
		return s.AttendanceDigest(ctx)
	case ProcedureAssignCriticalIssues:
		return s.AssignCriticalIssues(ctx)
	default:
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownProcedure, p)
	}
}

// Today is the current civil day in the configured location, as UTC midnight.
func (s *Service) Today() time.Time {
	local := s.now().In(s.cfg.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole days from a to b; both must be UTC midnights.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func civilDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

const dayLayout = "2006-01-02"

// notify sends msg once per key and folds the outcome into report.
func (s *Service) notify(ctx context.Context, p Procedure, report *Report, key string, msg notifications.Message) {
	sent, err := s.sink.SendOnce(ctx, key, msg)
	if err != nil {
		s.stepFailed(ctx, p, report, msg.UserID, fmt.Errorf("notify: %w", err))
		return
	}
	if sent {
		report.Notified++
	}
}

// sendAll sends one message per recipient and stops at the first failure. Inside InTx a
// failure rolls back the rows already written.
func (s *Service) sendAll(ctx context.Context, recipients []User, build func(User) notifications.Message) (int, error) {
	for i, u := range recipients {
		if _, err := s.sink.Send(ctx, build(u)); err != nil {
			return i, fmt.Errorf("notify %s: %w", u.ID, err)
		}
	}
	return len(recipients), nil
}

// stepFailed records a failure on one candidate; the sweep moves on.
func (s *Service) stepFailed(ctx context.Context, p Procedure, report *Report, candidate uuid.UUID, err error) {
	report.Failed++
	s.loggerFrom(ctx).Warn("sweep step failed",
		zap.String("procedure", string(p)),
		zap.String("candidate_id", candidate.String()),
		zap.Error(err),
	)
}

func (s *Service) loggerFrom(ctx context.Context) *zap.Logger {
	return platformlogging.FromContextOr(ctx, s.logger)
}
