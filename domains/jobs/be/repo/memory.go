package repo

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/schoolhub/domains/jobs/be/service"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
)

// MemoryRepository is an in-memory sweep repository for tests and local runs. Status values
// follow the persistence constants.
type MemoryRepository struct {
	mu            sync.Mutex
	subscriptions map[uuid.UUID]*memSubscription
	payments      map[uuid.UUID]*memPayment
	users         map[uuid.UUID]memUser
	students      map[uuid.UUID]int64
	absences      []memAbsence
	issues        map[uuid.UUID]*memIssue
	failures      map[failureKey]error
}

type memSubscription struct {
	sub    service.Subscription
	status string
}

type memPayment struct {
	payment service.Payment
	status  string
}

type memUser struct {
	user     service.User
	schoolID uuid.UUID
	role     string
}

type memAbsence struct {
	schoolID uuid.UUID
	day      time.Time
}

type memIssue struct {
	issue     service.Issue
	priority  string
	status    string
	assignee  *uuid.UUID
	createdAt time.Time
}

type failureKey struct {
	op string
	id uuid.UUID
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		subscriptions: make(map[uuid.UUID]*memSubscription),
		payments:      make(map[uuid.UUID]*memPayment),
		users:         make(map[uuid.UUID]memUser),
		students:      make(map[uuid.UUID]int64),
		issues:        make(map[uuid.UUID]*memIssue),
		failures:      make(map[failureKey]error),
	}
}

// Fail makes the named operation return err for id. Operations keyed by school use the school id;
// list operations without an argument use uuid.Nil.
func (r *MemoryRepository) Fail(op string, id uuid.UUID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[failureKey{op: op, id: id}] = err
}

func (r *MemoryRepository) failure(op string, id uuid.UUID) error {
	return r.failures[failureKey{op: op, id: id}]
}

// AddSubscription seeds a subscription with the given status.
func (r *MemoryRepository) AddSubscription(sub service.Subscription, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[sub.ID] = &memSubscription{sub: sub, status: status}
}

// SubscriptionStatus returns the current status of a seeded subscription.
func (r *MemoryRepository) SubscriptionStatus(id uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subscriptions[id]; ok {
		return s.status
	}
	return ""
}

// BumpSubscriptionVersion simulates a concurrent writer.
func (r *MemoryRepository) BumpSubscriptionVersion(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subscriptions[id]; ok {
		s.sub.Version++
	}
}

// AddPayment seeds a payment with the given status.
func (r *MemoryRepository) AddPayment(p service.Payment, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = &memPayment{payment: p, status: status}
}

// AddUser seeds a user; super-admins use uuid.Nil as school.
func (r *MemoryRepository) AddUser(u service.User, schoolID uuid.UUID, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = memUser{user: u, schoolID: schoolID, role: role}
}

// SetStudentCount fixes the number of students of a school.
func (r *MemoryRepository) SetStudentCount(schoolID uuid.UUID, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[schoolID] = n
}

// AddAbsence records one ABSENT mark on day.
func (r *MemoryRepository) AddAbsence(schoolID uuid.UUID, day time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.absences = append(r.absences, memAbsence{schoolID: schoolID, day: day})
}

// AddIssue seeds an issue.
func (r *MemoryRepository) AddIssue(issue service.Issue, priority, status string, assignee *uuid.UUID, createdAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues[issue.ID] = &memIssue{issue: issue, priority: priority, status: status, assignee: assignee, createdAt: createdAt}
}

// IssueState returns the status and assignee of a seeded issue.
func (r *MemoryRepository) IssueState(id uuid.UUID) (string, *uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.issues[id]; ok {
		return i.status, i.assignee
	}
	return "", nil
}

// InTx runs fn and, when it fails, restores subscriptions and issues to their state before
// the call. Notifications written by fn live elsewhere and are not rolled back.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	subs := make(map[uuid.UUID]memSubscription, len(r.subscriptions))
	for id, s := range r.subscriptions {
		subs[id] = *s
	}
	issues := make(map[uuid.UUID]memIssue, len(r.issues))
	for id, i := range r.issues {
		issues[id] = *i
	}
	r.mu.Unlock()

	if err := fn(ctx); err != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		for id, s := range subs {
			s := s
			r.subscriptions[id] = &s
		}
		for id, i := range issues {
			i := i
			r.issues[id] = &i
		}
		return err
	}
	return nil
}

func (r *MemoryRepository) ListActiveSubscriptionsEndingBetween(_ context.Context, from, to time.Time) ([]service.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("ListActiveSubscriptionsEndingBetween", uuid.Nil); err != nil {
		return nil, err
	}
	return r.subscriptionsWhere(func(s *memSubscription) bool {
		return s.status == persistence.SubscriptionActive && !s.sub.EndDate.Before(from) && !s.sub.EndDate.After(to)
	}), nil
}

func (r *MemoryRepository) ListActiveSubscriptionsEndedBefore(_ context.Context, day time.Time) ([]service.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("ListActiveSubscriptionsEndedBefore", uuid.Nil); err != nil {
		return nil, err
	}
	return r.subscriptionsWhere(func(s *memSubscription) bool {
		return s.status == persistence.SubscriptionActive && s.sub.EndDate.Before(day)
	}), nil
}

func (r *MemoryRepository) subscriptionsWhere(keep func(*memSubscription) bool) []service.Subscription {
	var out []service.Subscription
	for _, s := range r.subscriptions {
		if keep(s) {
			out = append(out, s.sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndDate.Equal(out[j].EndDate) {
			return out[i].EndDate.Before(out[j].EndDate)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

func (r *MemoryRepository) ExpireSubscription(_ context.Context, id uuid.UUID, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("ExpireSubscription", id); err != nil {
		return err
	}
	s, ok := r.subscriptions[id]
	if !ok || s.sub.Version != expectedVersion || s.status != persistence.SubscriptionActive {
		return service.ErrStaleVersion
	}
	s.status = persistence.SubscriptionExpired
	s.sub.Version++
	return nil
}

func (r *MemoryRepository) ListPendingPaymentsDueOn(_ context.Context, day time.Time) ([]service.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("ListPendingPaymentsDueOn", uuid.Nil); err != nil {
		return nil, err
	}
	return r.paymentsWhere(func(p *memPayment) bool {
		return p.status == persistence.PaymentPending && p.payment.DueDate.Equal(day)
	}), nil
}

func (r *MemoryRepository) ListOverduePayments(_ context.Context, day time.Time) ([]service.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("ListOverduePayments", uuid.Nil); err != nil {
		return nil, err
	}
	return r.paymentsWhere(func(p *memPayment) bool {
		rec := persistence.PaymentRecord{DueDate: p.payment.DueDate, Status: p.status}
		return rec.IsOverdue(day)
	}), nil
}

func (r *MemoryRepository) paymentsWhere(keep func(*memPayment) bool) []service.Payment {
	var out []service.Payment
	for _, p := range r.payments {
		if keep(p) {
			out = append(out, p.payment)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

func (r *MemoryRepository) ListSchoolUsers(_ context.Context, schoolID uuid.UUID, roles ...service.Role) ([]service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("ListSchoolUsers", schoolID); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(roles))
	for _, role := range roles {
		wanted[string(role)] = true
	}
	return r.usersWhere(func(u memUser) bool { return u.schoolID == schoolID && wanted[u.role] }), nil
}

func (r *MemoryRepository) ListSuperAdmins(_ context.Context) ([]service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("ListSuperAdmins", uuid.Nil); err != nil {
		return nil, err
	}
	return r.usersWhere(func(u memUser) bool { return u.role == persistence.RoleSuperAdmin }), nil
}

func (r *MemoryRepository) usersWhere(keep func(memUser) bool) []service.User {
	var out []service.User
	for _, u := range r.users {
		if keep(u) {
			out = append(out, u.user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out
}

func (r *MemoryRepository) CountStudents(_ context.Context, schoolID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("CountStudents", schoolID); err != nil {
		return 0, err
	}
	return r.students[schoolID], nil
}

func (r *MemoryRepository) CountAbsences(_ context.Context, schoolID uuid.UUID, from, to time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("CountAbsences", schoolID); err != nil {
		return 0, err
	}
	var n int64
	for _, a := range r.absences {
		if a.schoolID == schoolID && !a.day.Before(from) && a.day.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListOpenCriticalUnassignedIssues(_ context.Context) ([]service.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("ListOpenCriticalUnassignedIssues", uuid.Nil); err != nil {
		return nil, err
	}
	var open []*memIssue
	for _, i := range r.issues {
		if i.status == persistence.IssueOpen && i.priority == persistence.IssuePriorityCritical && i.assignee == nil {
			open = append(open, i)
		}
	}
	sort.Slice(open, func(a, b int) bool {
		if !open[a].createdAt.Equal(open[b].createdAt) {
			return open[a].createdAt.Before(open[b].createdAt)
		}
		return bytes.Compare(open[a].issue.ID[:], open[b].issue.ID[:]) < 0
	})
	out := make([]service.Issue, len(open))
	for idx, i := range open {
		out[idx] = i.issue
	}
	return out, nil
}

func (r *MemoryRepository) Workloads(_ context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("Workloads", uuid.Nil); err != nil {
		return nil, err
	}
	wanted := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	out := make(map[uuid.UUID]int64, len(userIDs))
	for _, i := range r.issues {
		if i.assignee == nil || !wanted[*i.assignee] {
			continue
		}
		if i.status == persistence.IssueOpen || i.status == persistence.IssueInProgress {
			out[*i.assignee]++
		}
	}
	return out, nil
}

func (r *MemoryRepository) AssignIssue(_ context.Context, issueID, assigneeID uuid.UUID, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("AssignIssue", issueID); err != nil {
		return err
	}
	i, ok := r.issues[issueID]
	if !ok || i.issue.Version != expectedVersion || i.assignee != nil {
		return service.ErrStaleVersion
	}
	assignee := assigneeID
	i.assignee = &assignee
	i.status = persistence.IssueInProgress
	i.issue.Version++
	return nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
