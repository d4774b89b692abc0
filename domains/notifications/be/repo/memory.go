package repo

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dispatcher"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

// MemoryRepository is an in-memory notification store for tests and local runs.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]service.Notification
	recipients map[uuid.UUID]dispatcher.Recipient
	// CreateErr, when set, is returned by Create.
	CreateErr error
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[uuid.UUID]service.Notification),
		recipients: make(map[uuid.UUID]dispatcher.Recipient),
	}
}

// SetRecipient registers the email address of a user.
func (r *MemoryRepository) SetRecipient(userID uuid.UUID, rcpt dispatcher.Recipient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipients[userID] = rcpt
}

func (r *MemoryRepository) Create(_ context.Context, n service.Notification) (service.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CreateErr != nil {
		return service.Notification{}, r.CreateErr
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	r.byID[n.ID] = n
	return n, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (service.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.byID[id]
	if !ok {
		return service.Notification{}, service.ErrNotFound
	}
	return n, nil
}

func (r *MemoryRepository) Recipient(_ context.Context, userID uuid.UUID) (dispatcher.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rcpt, ok := r.recipients[userID]
	if !ok {
		return dispatcher.Recipient{}, service.ErrNotFound
	}
	return rcpt, nil
}

func (r *MemoryRepository) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.byID[id]
	if !ok {
		return service.ErrNotFound
	}
	if n.DeliveredAt == nil {
		n.DeliveredAt = &at
		r.byID[id] = n
	}
	return nil
}

func (r *MemoryRepository) ClaimStale(_ context.Context, cutoff, now time.Time, limit int) ([]service.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []service.Notification
	for _, n := range r.byID {
		if n.DeliveredAt == nil && n.DeadLetteredAt == nil && lastTried(n).Before(cutoff) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := lastTried(out[i]), lastTried(out[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		stamp := now
		out[i].LastAttemptAt = &stamp
		r.byID[out[i].ID] = out[i]
	}
	return out, nil
}

func (r *MemoryRepository) RecordFailure(_ context.Context, id uuid.UUID, at time.Time, maxAttempts int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.byID[id]
	if !ok || n.DeliveredAt != nil {
		return false, service.ErrNotFound
	}
	n.Attempts++
	n.LastAttemptAt = &at
	if n.DeadLetteredAt == nil && n.Attempts >= maxAttempts {
		n.DeadLetteredAt = &at
	}
	r.byID[id] = n
	return n.DeadLetteredAt != nil, nil
}

func lastTried(n service.Notification) time.Time {
	if n.LastAttemptAt != nil {
		return *n.LastAttemptAt
	}
	return n.CreatedAt
}

// ForUser returns the notifications addressed to userID, oldest first.
func (r *MemoryRepository) ForUser(userID uuid.UUID) []service.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []service.Notification
	for _, n := range r.byID {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// All returns every stored notification, oldest first.
func (r *MemoryRepository) All() []service.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.Notification, 0, len(r.byID))
	for _, n := range r.byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var (
	_ service.Repository = (*MemoryRepository)(nil)
	_ dispatcher.Store   = (*MemoryRepository)(nil)
)
