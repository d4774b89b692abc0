package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/schoolhub/domains/limits/be/service"
)

// MemoryRepository keeps subscriptions and resource counts in memory. InSerializable runs
// one transaction at a time, which is the behavior the Postgres row lock provides per school.
type MemoryRepository struct {
	txMu sync.Mutex

	mu            sync.RWMutex
	subscriptions map[uuid.UUID]service.Subscription
	counts        map[uuid.UUID]map[service.Kind]int64
	usedBytes     map[uuid.UUID]int64
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		subscriptions: make(map[uuid.UUID]service.Subscription),
		counts:        make(map[uuid.UUID]map[service.Kind]int64),
		usedBytes:     make(map[uuid.UUID]int64),
	}
}

// SetSubscription installs the ACTIVE subscription for a school.
func (r *MemoryRepository) SetSubscription(schoolID uuid.UUID, sub service.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[schoolID] = sub
}

// Add adjusts the stored count of kind (bytes for storage) by delta.
func (r *MemoryRepository) Add(schoolID uuid.UUID, kind service.Kind, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind == service.KindStorage {
		r.usedBytes[schoolID] += delta
		return
	}
	if r.counts[schoolID] == nil {
		r.counts[schoolID] = make(map[service.Kind]int64)
	}
	r.counts[schoolID][kind] += delta
}

func (r *MemoryRepository) ActiveSubscription(ctx context.Context, schoolID uuid.UUID) (service.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subscriptions[schoolID]
	if !ok {
		return service.Subscription{}, service.ErrNoActiveSubscription
	}
	return sub, nil
}

func (r *MemoryRepository) Count(ctx context.Context, schoolID uuid.UUID, kind service.Kind) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[schoolID][kind], nil
}

func (r *MemoryRepository) UsedBytes(ctx context.Context, schoolID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usedBytes[schoolID], nil
}

func (r *MemoryRepository) LockSchool(ctx context.Context, schoolID uuid.UUID) error {
	return nil
}

func (r *MemoryRepository) InSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(ctx)
}

var (
	_ service.Repository = (*MemoryRepository)(nil)
	_ service.UsageMeter = (*MemoryRepository)(nil)
)
