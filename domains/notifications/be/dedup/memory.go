package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

// MemoryDeduper keeps claimed keys in a map with expiry.
type MemoryDeduper struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	claims map[string]time.Time
	// ClaimErr, when set, is returned by Claim.
	ClaimErr error
}

// NewMemoryDeduper constructs a deduper; ttl defaults to 48h.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &MemoryDeduper{ttl: ttl, now: time.Now, claims: make(map[string]time.Time)}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ClaimErr != nil {
		return false, d.ClaimErr
	}
	now := d.now()
	if exp, ok := d.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.claims[key] = now.Add(d.ttl)
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, key)
	return nil
}

// Claimed reports whether key is currently held.
func (d *MemoryDeduper) Claimed(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.claims[key]
	return ok && d.now().Before(exp)
}

var _ service.Deduper = (*MemoryDeduper)(nil)
