package outbox

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dispatcher"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

// MemoryOutbox is an in-process outbox. Read entries stay pending until acked.
type MemoryOutbox struct {
	mu      sync.Mutex
	seq     int
	fresh   []dispatcher.Delivery
	pending []dispatcher.Delivery
	log     []service.Intent
	acked   map[string]bool
	signal  chan struct{}
	block   time.Duration
	// PublishErr, when set, is returned by Publish.
	PublishErr error
}

// NewMemoryOutbox constructs an empty MemoryOutbox.
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{
		acked:  make(map[string]bool),
		signal: make(chan struct{}, 1),
		block:  50 * time.Millisecond,
	}
}

func (o *MemoryOutbox) Publish(_ context.Context, intent service.Intent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.PublishErr != nil {
		return o.PublishErr
	}
	o.seq++
	o.log = append(o.log, intent)
	o.fresh = append(o.fresh, dispatcher.Delivery{ID: strconv.Itoa(o.seq) + "-0", Intent: intent})
	select {
	case o.signal <- struct{}{}:
	default:
	}
	return nil
}

func (o *MemoryOutbox) Read(ctx context.Context) ([]dispatcher.Delivery, error) {
	if out := o.take(); len(out) > 0 {
		return out, nil
	}

	timer := time.NewTimer(o.block)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, nil
	case <-timer.C:
	case <-o.signal:
	}
	return o.take(), nil
}

func (o *MemoryOutbox) take() []dispatcher.Delivery {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := o.fresh
	o.pending = append(o.pending, out...)
	o.fresh = nil
	return out
}

func (o *MemoryOutbox) Ack(_ context.Context, ids ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, id := range ids {
		o.acked[id] = true
	}
	kept := o.pending[:0]
	for _, d := range o.pending {
		if !o.acked[d.ID] {
			kept = append(kept, d)
		}
	}
	o.pending = kept
	return nil
}

// Published returns every intent ever published, in order.
func (o *MemoryOutbox) Published() []service.Intent {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]service.Intent(nil), o.log...)
}

// Pending returns the number of read-but-unacked entries.
func (o *MemoryOutbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

var _ dispatcher.Source = (*MemoryOutbox)(nil)
