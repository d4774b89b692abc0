package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

// Delivery is one intent read from the outbox together with its stream id.
type Delivery struct {
	ID     string
	Intent service.Intent
}

// Source is the consuming side of the outbox.
type Source interface {
	service.Outbox
	// Read blocks for a bounded time and returns pending deliveries; an empty batch is not an error.
	Read(ctx context.Context) ([]Delivery, error)
	Ack(ctx context.Context, ids ...string) error
}

// Recipient is the addressee of an email.
type Recipient struct {
	Email string
	Name  string
}

// Store gives the dispatcher access to notification rows and their recipients.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (service.Notification, error)
	Recipient(ctx context.Context, userID uuid.UUID) (Recipient, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	// ClaimStale returns undelivered, live rows last tried (or created) before cutoff, least
	// recently tried first, and stamps their last attempt with now.
	ClaimStale(ctx context.Context, cutoff, now time.Time, limit int) ([]service.Notification, error)
	// RecordFailure counts a failed delivery and reports whether the row reached maxAttempts
	// and was dead-lettered.
	RecordFailure(ctx context.Context, id uuid.UUID, at time.Time, maxAttempts int) (bool, error)
}

// Email is a rendered out-of-band message.
type Email struct {
	To       Recipient
	Subject  string
	Body     string
	Severity service.Severity
}

// Mailer sends an email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// Config controls dispatcher timing.
type Config struct {
	// RecoveryInterval is both the recovery period and the age at which an undelivered row is republished.
	RecoveryInterval time.Duration
	RecoveryBatch    int
	// MaxAttempts dead-letters a row after that many failed deliveries.
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = 5 * time.Minute
	}
	if c.RecoveryBatch <= 0 {
		c.RecoveryBatch = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// Dispatcher drains the outbox into the mailer and marks rows delivered.
type Dispatcher struct {
	source Source
	store  Store
	mailer Mailer
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option customizes the dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source used for delivery and recovery stamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New constructs a Dispatcher.
func New(source Source, store Store, mailer Mailer, cfg Config, logger *zap.Logger, opts ...Option) *Dispatcher {
	if source == nil {
		panic("outbox source is required")
	}
	if store == nil {
		panic("notification store is required")
	}
	if mailer == nil {
		panic("mailer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		source: source,
		store:  store,
		mailer: mailer,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes the outbox until ctx is cancelled. A recovery pass runs every RecoveryInterval.
func (d *Dispatcher) Run(ctx context.Context) error {
	go d.recoveryLoop(ctx)

	backoff := d.cfg.MinBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		deliveries, err := d.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Warn("outbox read failed", zap.Duration("backoff", backoff), zap.Error(err))
			if err := d.sleep(ctx, backoff); err != nil {
				return nil
			}
			backoff = nextBackoff(backoff, d.cfg.MaxBackoff)
			continue
		}
		if failed := d.ProcessBatch(ctx, deliveries); failed > 0 && failed == len(deliveries) {
			// Everything failed, most likely the mailer is down.
			if err := d.sleep(ctx, backoff); err != nil {
				return nil
			}
			backoff = nextBackoff(backoff, d.cfg.MaxBackoff)
			continue
		}
		backoff = d.cfg.MinBackoff
	}
}

// ProcessBatch delivers and acks each entry and returns the number of failed deliveries.
// A failed row stays undelivered in the database with its attempt counted; the recovery pass
// republishes it until it is delivered or dead-lettered.
func (d *Dispatcher) ProcessBatch(ctx context.Context, deliveries []Delivery) int {
	failed := 0
	for _, delivery := range deliveries {
		logger := d.logger.With(
			zap.String("stream_id", delivery.ID),
			zap.String("notification_id", delivery.Intent.NotificationID.String()),
		)

		if err := d.deliver(ctx, delivery.Intent); err != nil {
			logger.Warn("notification delivery failed", zap.Error(err))
			d.recordFailure(ctx, logger, delivery.Intent.NotificationID)
			failed++
		}
		if err := d.source.Ack(ctx, delivery.ID); err != nil {
			logger.Warn("outbox ack failed", zap.Error(err))
		}
	}
	return failed
}

func (d *Dispatcher) deliver(ctx context.Context, intent service.Intent) error {
	n, err := d.store.Get(ctx, intent.NotificationID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			// Nothing to deliver; ack so the entry does not loop forever.
			return nil
		}
		return fmt.Errorf("load notification: %w", err)
	}
	if n.DeliveredAt != nil {
		return nil
	}

	to, err := d.store.Recipient(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}

	if err := d.mailer.Send(ctx, Email{To: to, Subject: n.Title, Body: n.Body, Severity: n.Severity}); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	if err := d.store.MarkDelivered(ctx, n.ID, d.now()); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, logger *zap.Logger, id uuid.UUID) {
	dead, err := d.store.RecordFailure(ctx, id, d.now(), d.cfg.MaxAttempts)
	switch {
	case errors.Is(err, service.ErrNotFound):
	case err != nil:
		logger.Warn("record delivery failure", zap.Error(err))
	case dead:
		logger.Error("notification dead-lettered", zap.Int("max_attempts", d.cfg.MaxAttempts))
	}
}

// Recover republishes rows whose last delivery attempt, or creation, is older than
// RecoveryInterval. Each claimed row waits another interval before it can be claimed again.
func (d *Dispatcher) Recover(ctx context.Context) (int, error) {
	now := d.now()
	stale, err := d.store.ClaimStale(ctx, now.Add(-d.cfg.RecoveryInterval), now, d.cfg.RecoveryBatch)
	if err != nil {
		return 0, fmt.Errorf("claim stale notifications: %w", err)
	}

	published := 0
	for _, n := range stale {
		if err := d.source.Publish(ctx, service.Intent{NotificationID: n.ID, UserID: n.UserID}); err != nil {
			d.logger.Warn("republish failed", zap.String("notification_id", n.ID.String()), zap.Error(err))
			continue
		}
		published++
	}
	return published, nil
}

func (d *Dispatcher) recoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.Recover(ctx)
			if err != nil {
				d.logger.Error("outbox recovery failed", zap.Error(err))
				continue
			}
			if n > 0 {
				d.logger.Info("outbox recovery republished notifications", zap.Int("count", n))
			}
		}
	}
}

func nextBackoff(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
