package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/schoolhub/platform/go/logging"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// ErrNotFound is returned when a notification or recipient does not exist.
var ErrNotFound = errors.New("notification not found")

// Message is what callers hand to the sink.
type Message struct {
	UserID   uuid.UUID `json:"userId" validate:"required"`
	Title    string    `json:"title" validate:"required,max=200"`
	Body     string    `json:"body" validate:"required,max=4000"`
	Severity Severity  `json:"severity" validate:"required,oneof=INFO WARNING CRITICAL"`
}

// Notification is a persisted in-app notification.
type Notification struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       string
	Body        string
	Severity    Severity
	CreatedAt   time.Time
	DeliveredAt *time.Time
	// Attempts counts failed out-of-band deliveries.
	Attempts       int
	LastAttemptAt  *time.Time
	DeadLetteredAt *time.Time
}

// Intent asks the dispatcher to deliver a stored notification out of band.
type Intent struct {
	NotificationID uuid.UUID
	UserID         uuid.UUID
}

// Repository persists notifications.
type Repository interface {
	Create(ctx context.Context, n Notification) (Notification, error)
}

// Outbox accepts delivery intents.
type Outbox interface {
	Publish(ctx context.Context, intent Intent) error
}

// Deduper remembers keys that were already sent.
type Deduper interface {
	// Claim returns true only for the first caller of key within the retention window.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a later attempt can claim it again.
	Release(ctx context.Context, key string) error
}

// Sink is the single entry point for user-facing notifications.
type Sink interface {
	Send(ctx context.Context, msg Message) (uuid.UUID, error)
	// SendOnce sends msg only if key has not been claimed before.
	SendOnce(ctx context.Context, key string, msg Message) (bool, error)
}

// FieldErrors maps message fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned for messages that fail validation.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	return "invalid notification: " + strings.Join(keys, ", ")
}

type sink struct {
	repo     Repository
	outbox   Outbox
	deduper  Deduper
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// Option customizes the sink.
type Option func(*sink)

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *sink) { s.now = now }
}

// New builds a Sink writing rows through repo and publishing intents to outbox.
func New(repo Repository, outbox Outbox, deduper Deduper, logger *zap.Logger, opts ...Option) Sink {
	if repo == nil {
		panic("notifications repo is required")
	}
	if outbox == nil {
		panic("notifications outbox is required")
	}
	if deduper == nil {
		panic("notifications deduper is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	s := &sink{
		repo:     repo,
		outbox:   outbox,
		deduper:  deduper,
		validate: v,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *sink) Send(ctx context.Context, msg Message) (uuid.UUID, error) {
	msg.Title = strings.TrimSpace(msg.Title)
	msg.Body = strings.TrimSpace(msg.Body)
	if err := s.validateMessage(msg); err != nil {
		return uuid.Nil, err
	}

	n, err := s.repo.Create(ctx, Notification{
		ID:        uuid.New(),
		UserID:    msg.UserID,
		Title:     msg.Title,
		Body:      msg.Body,
		Severity:  msg.Severity,
		CreatedAt: s.now(),
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("store notification: %w", err)
	}

	if err := s.outbox.Publish(ctx, Intent{NotificationID: n.ID, UserID: n.UserID}); err != nil {
		// The row stays undelivered and is picked up by the dispatcher's recovery pass.
		s.loggerFrom(ctx).Warn("publish delivery intent failed",
			zap.String("notification_id", n.ID.String()),
			zap.Error(err),
		)
	}

	return n.ID, nil
}

func (s *sink) SendOnce(ctx context.Context, key string, msg Message) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, &ValidationError{Fields: FieldErrors{"key": {"dedup key is required"}}}
	}

	claimed, err := s.deduper.Claim(ctx, key)
	if err != nil {
		s.loggerFrom(ctx).Warn("dedup claim failed, sending anyway", zap.String("dedup_key", key), zap.Error(err))
		claimed = true
	}
	if !claimed {
		return false, nil
	}

	if _, err := s.Send(ctx, msg); err != nil {
		if releaseErr := s.deduper.Release(ctx, key); releaseErr != nil {
			s.loggerFrom(ctx).Warn("dedup release failed", zap.String("dedup_key", key), zap.Error(releaseErr))
		}
		return false, err
	}
	return true, nil
}

func (s *sink) validateMessage(msg Message) error {
	err := s.validate.Struct(msg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := FieldErrors{}
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], describe(fe))
	}
	return &ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func (s *sink) loggerFrom(ctx context.Context) *zap.Logger {
	return platformlogging.FromContextOr(ctx, s.logger)
}
