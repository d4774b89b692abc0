package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/schoolhub/platform/go/logging"
)

// Kind names a plan-capped resource.
type Kind string

const (
	KindStudents Kind = "students"
	KindTeachers Kind = "teachers"
	KindClasses  Kind = "classes"
	KindStorage  Kind = "storage"
)

// ParseKind validates a kind coming from outside the service.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(raw); k {
	case KindStudents, KindTeachers, KindClasses, KindStorage:
		return k, nil
	default:
		return "", &ValidationError{Fields: FieldErrors{"kind": {fmt.Sprintf("unknown resource kind %q", raw)}}}
	}
}

// bytesPerGB is the binary gigabyte used for plan storage caps.
const bytesPerGB int64 = 1 << 30

// Subscription is the ACTIVE subscription of a school together with its plan caps.
type Subscription struct {
	ID           uuid.UUID
	PlanName     string
	EndDate      time.Time
	MaxStudents  int64
	MaxTeachers  int64
	MaxClasses   int64
	MaxStorageGB int64
}

// Max returns the cap for kind; storage is expressed in bytes.
func (s Subscription) Max(kind Kind) int64 {
	switch kind {
	case KindStudents:
		return s.MaxStudents
	case KindTeachers:
		return s.MaxTeachers
	case KindClasses:
		return s.MaxClasses
	case KindStorage:
		if s.MaxStorageGB > math.MaxInt64/bytesPerGB {
			return math.MaxInt64
		}
		return s.MaxStorageGB * bytesPerGB
	default:
		return 0
	}
}

// Usage pairs the live count with the plan cap.
type Usage struct {
	Current int64
	Max     int64
}

// Limits is the display snapshot returned by GetCurrentLimits.
type Limits struct {
	PlanName string
	EndDate  time.Time
	Students Usage
	Teachers Usage
	Classes  Usage
	// Storage is measured in bytes.
	Storage Usage
}

// Repository exposes the reads and transaction control the guard needs.
type Repository interface {
	// ActiveSubscription returns ErrNoActiveSubscription when none exists.
	ActiveSubscription(ctx context.Context, schoolID uuid.UUID) (Subscription, error)
	Count(ctx context.Context, schoolID uuid.UUID, kind Kind) (int64, error)
	// LockSchool serializes admissions for a school until the surrounding transaction ends.
	LockSchool(ctx context.Context, schoolID uuid.UUID) error
	// InSerializable runs fn in a SERIALIZABLE transaction carried on ctx, retrying conflicts.
	InSerializable(ctx context.Context, fn func(ctx context.Context) error) error
}

// UsageMeter measures the bytes a school currently stores.
type UsageMeter interface {
	UsedBytes(ctx context.Context, schoolID uuid.UUID) (int64, error)
}

// Service exposes the Limit Guard operations.
type Service interface {
	ValidateStudentLimit(ctx context.Context, schoolID uuid.UUID) error
	ValidateTeacherLimit(ctx context.Context, schoolID uuid.UUID) error
	ValidateClassLimit(ctx context.Context, schoolID uuid.UUID) error
	ValidateStorageLimit(ctx context.Context, schoolID uuid.UUID, additionalBytes int64) error

	CanAddStudent(ctx context.Context, schoolID uuid.UUID) bool
	CanAddTeacher(ctx context.Context, schoolID uuid.UUID) bool
	CanAddClass(ctx context.Context, schoolID uuid.UUID) bool

	GetCurrentLimits(ctx context.Context, schoolID uuid.UUID) (Limits, error)

	// Admit validates kind and runs create in the same serialized transaction, so two
	// concurrent admissions cannot both pass the check for the last free slot.
	Admit(ctx context.Context, schoolID uuid.UUID, kind Kind, create func(ctx context.Context) error) error
	// AdmitDocument is Admit for storage: sizeBytes must fit next to current usage.
	AdmitDocument(ctx context.Context, schoolID uuid.UUID, sizeBytes int64, create func(ctx context.Context) error) error
}

type service struct {
	repo   Repository
	meter  UsageMeter
	logger *zap.Logger
}

// New builds the Limit Guard.
func New(repo Repository, meter UsageMeter, logger *zap.Logger) Service {
	if repo == nil {
		panic("limits repo is required")
	}
	if meter == nil {
		panic("usage meter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{repo: repo, meter: meter, logger: logger}
}

func (s *service) ValidateStudentLimit(ctx context.Context, schoolID uuid.UUID) error {
	return s.validateCount(ctx, schoolID, KindStudents)
}

func (s *service) ValidateTeacherLimit(ctx context.Context, schoolID uuid.UUID) error {
	return s.validateCount(ctx, schoolID, KindTeachers)
}

func (s *service) ValidateClassLimit(ctx context.Context, schoolID uuid.UUID) error {
	return s.validateCount(ctx, schoolID, KindClasses)
}

func (s *service) ValidateStorageLimit(ctx context.Context, schoolID uuid.UUID, additionalBytes int64) error {
	if additionalBytes < 0 {
		return &ValidationError{Fields: FieldErrors{"additionalBytes": {"must not be negative"}}}
	}

	sub, err := s.repo.ActiveSubscription(ctx, schoolID)
	if err != nil {
		return err
	}

	used, err := s.meter.UsedBytes(ctx, schoolID)
	if err != nil {
		return fmt.Errorf("measure storage usage: %w", err)
	}

	// Compared as remaining headroom: used+additionalBytes can overflow int64.
	max := sub.Max(KindStorage)
	if used > max || additionalBytes > max-used {
		return &LimitExceededError{Kind: KindStorage, Current: used, Max: max, Requested: additionalBytes}
	}
	return nil
}

func (s *service) CanAddStudent(ctx context.Context, schoolID uuid.UUID) bool {
	return s.canAdd(ctx, schoolID, KindStudents)
}

func (s *service) CanAddTeacher(ctx context.Context, schoolID uuid.UUID) bool {
	return s.canAdd(ctx, schoolID, KindTeachers)
}

func (s *service) CanAddClass(ctx context.Context, schoolID uuid.UUID) bool {
	return s.canAdd(ctx, schoolID, KindClasses)
}

func (s *service) GetCurrentLimits(ctx context.Context, schoolID uuid.UUID) (Limits, error) {
	sub, err := s.repo.ActiveSubscription(ctx, schoolID)
	if err != nil {
		return Limits{}, err
	}

	limits := Limits{PlanName: sub.PlanName, EndDate: sub.EndDate}
	for _, item := range []struct {
		kind Kind
		dst  *Usage
	}{
		{KindStudents, &limits.Students},
		{KindTeachers, &limits.Teachers},
		{KindClasses, &limits.Classes},
	} {
		count, err := s.repo.Count(ctx, schoolID, item.kind)
		if err != nil {
			return Limits{}, fmt.Errorf("count %s: %w", item.kind, err)
		}
		*item.dst = Usage{Current: count, Max: sub.Max(item.kind)}
	}

	used, err := s.meter.UsedBytes(ctx, schoolID)
	if err != nil {
		return Limits{}, fmt.Errorf("measure storage usage: %w", err)
	}
	limits.Storage = Usage{Current: used, Max: sub.Max(KindStorage)}

	return limits, nil
}

func (s *service) Admit(ctx context.Context, schoolID uuid.UUID, kind Kind, create func(ctx context.Context) error) error {
	if kind == KindStorage {
		return &ValidationError{Fields: FieldErrors{"kind": {"use AdmitDocument for storage"}}}
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return err
	}
	if create == nil {
		return errors.New("admit: create func is required")
	}

	return s.repo.InSerializable(ctx, func(ctx context.Context) error {
		if err := s.repo.LockSchool(ctx, schoolID); err != nil {
			return fmt.Errorf("lock school: %w", err)
		}
		if err := s.validateCount(ctx, schoolID, kind); err != nil {
			return err
		}
		return create(ctx)
	})
}

func (s *service) AdmitDocument(ctx context.Context, schoolID uuid.UUID, sizeBytes int64, create func(ctx context.Context) error) error {
	if create == nil {
		return errors.New("admit document: create func is required")
	}

	return s.repo.InSerializable(ctx, func(ctx context.Context) error {
		if err := s.repo.LockSchool(ctx, schoolID); err != nil {
			return fmt.Errorf("lock school: %w", err)
		}
		if err := s.ValidateStorageLimit(ctx, schoolID, sizeBytes); err != nil {
			return err
		}
		return create(ctx)
	})
}

func (s *service) validateCount(ctx context.Context, schoolID uuid.UUID, kind Kind) error {
	sub, err := s.repo.ActiveSubscription(ctx, schoolID)
	if err != nil {
		return err
	}

	count, err := s.repo.Count(ctx, schoolID, kind)
	if err != nil {
		return fmt.Errorf("count %s: %w", kind, err)
	}

	max := sub.Max(kind)
	if count >= max {
		return &LimitExceededError{Kind: kind, Current: count, Max: max}
	}
	return nil
}

// canAdd never fails: anything other than a plain limit hit is logged and reported as false.
func (s *service) canAdd(ctx context.Context, schoolID uuid.UUID, kind Kind) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			platformlogging.FromContextOr(ctx, s.logger).Error("limit check panicked",
				zap.String("school_id", schoolID.String()),
				zap.String("kind", string(kind)),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()

	err := s.validateCount(ctx, schoolID, kind)
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrLimitExceeded) {
		platformlogging.FromContextOr(ctx, s.logger).Warn("limit check failed",
			zap.String("school_id", schoolID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	return false
}
