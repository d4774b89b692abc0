package service

import (
	"errors"
	"fmt"
)

// Domain-level error sentinel values.
var (
	// ErrLimitExceeded matches every *LimitExceededError.
	ErrLimitExceeded = errors.New("subscription limit exceeded")
	// ErrNoActiveSubscription is returned when the school has no ACTIVE subscription.
	ErrNoActiveSubscription = errors.New("no active subscription")
)

// LimitExceededError reports which cap was hit and by how much.
type LimitExceededError struct {
	Kind    Kind
	Current int64
	Max     int64
	// Requested is set for storage checks only.
	Requested int64
}

func (e *LimitExceededError) Error() string {
	if e.Kind == KindStorage {
		return fmt.Sprintf("storage limit exceeded: %d bytes used, %d requested, %d allowed", e.Current, e.Requested, e.Max)
	}
	return fmt.Sprintf("%s limit exceeded: %d of %d", e.Kind, e.Current, e.Max)
}

// Is lets errors.Is(err, ErrLimitExceeded) match.
func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError captures input validation problems surfaced by the service.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}
