package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
	"github.com/zenGate-Global/schoolhub/platform/go/tenant"
	tenantmiddleware "github.com/zenGate-Global/schoolhub/platform/go/tenant/middleware"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("school not found")
	ErrConflictSlug = errors.New("school slug already exists")
	// ErrDisabled matches the tenant middleware's inactive sentinel so it maps to 403.
	ErrDisabled = tenantmiddleware.ErrInactive
)

// School represents a tenant of the platform.
type School struct {
	ID           uuid.UUID
	Slug         string
	Name         string
	IsActive     bool
	RegisteredAt time.Time
}

// ShortID returns the 8-char id fragment used in storage prefixes.
func (s School) ShortID() string { return tenant.ShortID(s.ID) }

// CreateInput represents the request to register a school.
type CreateInput struct {
	Slug string
	Name string
}

// Repository abstracts persistence.
type Repository interface {
	Create(ctx context.Context, s School) (School, error)
	Get(ctx context.Context, id uuid.UUID) (School, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	ListActiveIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// Service provides school registry operations.
type Service struct {
	repo   Repository
	envKey string
}

// New constructs a Service with required dependencies.
func New(repo Repository, envKey string) *Service {
	if repo == nil {
		panic("schools repo is required")
	}
	if envKey == "" {
		panic("envKey is required")
	}
	return &Service{repo: repo, envKey: envKey}
}

// Create registers an active school.
func (s *Service) Create(ctx context.Context, input CreateInput) (School, error) {
	slug, err := persistence.NormalizeSlug(input.Slug)
	if err != nil {
		return School{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return School{}, errors.New("school name is required")
	}

	return s.repo.Create(ctx, School{
		ID:           uuid.New(),
		Slug:         slug,
		Name:         name,
		IsActive:     true,
		RegisteredAt: time.Now().UTC(),
	})
}

// Get returns a school by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (School, error) {
	return s.repo.Get(ctx, id)
}

// Deactivate soft-deletes a school. Its data stays; sweeps and the API stop serving it.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetActive(ctx, id, false)
}

// Activate re-enables a deactivated school.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetActive(ctx, id, true)
}

// ResolveTenant returns the tenant Context for middleware consumption.
func (s *Service) ResolveTenant(ctx context.Context, id uuid.UUID) (tenant.Context, error) {
	school, err := s.repo.Get(ctx, id)
	if err != nil {
		return tenant.Context{}, err
	}
	if !school.IsActive {
		return tenant.Context{}, ErrDisabled
	}
	return tenant.Context{
		SchoolID: school.ID,
		Slug:     school.Slug,
		ShortID:  school.ShortID(),
	}, nil
}

// StoragePrefix returns the object-store prefix owned by the school.
func (s *Service) StoragePrefix(ctx context.Context, id uuid.UUID) (string, error) {
	school, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return tenant.BuildBasePrefix(s.envKey, school.Slug, school.ShortID()), nil
}

// ForEachActive walks every active school in id order, pageSize ids at a time.
// Iteration stops at the first error returned by fn or by the repository.
func (s *Service) ForEachActive(ctx context.Context, pageSize int, fn func(ctx context.Context, schoolID uuid.UUID) error) error {
	if pageSize <= 0 {
		pageSize = 100
	}

	after := uuid.Nil
	for {
		ids, err := s.repo.ListActiveIDs(ctx, after, pageSize)
		if err != nil {
			return fmt.Errorf("list active schools after %s: %w", after, err)
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, id); err != nil {
				return err
			}
		}
		if len(ids) < pageSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}
