package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/schoolhub/domains/limits/be/service"
	platformlogging "github.com/zenGate-Global/schoolhub/platform/go/logging"
	"github.com/zenGate-Global/schoolhub/platform/go/requesttrace"
	"github.com/zenGate-Global/schoolhub/platform/go/tenant"
)

const (
	problemTypeValidation    = "https://schoolhub.app/problems/validation-error"
	problemTypeNotFound      = "https://schoolhub.app/problems/not-found"
	problemTypeLimitExceeded = "https://schoolhub.app/problems/limit-exceeded"
	problemTypeUnauthorized  = "https://schoolhub.app/problems/unauthorized"
	problemTypeInternal      = "https://schoolhub.app/problems/internal-error"

	contentTypeProblem = "application/problem+json"
	dateLayout         = "2006-01-02"
)

type operation string

const (
	getLimitsOperation         operation = "getCurrentLimits"
	checkAvailabilityOperation operation = "checkAvailability"
)

// ProblemDetails is the RFC 7807 error body. Limit hits carry the offending kind and counts.
type ProblemDetails struct {
	Type    string      `json:"type,omitempty"`
	Title   string      `json:"title"`
	Status  int         `json:"status"`
	Detail  string      `json:"detail,omitempty"`
	Errors  FieldErrors `json:"errors,omitempty"`
	Kind    string      `json:"kind,omitempty"`
	Current *int64      `json:"current,omitempty"`
	Max     *int64      `json:"max,omitempty"`
}

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// Usage is the wire form of service.Usage.
type Usage struct {
	Current int64 `json:"current"`
	Max     int64 `json:"max"`
}

// LimitsResponse is the body of GET /limits.
type LimitsResponse struct {
	PlanName string `json:"planName"`
	EndDate  string `json:"endDate"`
	Students Usage  `json:"students"`
	Teachers Usage  `json:"teachers"`
	Classes  Usage  `json:"classes"`
	Storage  Usage  `json:"storageBytes"`
}

// AvailabilityResponse is the body of a successful availability check.
type AvailabilityResponse struct {
	Kind    string `json:"kind"`
	Allowed bool   `json:"allowed"`
}

// Handler exposes read-only capability queries over the Limit Guard.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("limits service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the limits routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/limits", h.GetCurrentLimits)
	r.Get("/limits/{kind}/availability", h.CheckAvailability)
}

// GetCurrentLimits serves GET /limits for the caller's school.
func (h *Handler) GetCurrentLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schoolID, ok := h.school(ctx)
	if !ok {
		h.writeProblem(w, ProblemDetails{Type: problemTypeUnauthorized, Title: "Unauthorized", Status: http.StatusUnauthorized, Detail: "school context is required"})
		return
	}

	limits, err := h.svc.GetCurrentLimits(ctx, schoolID)
	if err != nil {
		h.writeProblem(w, h.problemForError(ctx, err, getLimitsOperation))
		return
	}

	writeJSON(w, http.StatusOK, LimitsResponse{
		PlanName: limits.PlanName,
		EndDate:  limits.EndDate.Format(dateLayout),
		Students: Usage(limits.Students),
		Teachers: Usage(limits.Teachers),
		Classes:  Usage(limits.Classes),
		Storage:  Usage(limits.Storage),
	})
}

// CheckAvailability serves GET /limits/{kind}/availability. Storage checks read the
// requested size from the bytes query parameter.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schoolID, ok := h.school(ctx)
	if !ok {
		h.writeProblem(w, ProblemDetails{Type: problemTypeUnauthorized, Title: "Unauthorized", Status: http.StatusUnauthorized, Detail: "school context is required"})
		return
	}

	kind, err := service.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeProblem(w, h.problemForError(ctx, err, checkAvailabilityOperation))
		return
	}

	switch kind {
	case service.KindStudents:
		err = h.svc.ValidateStudentLimit(ctx, schoolID)
	case service.KindTeachers:
		err = h.svc.ValidateTeacherLimit(ctx, schoolID)
	case service.KindClasses:
		err = h.svc.ValidateClassLimit(ctx, schoolID)
	case service.KindStorage:
		var size int64
		size, err = parseBytes(r.URL.Query().Get("bytes"))
		if err == nil {
			err = h.svc.ValidateStorageLimit(ctx, schoolID, size)
		}
	}
	if err != nil {
		h.writeProblem(w, h.problemForError(ctx, err, checkAvailabilityOperation))
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{Kind: string(kind), Allowed: true})
}

func (h *Handler) school(ctx context.Context) (uuid.UUID, bool) {
	id := tenant.SchoolID(ctx)
	return id, id != uuid.Nil
}

func parseBytes(raw string) (int64, error) {
	if raw == "" {
		return 0, &service.ValidationError{Fields: service.FieldErrors{"bytes": {"required for storage checks"}}}
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &service.ValidationError{Fields: service.FieldErrors{"bytes": {"must be an integer"}}}
	}
	return size, nil
}

func (h *Handler) problemForError(ctx context.Context, err error, op operation) ProblemDetails {
	problem := h.classifyError(err)

	logger := h.loggerFrom(ctx)
	audit := requesttrace.FromContextOrAnonymous(ctx)
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", problem.Status),
		zap.String("request_id", audit.RequestID),
	}

	switch {
	case problem.Status >= http.StatusInternalServerError:
		logger.Error("limits operation failed", append(fields, zap.Error(err))...)
	case problem.Status == http.StatusNotFound:
		logger.Info("limits resource not found", append(fields, zap.Error(err))...)
	default:
		logger.Warn("limits request rejected", append(fields, zap.Error(err))...)
	}

	return problem
}

func (h *Handler) classifyError(err error) ProblemDetails {
	var validationErr *service.ValidationError
	var limitErr *service.LimitExceededError
	switch {
	case errors.As(err, &validationErr):
		return ProblemDetails{
			Type:   problemTypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
			Detail: "one or more fields are invalid",
			Errors: FieldErrors(validationErr.Fields),
		}
	case errors.As(err, &limitErr):
		current, limit := limitErr.Current, limitErr.Max
		return ProblemDetails{
			Type:    problemTypeLimitExceeded,
			Title:   "Subscription limit exceeded",
			Status:  http.StatusConflict,
			Detail:  limitErr.Error(),
			Kind:    string(limitErr.Kind),
			Current: &current,
			Max:     &limit,
		}
	case errors.Is(err, service.ErrNoActiveSubscription):
		return ProblemDetails{
			Type:   problemTypeNotFound,
			Title:  "Resource not found",
			Status: http.StatusNotFound,
			Detail: "school has no active subscription",
		}
	default:
		return ProblemDetails{
			Type:   problemTypeInternal,
			Title:  "Internal server error",
			Status: http.StatusInternalServerError,
			Detail: "an unexpected error occurred",
		}
	}
}

func (h *Handler) writeProblem(w http.ResponseWriter, problem ProblemDetails) {
	w.Header().Set("Content-Type", contentTypeProblem)
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	return platformlogging.FromContextOr(ctx, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
