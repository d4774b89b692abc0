package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/schoolhub/platform/go/auth"
	"github.com/zenGate-Global/schoolhub/platform/go/requesttrace"
)

func TestRequestTraceWithAuth(t *testing.T) {
	secret := []byte("trace-secret")
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(platformauth.JWT(platformauth.HS256Verifier(secret), nil))
	r.Use(RequestTrace)

	var audit requesttrace.AuditInfo
	r.Get("/test", func(w http.ResponseWriter, req *http.Request) {
		audit, _ = requesttrace.FromContext(req.Context())
		w.WriteHeader(http.StatusOK)
	})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       "user-123",
		"school_id": "school-9",
		"role":      "ADMIN",
	}).SignedString(secret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, requesttrace.ActorKindUser, audit.ActorKind)
	require.Equal(t, "user-123", *audit.UserID)
	require.Equal(t, "school-9", *audit.SchoolID)
	require.NotEmpty(t, audit.RequestID)
}

func TestRequestTraceAnonymous(t *testing.T) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestTrace)

	var audit requesttrace.AuditInfo
	r.Get("/test", func(w http.ResponseWriter, req *http.Request) {
		audit, _ = requesttrace.FromContext(req.Context())
		w.WriteHeader(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/test", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, requesttrace.ActorKindAnonymous, audit.ActorKind)
	require.Nil(t, audit.UserID)
}
