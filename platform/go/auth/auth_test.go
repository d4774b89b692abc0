package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestDefaultCredentialExtractor(t *testing.T) {
	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"sub":       "user-123",
		"email":     "head@greenvalley.edu",
		"role":      "admin",
		"school_id": "school-1",
	})
	require.NoError(t, err)
	require.Equal(t, "user-123", creds.ID)
	require.Equal(t, RoleAdmin, creds.Role)
	require.NotNil(t, creds.SchoolID)
	require.Equal(t, "school-1", *creds.SchoolID)

	_, err = DefaultCredentialExtractor(map[string]interface{}{"email": "x@y"})
	require.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	secret := "test-secret"
	var seen *UserCredentials
	handler := JWT(HS256Verifier([]byte(secret)), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   bool
	}{
		{name: "no token passes through", wantStatus: http.StatusNoContent},
		{
			name:       "valid token",
			header:     "Bearer " + signed(t, secret, jwt.MapClaims{"sub": "u1", "role": "TEACHER", "exp": time.Now().Add(time.Hour).Unix()}),
			wantStatus: http.StatusNoContent,
			wantUser:   true,
		},
		{
			name:       "wrong secret",
			header:     "Bearer " + signed(t, "other", jwt.MapClaims{"sub": "u1"}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired",
			header:     "Bearer " + signed(t, secret, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			require.Equal(t, tc.wantUser, seen != nil)
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleAdmin, RoleSuperAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithUser(context.Background(), &UserCredentials{ID: "u", Role: RoleTeacher}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithUser(context.Background(), &UserCredentials{ID: "u", Role: RoleAdmin}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
