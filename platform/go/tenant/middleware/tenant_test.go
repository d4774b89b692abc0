package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/schoolhub/platform/go/auth"
	"github.com/zenGate-Global/schoolhub/platform/go/tenant"
)

type stubResolver struct {
	calls  int
	result tenant.Context
	err    error
}

func (s *stubResolver) ResolveTenant(_ context.Context, id uuid.UUID) (tenant.Context, error) {
	s.calls++
	if s.err != nil {
		return tenant.Context{}, s.err
	}
	out := s.result
	out.SchoolID = id
	return out, nil
}

func serve(t *testing.T, h http.Handler, creds *platformauth.UserCredentials) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/limits", nil)
	if creds != nil {
		req = req.WithContext(platformauth.WithUser(req.Context(), creds))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWithTenantResolvesAndCaches(t *testing.T) {
	resolver := &stubResolver{result: tenant.Context{Slug: "green-valley"}}
	schoolID := uuid.New().String()
	actorID := uuid.New()

	var got tenant.Context
	h := WithTenant(resolver, Config{CacheTTL: time.Minute})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = tenant.FromContext(r.Context())
	}))

	creds := &platformauth.UserCredentials{ID: actorID.String(), SchoolID: &schoolID}
	for i := 0; i < 3; i++ {
		rec := serve(t, h, creds)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Equal(t, 1, resolver.calls)
	require.Equal(t, "green-valley", got.Slug)
	require.Equal(t, schoolID, got.SchoolID.String())
	require.Equal(t, actorID, got.ActorID)
}

func TestWithTenantRejections(t *testing.T) {
	valid := uuid.New().String()
	invalid := "not-a-uuid"

	cases := []struct {
		name     string
		creds    *platformauth.UserCredentials
		resolver *stubResolver
		want     int
	}{
		{name: "anonymous", resolver: &stubResolver{}, want: http.StatusUnauthorized},
		{name: "no school claim", creds: &platformauth.UserCredentials{ID: "u"}, resolver: &stubResolver{}, want: http.StatusUnauthorized},
		{name: "malformed school", creds: &platformauth.UserCredentials{ID: "u", SchoolID: &invalid}, resolver: &stubResolver{}, want: http.StatusUnauthorized},
		{name: "unknown school", creds: &platformauth.UserCredentials{ID: "u", SchoolID: &valid}, resolver: &stubResolver{err: errors.New("nope")}, want: http.StatusUnauthorized},
		{name: "inactive school", creds: &platformauth.UserCredentials{ID: "u", SchoolID: &valid}, resolver: &stubResolver{err: ErrInactive}, want: http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := WithTenant(tc.resolver, Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not be reached")
			}))
			rec := serve(t, h, tc.creds)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}
