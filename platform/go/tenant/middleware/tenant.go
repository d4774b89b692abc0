package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/schoolhub/platform/go/auth"
	"github.com/zenGate-Global/schoolhub/platform/go/tenant"
)

// ErrInactive is returned by resolvers for schools that have been soft-deactivated.
var ErrInactive = errors.New("school inactive")

// Resolver defines the lookup capability required to populate the tenant Context.
// Implemented by the schools service.
type Resolver interface {
	ResolveTenant(ctx context.Context, schoolID uuid.UUID) (tenant.Context, error)
}

// Config controls middleware behavior.
type Config struct {
	// CacheTTL enables a small in-memory cache of resolved schools; zero disables caching.
	CacheTTL time.Duration
}

// WithTenant resolves the school from the authenticated credentials and attaches tenant.Context.
func WithTenant(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}

	var cache *tenantCache
	if cfg.CacheTTL > 0 {
		cache = newTenantCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok || creds == nil || creds.SchoolID == nil || *creds.SchoolID == "" {
				http.Error(w, "school required", http.StatusUnauthorized)
				return
			}

			schoolID, err := uuid.Parse(*creds.SchoolID)
			if err != nil {
				http.Error(w, "invalid school id", http.StatusUnauthorized)
				return
			}

			actorID, _ := uuid.Parse(creds.ID)

			tc, found := cache.get(schoolID)
			if !found {
				tc, err = resolver.ResolveTenant(r.Context(), schoolID)
				switch {
				case errors.Is(err, ErrInactive):
					http.Error(w, "school inactive", http.StatusForbidden)
					return
				case err != nil:
					http.Error(w, "school not found", http.StatusUnauthorized)
					return
				}
				cache.put(tc)
			}

			tc.ActorID = actorID
			next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), tc)))
		})
	}
}

type tenantCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[uuid.UUID]cacheItem
}

type cacheItem struct {
	tc        tenant.Context
	expiresAt time.Time
}

func newTenantCache(ttl time.Duration) *tenantCache {
	return &tenantCache{ttl: ttl, items: make(map[uuid.UUID]cacheItem)}
}

func (c *tenantCache) get(id uuid.UUID) (tenant.Context, bool) {
	if c == nil {
		return tenant.Context{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]
	if !ok || time.Now().After(item.expiresAt) {
		delete(c.items, id)
		return tenant.Context{}, false
	}
	return item.tc, true
}

func (c *tenantCache) put(tc tenant.Context) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tc.ActorID = uuid.Nil
	c.items[tc.SchoolID] = cacheItem{tc: tc, expiresAt: time.Now().Add(c.ttl)}
}
