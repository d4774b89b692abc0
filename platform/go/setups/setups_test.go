package setups

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
)

func TestNewStores(t *testing.T) {
	_, err := NewStores(nil)
	require.Error(t, err)

	// pgxpool connects lazily, so no server is needed to build the stores.
	pool, err := pgxpool.New(context.Background(), "postgres://schoolhub@127.0.0.1:1/schoolhub")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	stores, err := NewStores(persistence.NewDB(pool))
	require.NoError(t, err)
	require.NotNil(t, stores.Schools)
	require.NotNil(t, stores.Notifications)
	require.NotNil(t, stores.Issues)
}

func TestNewRedisClientRequiresAddress(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{})
	require.Error(t, err)
}
