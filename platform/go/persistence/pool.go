package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPingTimeout = 5 * time.Second

// PoolConfig is how the api, worker and cli binaries reach Postgres.
type PoolConfig struct {
	ConnString      string
	ApplicationName string
	MaxConns        int32

	// StatementTimeout caps each statement of a session. Limit checks hold a school row lock,
	// so a stuck query would otherwise block every admission for that school.
	StatementTimeout time.Duration
	PingTimeout      time.Duration
}

// pgxConfig resolves cfg into a pgxpool configuration. Sessions always run in UTC because
// subscription and payment dates are civil days compared against CURRENT_DATE.
func (cfg PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	if cfg.ConnString == "" {
		return nil, errors.New("database url is empty")
	}
	pc, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}

	params := pc.ConnConfig.RuntimeParams
	params["timezone"] = "UTC"
	if cfg.ApplicationName != "" {
		params["application_name"] = cfg.ApplicationName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	return pc, nil
}

// NewPool opens a pool and fails fast when the database is unreachable.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pc, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s: %w", pc.ConnConfig.Host, err)
	}
	return pool, nil
}

// ClosePool is a nil-tolerant pool.Close for deferred cleanup.
func ClosePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
