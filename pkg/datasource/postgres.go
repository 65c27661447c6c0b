// Package datasource wraps the single analytical Postgres connection pool
// shared by the SQL executor (C4) and the anomaly sentry (C10).
package datasource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pool wraps a pgxpool.Pool with the sizing conventions the teacher's
// query executor uses.
type Pool struct {
	*pgxpool.Pool
	logger *zap.Logger
}

// Config configures pool construction.
type Config struct {
	URL            string
	MaxConnections int32
	MinConnections int32
}

// Open creates and validates a connection pool against the analytical
// database. It pings once so misconfiguration surfaces as a
// PermanentExternal error at startup rather than on the first query.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool, logger: logger.Named("datasource")}, nil
}

// Close releases all pooled connections.
func (p *Pool) Close() {
	p.Pool.Close()
}
