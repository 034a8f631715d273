// Package postgres stores accounts in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/config"
)

// Pool is the connection pool behind an AccountRepository.
type Pool struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPool connects to the database described by cfg. Zero pool limits keep
// the pgx defaults.
//
// Postcondition: Returns a Pool that answered a ping, or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolCfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		logger.Debug("postgres connection opened", zap.Uint32("pid", conn.PgConn().PID()))
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info("postgres pool ready",
		zap.String("database", cfg.Name),
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Int32("min_conns", poolCfg.MinConns))
	return &Pool{pool: pool, logger: logger}, nil
}

// Close releases every connection and logs how busy the pool was.
func (p *Pool) Close() {
	stat := p.pool.Stat()
	p.pool.Close()
	p.logger.Info("postgres pool closed",
		zap.Int64("acquires", stat.AcquireCount()),
		zap.Duration("acquire_wait", stat.AcquireDuration()),
		zap.Int64("canceled_acquires", stat.CanceledAcquireCount()))
}

// DB returns the underlying pgxpool.Pool for use by repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
