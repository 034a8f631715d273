// Package accountdb opens the account repository named by the database
// configuration.
package accountdb

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/config"
	"github.com/cory-johannsen/bancho/internal/storage"
	"github.com/cory-johannsen/bancho/internal/storage/postgres"
	"github.com/cory-johannsen/bancho/internal/storage/sqlite"
)

// Open connects to the configured driver. Closing the repository releases
// the connection.
//
// Precondition: cfg must have passed validation.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (storage.Repository, error) {
	start := time.Now()
	switch cfg.Driver {
	case config.DriverSQLite:
		repo, err := sqlite.Open(ctx, cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("database opened",
			zap.String("driver", cfg.Driver),
			zap.String("path", cfg.Path),
			zap.Duration("elapsed", time.Since(start)))
		return repo, nil
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("database connected",
			zap.String("driver", cfg.Driver),
			zap.String("host", cfg.Host),
			zap.Duration("elapsed", time.Since(start)))
		return postgres.NewAccountRepository(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
