// internal/repository/db.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ConnectDB opens the pool, retrying with doubling delay while the database comes up
func ConnectDB(ctx context.Context, dbURL string, logger *zap.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 5 * time.Minute

	maxRetries := 5
	delay := 2 * time.Second

	for i := 1; i <= maxRetries; i++ {
		logger.Info("connecting to database", zap.Int("attempt", i), zap.Int("max_attempts", maxRetries))

		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pool, connErr := pgxpool.NewWithConfig(connectCtx, config)
		if connErr == nil {
			if connErr = pool.Ping(connectCtx); connErr == nil {
				cancel()
				logger.Info("connected to database")
				return pool, nil
			}
			pool.Close()
			connErr = fmt.Errorf("ping failed: %w", connErr)
		}
		cancel()
		err = connErr

		logger.Warn("database connection failed", zap.Error(err))

		if i < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", maxRetries, err)
}
