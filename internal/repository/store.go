// internal/repository/store.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

type PgStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgStore(pool *pgxpool.Pool, logger *zap.Logger) *PgStore {
	return &PgStore{pool: pool, logger: logger}
}

func (s *PgStore) Repositories() Repositories {
	return newRepositories(s.pool)
}

// WithTx runs fn inside a READ COMMITTED transaction
func (s *PgStore) WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func newRepositories(db DBTX) Repositories {
	return Repositories{
		Wallets:      NewTempWalletRepository(db),
		Balances:     NewBalanceRepository(db),
		Transactions: NewTransactionRepository(db),
		Intents:      NewTransferIntentRepository(db),
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
