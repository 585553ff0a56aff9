// internal/repository/balance_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"settlement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type balanceRepo struct {
	db DBTX
}

func NewBalanceRepository(db DBTX) BalanceRepository {
	return &balanceRepo{db: db}
}

// Get fetches the balance for a user (read-only, no lock)
func (r *balanceRepo) Get(ctx context.Context, userID string) (*domain.Balance, error) {
	query := `SELECT user_id, amount::text, updated_at FROM balances WHERE user_id = $1`
	return scanBalance(r.db.QueryRow(ctx, query, userID))
}

// GetForUpdate fetches and locks the balance row
func (r *balanceRepo) GetForUpdate(ctx context.Context, userID string) (*domain.Balance, error) {
	query := `SELECT user_id, amount::text, updated_at FROM balances WHERE user_id = $1 FOR UPDATE`
	return scanBalance(r.db.QueryRow(ctx, query, userID))
}

func (r *balanceRepo) Credit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Balance, error) {
	query := `
		INSERT INTO balances (user_id, amount, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET amount = balances.amount + EXCLUDED.amount,
		    updated_at = NOW()
		RETURNING user_id, amount::text, updated_at
	`

	b, err := scanBalance(r.db.QueryRow(ctx, query, userID, amount.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}
	return b, nil
}

func (r *balanceRepo) Debit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Balance, error) {
	query := `
		UPDATE balances
		SET amount = amount - $2, updated_at = NOW()
		WHERE user_id = $1 AND amount >= $2
		RETURNING user_id, amount::text, updated_at
	`

	b, err := scanBalance(r.db.QueryRow(ctx, query, userID, amount.String()))
	if err != nil {
		if errors.Is(err, domain.ErrBalanceNotFound) {
			return nil, &domain.InsufficientFundsError{
				Scope:     "ledger",
				Asset:     "balance",
				Available: "unknown",
				Required:  amount.StringFixed(domain.LedgerScale),
			}
		}
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}
	return b, nil
}

func scanBalance(row pgx.Row) (*domain.Balance, error) {
	var (
		b      domain.Balance
		amount string
	)
	if err := row.Scan(&b.UserID, &amount, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("failed to scan balance: %w", err)
	}

	var err error
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse balance amount %q: %w", amount, err)
	}
	return &b, nil
}
