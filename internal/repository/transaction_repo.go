// internal/repository/transaction_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"settlement-service/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `
	id, client_id, type, amount::text, wallet_address, payment_network,
	status, transaction_hash, created_at, updated_at`

type transactionRepo struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) TransactionRepository {
	return &transactionRepo{db: db}
}

// Create records a ledger transaction
func (r *transactionRepo) Create(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			client_id, type, amount, wallet_address, payment_network,
			status, transaction_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		tx.ClientID,
		string(tx.Type),
		domain.LedgerAmount(tx.Amount).String(),
		tx.WalletAddress,
		string(tx.PaymentNetwork),
		string(tx.Status),
		tx.TransactionHash,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, id))
}

func (r *transactionRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(r.db.QueryRow(ctx, query, id))
}

// List returns the newest transactions matching the filter
func (r *transactionRepo) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	b := psql.Select(transactionColumns).
		From("transactions").
		OrderBy("created_at DESC", "id DESC")

	if filter.ClientID != nil {
		b = b.Where(sq.Eq{"client_id": *filter.ClientID})
	}
	if filter.Type != nil {
		b = b.Where(sq.Eq{"type": string(*filter.Type)})
	}
	if filter.Status != nil {
		b = b.Where(sq.Eq{"status": string(*filter.Status)})
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	b = b.Limit(uint64(limit))

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

func (r *transactionRepo) UpdateStatus(ctx context.Context, id int64, from, to domain.TransactionStatus, txHash *string) error {
	query := `
		UPDATE transactions
		SET status = $1,
		    transaction_hash = COALESCE($2, transaction_hash),
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	tag, err := r.db.Exec(ctx, query, string(to), txHash, id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d is not %s: %w", id, from, domain.ErrInvalidTransactionState)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx      domain.Transaction
		txType  string
		amount  string
		network string
		status  string
	)

	err := row.Scan(
		&tx.ID,
		&tx.ClientID,
		&txType,
		&amount,
		&tx.WalletAddress,
		&network,
		&status,
		&tx.TransactionHash,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Type = domain.TransactionType(txType)
	tx.PaymentNetwork = domain.PaymentNetwork(network)
	tx.Status = domain.TransactionStatus(status)
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse transaction amount %q: %w", amount, err)
	}
	return &tx, nil
}
