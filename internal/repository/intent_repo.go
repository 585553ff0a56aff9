// internal/repository/intent_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const intentColumns = `
	id::text, kind, network, reference, from_address, to_address, amount::text,
	status, tx_hash, error, created_at, updated_at`

type transferIntentRepo struct {
	db DBTX
}

func NewTransferIntentRepository(db DBTX) TransferIntentRepository {
	return &transferIntentRepo{db: db}
}

func (r *transferIntentRepo) Create(ctx context.Context, intent *domain.TransferIntent) error {
	query := `
		INSERT INTO transfer_intents (
			id, kind, network, reference, from_address, to_address,
			amount, status, tx_hash, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		intent.ID.String(),
		string(intent.Kind),
		string(intent.Network),
		intent.Reference,
		intent.FromAddress,
		intent.ToAddress,
		intent.Amount.String(),
		string(intent.Status),
		intent.TxHash,
		intent.Error,
	).Scan(&intent.CreatedAt, &intent.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create transfer intent: %w", err)
	}
	return nil
}

func (r *transferIntentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransferIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM transfer_intents WHERE id = $1`
	return scanIntent(r.db.QueryRow(ctx, query, id.String()))
}

// ListByReference returns the intents of a kind for a wallet or transaction, oldest first
func (r *transferIntentRepo) ListByReference(ctx context.Context, kind domain.TransferKind, reference string) ([]*domain.TransferIntent, error) {
	query, args, err := psql.Select(intentColumns).
		From("transfer_intents").
		Where(sq.Eq{"kind": string(kind), "reference": reference}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build intent query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list intents by reference: %w", err)
	}
	return collectIntents(rows)
}

func (r *transferIntentRepo) ListOpen(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.TransferIntent, error) {
	b := psql.Select(intentColumns).
		From("transfer_intents").
		Where(sq.Eq{"status": []string{
			string(domain.IntentCreated),
			string(domain.IntentBroadcast),
			string(domain.IntentConfirmed),
		}}).
		Where(sq.Lt{"updated_at": updatedBefore}).
		OrderBy("updated_at ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build open intent query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list open intents: %w", err)
	}
	return collectIntents(rows)
}

func collectIntents(rows pgx.Rows) ([]*domain.TransferIntent, error) {
	defer rows.Close()

	var intents []*domain.TransferIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intents: %w", err)
	}
	return intents, nil
}

// Transition applies update only while the intent is still in one of update.From
func (r *transferIntentRepo) Transition(ctx context.Context, id uuid.UUID, update IntentUpdate) error {
	from := make([]string, 0, len(update.From))
	for _, s := range update.From {
		from = append(from, string(s))
	}

	b := psql.Update("transfer_intents").
		Set("status", string(update.To)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id.String()}).
		Where(sq.Eq{"status": from})
	if update.TxHash != nil {
		b = b.Set("tx_hash", *update.TxHash)
	}
	if update.Error != nil {
		b = b.Set("error", *update.Error)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build intent update: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update transfer intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("intent %s cannot move to %s: %w", id, update.To, domain.ErrInvalidTransactionState)
	}
	return nil
}

func scanIntent(row pgx.Row) (*domain.TransferIntent, error) {
	var (
		intent  domain.TransferIntent
		id      string
		kind    string
		network string
		amount  string
		status  string
	)

	err := row.Scan(
		&id,
		&kind,
		&network,
		&intent.Reference,
		&intent.FromAddress,
		&intent.ToAddress,
		&amount,
		&status,
		&intent.TxHash,
		&intent.Error,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIntentNotFound
		}
		return nil, fmt.Errorf("failed to scan transfer intent: %w", err)
	}

	if intent.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse intent id %q: %w", id, err)
	}
	if intent.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse intent amount %q: %w", amount, err)
	}
	intent.Kind = domain.TransferKind(kind)
	intent.Network = domain.Network(network)
	intent.Status = domain.TransferIntentStatus(status)
	return &intent, nil
}
