// internal/repository/wallet_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const tempWalletColumns = `
	id, user_id, address, network, private_key, encryption_key_hash,
	status, total_received::text, last_checked_at, created_at, updated_at`

type tempWalletRepo struct {
	db DBTX
}

func NewTempWalletRepository(db DBTX) TempWalletRepository {
	return &tempWalletRepo{db: db}
}

// ============================================================================
// CORE CRUD OPERATIONS
// ============================================================================

// Create inserts an ACTIVE wallet; a second ACTIVE wallet for the same user and network is ErrWalletExists
func (r *tempWalletRepo) Create(ctx context.Context, wallet *domain.TempWallet) error {
	query := `
		INSERT INTO temp_wallets (
			user_id, address, network, private_key, encryption_key_hash,
			status, total_received
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	if wallet.Status == "" {
		wallet.Status = domain.TempWalletActive
	}

	err := r.db.QueryRow(
		ctx, query,
		wallet.UserID,
		wallet.Address,
		string(wallet.Network),
		wallet.PrivateKey,
		wallet.EncryptionKeyHash,
		string(wallet.Status),
		wallet.TotalReceived.String(),
	).Scan(&wallet.ID, &wallet.CreatedAt, &wallet.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("wallet for user %s on %s: %w", wallet.UserID, wallet.Network, domain.ErrWalletExists)
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	return nil
}

// GetByID retrieves a wallet by ID
func (r *tempWalletRepo) GetByID(ctx context.Context, id int64) (*domain.TempWallet, error) {
	query := `SELECT ` + tempWalletColumns + ` FROM temp_wallets WHERE id = $1`
	return scanTempWallet(r.db.QueryRow(ctx, query, id))
}

// GetByIDForUpdate locks the wallet row until the surrounding transaction ends
func (r *tempWalletRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.TempWallet, error) {
	query := `SELECT ` + tempWalletColumns + ` FROM temp_wallets WHERE id = $1 FOR UPDATE`
	return scanTempWallet(r.db.QueryRow(ctx, query, id))
}

func (r *tempWalletRepo) GetByAddress(ctx context.Context, address string) (*domain.TempWallet, error) {
	query := `SELECT ` + tempWalletColumns + ` FROM temp_wallets WHERE address = $1`
	return scanTempWallet(r.db.QueryRow(ctx, query, address))
}

// GetActive returns the single ACTIVE wallet of a user on a network
func (r *tempWalletRepo) GetActive(ctx context.Context, userID string, network domain.Network) (*domain.TempWallet, error) {
	query := `
		SELECT ` + tempWalletColumns + `
		FROM temp_wallets
		WHERE user_id = $1 AND network = $2 AND status = 'ACTIVE'
	`
	return scanTempWallet(r.db.QueryRow(ctx, query, userID, string(network)))
}

func (r *tempWalletRepo) ListByUser(ctx context.Context, userID string) ([]*domain.TempWallet, error) {
	query := `
		SELECT ` + tempWalletColumns + `
		FROM temp_wallets
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return collectTempWallets(rows)
}

// ============================================================================
// SCANS
// ============================================================================

func (r *tempWalletRepo) ListSweepCandidates(ctx context.Context, filter SweepCandidateFilter) ([]*domain.TempWallet, error) {
	b := psql.Select(tempWalletColumns).
		From("temp_wallets").
		Where(sq.Eq{"status": string(domain.TempWalletActive)}).
		Where(sq.Or{
			sq.Eq{"last_checked_at": nil},
			sq.Lt{"last_checked_at": filter.CheckedBefore},
		}).
		OrderBy("last_checked_at ASC NULLS FIRST", "id ASC")

	if len(filter.Networks) > 0 {
		networks := make([]string, 0, len(filter.Networks))
		for _, n := range filter.Networks {
			networks = append(networks, string(n))
		}
		b = b.Where(sq.Eq{"network": networks})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sweep candidate query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweep candidates: %w", err)
	}
	return collectTempWallets(rows)
}

func (r *tempWalletRepo) ListStaleKeys(ctx context.Context, currentHash string, limit int) ([]*domain.TempWallet, error) {
	b := psql.Select(tempWalletColumns).
		From("temp_wallets").
		Where(sq.Or{
			sq.Eq{"encryption_key_hash": nil},
			sq.NotEq{"encryption_key_hash": currentHash},
		}).
		OrderBy("id ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build stale key query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale key wallets: %w", err)
	}
	return collectTempWallets(rows)
}

// ============================================================================
// UPDATES
// ============================================================================

func (r *tempWalletRepo) UpdateStatus(ctx context.Context, id int64, status domain.TempWalletStatus) error {
	query := `UPDATE temp_wallets SET status = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, "update wallet status", query, string(status), id)
}

func (r *tempWalletRepo) AddReceived(ctx context.Context, id int64, amount decimal.Decimal) error {
	query := `
		UPDATE temp_wallets
		SET total_received = total_received + $1, updated_at = NOW()
		WHERE id = $2
	`
	return r.execOne(ctx, "add received amount", query, amount.String(), id)
}

func (r *tempWalletRepo) TouchChecked(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE temp_wallets SET last_checked_at = $1 WHERE id = $2`
	return r.execOne(ctx, "update last checked", query, at, id)
}

// UpdateKey stores a re-encrypted private key together with the hash of the key that sealed it
func (r *tempWalletRepo) UpdateKey(ctx context.Context, id int64, ciphertext, keyHash string) error {
	query := `
		UPDATE temp_wallets
		SET private_key = $1, encryption_key_hash = $2, updated_at = NOW()
		WHERE id = $3
	`
	return r.execOne(ctx, "update wallet key", query, ciphertext, keyHash, id)
}

func (r *tempWalletRepo) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func scanTempWallet(row pgx.Row) (*domain.TempWallet, error) {
	var (
		w        domain.TempWallet
		network  string
		status   string
		received string
	)

	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Address,
		&network,
		&w.PrivateKey,
		&w.EncryptionKeyHash,
		&status,
		&received,
		&w.LastCheckedAt,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}

	w.Network = domain.Network(network)
	w.Status = domain.TempWalletStatus(status)
	if w.TotalReceived, err = decimal.NewFromString(received); err != nil {
		return nil, fmt.Errorf("failed to parse total_received %q: %w", received, err)
	}

	return &w, nil
}

func collectTempWallets(rows pgx.Rows) ([]*domain.TempWallet, error) {
	defer rows.Close()

	var wallets []*domain.TempWallet
	for rows.Next() {
		w, err := scanTempWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallets: %w", err)
	}
	return wallets, nil
}
