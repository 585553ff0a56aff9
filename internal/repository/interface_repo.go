// internal/repository/interface_repo.go
package repository

import (
	"context"
	"time"

	"settlement-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so every repository
// runs unchanged inside or outside a unit of work
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ============================================================================
// TEMP WALLETS
// ============================================================================

type TempWalletRepository interface {
	Create(ctx context.Context, wallet *domain.TempWallet) error
	GetByID(ctx context.Context, id int64) (*domain.TempWallet, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.TempWallet, error)
	GetByAddress(ctx context.Context, address string) (*domain.TempWallet, error)
	GetActive(ctx context.Context, userID string, network domain.Network) (*domain.TempWallet, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.TempWallet, error)

	// ListSweepCandidates returns ACTIVE wallets not inspected since filter.CheckedBefore
	ListSweepCandidates(ctx context.Context, filter SweepCandidateFilter) ([]*domain.TempWallet, error)
	// ListStaleKeys returns wallets whose key hash differs from currentHash
	ListStaleKeys(ctx context.Context, currentHash string, limit int) ([]*domain.TempWallet, error)

	UpdateStatus(ctx context.Context, id int64, status domain.TempWalletStatus) error
	AddReceived(ctx context.Context, id int64, amount decimal.Decimal) error
	TouchChecked(ctx context.Context, id int64, at time.Time) error
	UpdateKey(ctx context.Context, id int64, ciphertext, keyHash string) error
}

type SweepCandidateFilter struct {
	Networks      []domain.Network
	CheckedBefore time.Time
	Limit         int
}

// ============================================================================
// LEDGER
// ============================================================================

type BalanceRepository interface {
	Get(ctx context.Context, userID string) (*domain.Balance, error)
	GetForUpdate(ctx context.Context, userID string) (*domain.Balance, error)
	// Credit upserts the balance row
	Credit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Balance, error)
	// Debit never lets the amount go below zero
	Debit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Balance, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id int64) (*domain.Transaction, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Transaction, error)
	List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)
	// UpdateStatus moves a transaction out of the expected status, ErrInvalidTransactionState otherwise
	UpdateStatus(ctx context.Context, id int64, from, to domain.TransactionStatus, txHash *string) error
}

// ============================================================================
// TRANSFER INTENTS
// ============================================================================

type TransferIntentRepository interface {
	Create(ctx context.Context, intent *domain.TransferIntent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TransferIntent, error)
	// ListByReference returns every intent of a kind for a wallet or transaction, oldest first
	ListByReference(ctx context.Context, kind domain.TransferKind, reference string) ([]*domain.TransferIntent, error)
	// ListOpen returns CREATED, BROADCAST and CONFIRMED intents last touched before the cutoff
	ListOpen(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.TransferIntent, error)
	Transition(ctx context.Context, id uuid.UUID, update IntentUpdate) error
}

// IntentUpdate is applied only while the intent is in one of From
type IntentUpdate struct {
	From   []domain.TransferIntentStatus
	To     domain.TransferIntentStatus
	TxHash *string
	Error  *string
}

// ============================================================================
// UNIT OF WORK
// ============================================================================

type Repositories struct {
	Wallets      TempWalletRepository
	Balances     BalanceRepository
	Transactions TransactionRepository
	Intents      TransferIntentRepository
}

// Store hands out repositories bound to the pool, or to a transaction inside WithTx.
// The transaction commits only when fn returns nil.
type Store interface {
	Repositories() Repositories
	WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
