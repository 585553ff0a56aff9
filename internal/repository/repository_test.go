package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"settlement-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDB captures the SQL a repository sends without a database
type recordingDB struct {
	sql      string
	args     []any
	affected string
	err      error
}

func (d *recordingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.sql, d.args = sql, args
	return pgconn.NewCommandTag(d.affected), d.err
}

func (d *recordingDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.sql, d.args = sql, args
	return nil, errors.New("no database")
}

func (d *recordingDB) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not used")
}

func TestEmbeddedSchema(t *testing.T) {
	files, err := fs.Glob(schemaFiles, "schema/*.sql")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	up, err := fs.ReadFile(schemaFiles, "schema/000001_settlement.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"temp_wallets", "balances", "transactions", "transfer_intents"} {
		assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, string(up), "temp_wallets_active_user_network")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestListSweepCandidates_Query(t *testing.T) {
	db := &recordingDB{}
	repo := NewTempWalletRepository(db)
	before := time.Now().Add(-time.Minute)

	_, err := repo.ListSweepCandidates(context.Background(), SweepCandidateFilter{
		Networks:      []domain.Network{domain.NetworkTron, domain.NetworkPolygon},
		CheckedBefore: before,
		Limit:         25,
	})
	require.Error(t, err)

	assert.Contains(t, db.sql, "FROM temp_wallets")
	assert.Contains(t, db.sql, "last_checked_at IS NULL")
	assert.Contains(t, db.sql, "network IN ($3,$4)")
	assert.Contains(t, db.sql, "LIMIT 25")
	assert.Equal(t, []any{"ACTIVE", before, "TRON", "POLYGON"}, db.args)
}

func TestIntentTransition(t *testing.T) {
	id := uuid.New()
	hash := "0xabc"

	t.Run("applies update guarded by from states", func(t *testing.T) {
		db := &recordingDB{affected: "UPDATE 1"}
		repo := NewTransferIntentRepository(db)

		err := repo.Transition(context.Background(), id, IntentUpdate{
			From:   []domain.TransferIntentStatus{domain.IntentCreated},
			To:     domain.IntentBroadcast,
			TxHash: &hash,
		})
		require.NoError(t, err)

		assert.Contains(t, db.sql, "UPDATE transfer_intents")
		assert.Contains(t, db.sql, "tx_hash = ")
		assert.Contains(t, db.args, "BROADCAST")
		assert.Contains(t, db.args, "CREATED")
		assert.Contains(t, db.args, hash)
	})

	t.Run("no matching row is an invalid state", func(t *testing.T) {
		db := &recordingDB{affected: "UPDATE 0"}
		repo := NewTransferIntentRepository(db)

		err := repo.Transition(context.Background(), id, IntentUpdate{
			From: []domain.TransferIntentStatus{domain.IntentBroadcast},
			To:   domain.IntentConfirmed,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransactionState)
	})
}

func TestListByReference_Query(t *testing.T) {
	db := &recordingDB{}
	repo := NewTransferIntentRepository(db)

	_, err := repo.ListByReference(context.Background(), domain.TransferKindWithdraw, "42")
	require.Error(t, err)

	assert.Contains(t, db.sql, "FROM transfer_intents")
	assert.Contains(t, db.sql, "ORDER BY created_at ASC")
	assert.ElementsMatch(t, []any{"WITHDRAW", "42"}, db.args)
}

func TestWalletUpdate_NotFound(t *testing.T) {
	db := &recordingDB{affected: "UPDATE 0"}
	repo := NewTempWalletRepository(db)

	err := repo.UpdateStatus(context.Background(), 42, domain.TempWalletCompleted)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	assert.Equal(t, []any{"COMPLETED", int64(42)}, db.args)
}
