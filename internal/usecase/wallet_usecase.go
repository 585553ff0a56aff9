// internal/usecase/wallet_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"settlement-service/internal/chains"
	"settlement-service/internal/domain"
	"settlement-service/internal/repository"
	"settlement-service/internal/security"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Keys stored before encryption was introduced
var legacyKeyPatterns = map[domain.Network]*regexp.Regexp{
	domain.NetworkTron:    regexp.MustCompile(`^[0-9a-fA-F]{64}$`),
	domain.NetworkPolygon: regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`),
}

type WalletUsecase struct {
	store         repository.Store
	chainRegistry *chains.Registry
	vault         *security.KeyVault
	logger        *zap.Logger
}

func NewWalletUsecase(
	store repository.Store,
	chainRegistry *chains.Registry,
	vault *security.KeyVault,
	logger *zap.Logger,
) *WalletUsecase {
	return &WalletUsecase{
		store:         store,
		chainRegistry: chainRegistry,
		vault:         vault,
		logger:        logger.With(zap.String("component", "wallet_usecase")),
	}
}

// GetOrCreate returns the user's ACTIVE temp wallet on network, generating one if needed
func (uc *WalletUsecase) GetOrCreate(ctx context.Context, userID string, network domain.Network) (*domain.TempWallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if !network.Valid() {
		return nil, fmt.Errorf("network %q: %w", network, domain.ErrUnsupportedNetwork)
	}

	repos := uc.store.Repositories()

	// 1. Reuse the active wallet
	existing, err := repos.Wallets.GetActive(ctx, userID, network)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, fmt.Errorf("failed to look up wallet: %w", err)
	}

	// 2. Generate a fresh keypair
	chain, err := uc.chainRegistry.Get(network)
	if err != nil {
		return nil, err
	}

	generated, err := chain.GenerateWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet: %w", err)
	}

	// 3. Seal the key under the current vault key
	encrypted, err := uc.vault.Encrypt(generated.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}
	keyHash := uc.vault.KeyHash()

	wallet := &domain.TempWallet{
		UserID:            userID,
		Address:           generated.Address,
		Network:           network,
		PrivateKey:        encrypted,
		EncryptionKeyHash: &keyHash,
		Status:            domain.TempWalletActive,
		TotalReceived:     decimal.Zero,
	}

	// 4. Persist; a concurrent request may have won the unique index
	if err := repos.Wallets.Create(ctx, wallet); err != nil {
		if errors.Is(err, domain.ErrWalletExists) {
			uc.logger.Info("Concurrent wallet creation, returning winner",
				zap.String("user_id", userID),
				zap.String("network", network.String()))
			return repos.Wallets.GetActive(ctx, userID, network)
		}
		return nil, fmt.Errorf("failed to save wallet: %w", err)
	}

	uc.logger.Info("Temp wallet created",
		zap.Int64("wallet_id", wallet.ID),
		zap.String("user_id", userID),
		zap.String("network", network.String()),
		zap.String("address", wallet.Address),
		zap.String("key_hash", keyHash))

	return wallet, nil
}

// DecryptKey returns the wallet's private key. Legacy plaintext keys pass through unchanged.
func (uc *WalletUsecase) DecryptKey(wallet *domain.TempWallet) (string, error) {
	privateKey, err := uc.vault.Decrypt(wallet.PrivateKey, wallet.KeyHash())
	if err == nil {
		return privateKey, nil
	}

	if pattern, ok := legacyKeyPatterns[wallet.Network]; ok && pattern.MatchString(wallet.PrivateKey) {
		uc.logger.Warn("Wallet holds a plaintext private key, run key rotation",
			zap.Int64("wallet_id", wallet.ID),
			zap.String("address", wallet.Address))
		return wallet.PrivateKey, nil
	}

	decErr := &domain.DecryptionError{Err: err}
	var vaultErr *domain.DecryptionError
	if errors.As(err, &vaultErr) {
		decErr.KeysTried = vaultErr.KeysTried
		decErr.Err = vaultErr.Err
	}
	decErr.WalletID = wallet.ID
	decErr.Address = wallet.Address
	decErr.KeyHash = wallet.KeyHash()

	uc.logger.Error("Failed to decrypt wallet key",
		zap.Int64("wallet_id", wallet.ID),
		zap.String("address", wallet.Address),
		zap.String("key_hash", wallet.KeyHash()),
		zap.Int("keys_tried", decErr.KeysTried))

	return "", decErr
}

// RefreshBalances reads both balances from chain. Query failures degrade to zero.
func (uc *WalletUsecase) RefreshBalances(ctx context.Context, wallet *domain.TempWallet) *domain.WalletBalances {
	balances := &domain.WalletBalances{
		Address:    wallet.Address,
		Network:    wallet.Network,
		Native:     decimal.Zero,
		Stablecoin: decimal.Zero,
		CheckedAt:  time.Now(),
	}

	chain, err := uc.chainRegistry.Get(wallet.Network)
	if err != nil {
		uc.logger.Warn("No adapter for wallet network",
			zap.Int64("wallet_id", wallet.ID),
			zap.String("network", wallet.Network.String()))
		return balances
	}

	if stable, err := chain.GetStablecoinBalance(ctx, wallet.Address); err != nil {
		uc.logger.Warn("Failed to read stablecoin balance",
			zap.String("address", wallet.Address),
			zap.Error(err))
	} else {
		balances.Stablecoin = stable
	}

	if native, err := chain.GetNativeBalance(ctx, wallet.Address); err != nil {
		uc.logger.Warn("Failed to read native balance",
			zap.String("address", wallet.Address),
			zap.Error(err))
	} else {
		balances.Native = native
	}

	if err := uc.store.Repositories().Wallets.TouchChecked(ctx, wallet.ID, balances.CheckedAt); err != nil {
		uc.logger.Warn("Failed to stamp last_checked_at",
			zap.Int64("wallet_id", wallet.ID),
			zap.Error(err))
	} else {
		checked := balances.CheckedAt
		wallet.LastCheckedAt = &checked
	}

	return balances
}

// BalancesForUser returns live balances for every temp wallet of a user
func (uc *WalletUsecase) BalancesForUser(ctx context.Context, userID string) ([]*domain.WalletBalanceView, error) {
	wallets, err := uc.store.Repositories().Wallets.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]*domain.WalletBalanceView, 0, len(wallets))
	for _, w := range wallets {
		views = append(views, uc.view(w, uc.RefreshBalances(ctx, w)))
	}
	return views, nil
}

func (uc *WalletUsecase) BalancesForAddress(ctx context.Context, address string) (*domain.WalletBalanceView, error) {
	wallet, err := uc.store.Repositories().Wallets.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	return uc.view(wallet, uc.RefreshBalances(ctx, wallet)), nil
}

func (uc *WalletUsecase) view(w *domain.TempWallet, b *domain.WalletBalances) *domain.WalletBalanceView {
	return &domain.WalletBalanceView{
		WalletID: w.ID,
		UserID:   w.UserID,
		Address:  w.Address,
		Network:  w.Network,
		Status:   w.Status,
		Native:   b.Native,
		Stable:   b.Stablecoin,
	}
}

// ============================================================================
// KEY ROTATION
// ============================================================================

type RotationReport struct {
	Scanned int `json:"scanned"`
	Rotated int `json:"rotated"`
	Failed  int `json:"failed"`
}

// RotateKeys re-seals up to batch wallets whose key hash is not the current key.
// Plaintext legacy keys are encrypted on the way.
func (uc *WalletUsecase) RotateKeys(ctx context.Context, batch int) (*RotationReport, error) {
	repos := uc.store.Repositories()
	current := uc.vault.KeyHash()

	wallets, err := repos.Wallets.ListStaleKeys(ctx, current, batch)
	if err != nil {
		return nil, err
	}

	report := &RotationReport{Scanned: len(wallets)}
	for _, w := range wallets {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		privateKey, err := uc.DecryptKey(w)
		if err != nil {
			report.Failed++
			continue
		}

		sealed, err := uc.vault.Encrypt(privateKey)
		if err != nil {
			return report, fmt.Errorf("failed to encrypt private key: %w", err)
		}

		if err := repos.Wallets.UpdateKey(ctx, w.ID, sealed, current); err != nil {
			uc.logger.Error("Failed to store rotated key",
				zap.Int64("wallet_id", w.ID),
				zap.Error(err))
			report.Failed++
			continue
		}
		report.Rotated++
	}

	uc.logger.Info("Key rotation batch finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("rotated", report.Rotated),
		zap.Int("failed", report.Failed),
		zap.String("key_hash", current))

	return report, nil
}
