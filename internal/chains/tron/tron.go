// internal/chains/tron/tron.go
package tron

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"settlement-service/internal/chains"
	"settlement-service/internal/domain"
	"settlement-service/pkg/utils"

	"github.com/fbsobreira/gotron-sdk/pkg/client"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// grpcAPI is the part of the gotron gRPC client the adapter uses
type grpcAPI interface {
	Transfer(from, toAddress string, amount int64) (*api.TransactionExtention, error)
	TRC20Send(from, to, contract string, amount *big.Int, feeLimit int64) (*api.TransactionExtention, error)
	Broadcast(tx *core.Transaction) (*api.Return, error)
	GetTransactionInfoByID(id string) (*core.TransactionInfo, error)
	Stop()
}

// Config configures the TRON adapter
type Config struct {
	Network      string
	FullNodeURL  string
	GRPCURL      string
	APIKey       string
	USDTContract string

	// FeeLimitSUN caps the TRX a TRC20 transfer may burn
	FeeLimitSUN int64

	EnergyMultiplier        float64
	FallbackEnergy          int64
	FallbackEnergyNewHolder int64

	PollInterval time.Duration
}

// TronChain is the TRON (USDT-TRC20) chain adapter
type TronChain struct {
	grpcClient grpcAPI
	httpClient *TronHTTPClient
	cfg        Config
	locker     chains.Locker
	retry      *chains.RetryPolicy
	logger     *zap.Logger

	paramsMu  sync.Mutex
	params    *ChainParameters
	paramsAt  time.Time
	paramsTTL time.Duration
}

var _ domain.ChainAdapter = (*TronChain)(nil)

// NewTronChain dials the TRON gRPC endpoint and returns a ready adapter
func NewTronChain(cfg Config, locker chains.Locker, retry *chains.RetryPolicy, logger *zap.Logger) (*TronChain, error) {
	if cfg.Network == "mainnet" {
		logger.Warn("TRON MAINNET ACTIVE - TRANSACTIONS USE REAL TRX")
	} else {
		logger.Info("using TRON testnet", zap.String("network", cfg.Network))
	}

	grpcClient := client.NewGrpcClient(cfg.GRPCURL)
	if cfg.APIKey != "" {
		if err := grpcClient.SetAPIKey(cfg.APIKey); err != nil {
			return nil, fmt.Errorf("failed to set TRON API key: %w", err)
		}
	}

	if err := grpcClient.Start(grpc.WithTransportCredentials(insecure.NewCredentials())); err != nil {
		return nil, fmt.Errorf("failed to start TRON gRPC client: %w", err)
	}

	httpClient := NewTronHTTPClient(cfg.FullNodeURL, cfg.APIKey, logger)

	logger.Info("TRON chain initialized",
		zap.String("network", cfg.Network),
		zap.String("grpc_url", cfg.GRPCURL),
		zap.String("http_url", cfg.FullNodeURL),
		zap.String("usdt_contract", cfg.USDTContract))

	return newTronChain(cfg, grpcClient, httpClient, locker, retry, logger), nil
}

func newTronChain(cfg Config, grpcClient grpcAPI, httpClient *TronHTTPClient, locker chains.Locker, retry *chains.RetryPolicy, logger *zap.Logger) *TronChain {
	if cfg.FeeLimitSUN <= 0 {
		cfg.FeeLimitSUN = 100_000_000
	}
	if cfg.EnergyMultiplier <= 0 {
		cfg.EnergyMultiplier = 1.1
	}
	if cfg.FallbackEnergy <= 0 {
		cfg.FallbackEnergy = 65_000
	}
	if cfg.FallbackEnergyNewHolder <= 0 {
		cfg.FallbackEnergyNewHolder = 130_000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	return &TronChain{
		grpcClient: grpcClient,
		httpClient: httpClient,
		cfg:        cfg,
		locker:     locker,
		retry:      retry,
		logger:     logger.With(zap.String("chain", "TRON")),
		paramsTTL:  10 * time.Minute,
	}
}

// Stop gracefully stops the TRON chain client
func (t *TronChain) Stop() {
	if t.grpcClient != nil {
		t.grpcClient.Stop()
		t.logger.Info("TRON gRPC client stopped")
	}
}

func (t *TronChain) Network() domain.Network { return domain.NetworkTron }
func (t *TronChain) NativeSymbol() string     { return "TRX" }
func (t *TronChain) StablecoinSymbol() string { return "USDT" }

// GenerateWallet creates new TRON wallet
func (t *TronChain) GenerateWallet(ctx context.Context) (*domain.GeneratedWallet, error) {
	wallet, err := generateTronWallet()
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet: %w", err)
	}

	t.logger.Info("TRON wallet generated", zap.String("address", wallet.Address))
	return wallet, nil
}

func (t *TronChain) ValidateAddress(addr string) error {
	return validateTronAddress(addr)
}

// ============================================================================
// BALANCES
// ============================================================================

// GetNativeBalance returns the TRX balance
func (t *TronChain) GetNativeBalance(ctx context.Context, addr string) (decimal.Decimal, error) {
	if err := t.ValidateAddress(addr); err != nil {
		return decimal.Zero, err
	}

	var info *AccountInfo
	err := t.retry.Do(ctx, domain.NetworkTron, "get_account", func(ctx context.Context) error {
		var err error
		info, err = t.httpClient.GetAccountInfo(ctx, addr)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get TRX balance: %w", err)
	}

	return utils.FromBaseUnits(big.NewInt(info.Balance), trxDecimals), nil
}

// ============================================================================
// TRANSFERS
// ============================================================================

// TransferNative sends TRX. Submissions from one address are serialized.
func (t *TronChain) TransferNative(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	if err := t.validateTransfer(req); err != nil {
		return nil, err
	}

	sun, err := utils.ToInt64Units(req.Amount, trxDecimals)
	if err != nil {
		return nil, err
	}
	if sun <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive: %s", req.Amount)
	}

	var result *domain.TransferResult
	err = t.locker.WithLock(ctx, "tron:"+req.From, func(ctx context.Context) error {
		var tx *api.TransactionExtention
		err := t.retry.Do(ctx, domain.NetworkTron, "build_trx_transfer", func(ctx context.Context) error {
			var err error
			tx, err = t.grpcClient.Transfer(req.From, req.To, sun)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to build TRX transfer: %w", err)
		}

		result, err = t.signAndBroadcast(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("TRX transfer broadcast",
		zap.String("tx_hash", result.TxHash),
		zap.String("from", req.From),
		zap.String("to", req.To),
		zap.String("amount", req.Amount.String()))

	return result, nil
}

func (t *TronChain) validateTransfer(req *domain.TransferRequest) error {
	if err := t.ValidateAddress(req.From); err != nil {
		return err
	}
	if err := t.ValidateAddress(req.To); err != nil {
		return err
	}
	if req.PrivateKey == "" {
		return fmt.Errorf("private key required for %s", req.From)
	}
	return nil
}

// signAndBroadcast signs a built transaction and broadcasts it. Rebroadcasting the
// same signed transaction is safe, so transient broadcast errors are retried.
func (t *TronChain) signAndBroadcast(ctx context.Context, tx *api.TransactionExtention, req *domain.TransferRequest) (*domain.TransferResult, error) {
	if tx == nil || tx.Transaction == nil {
		return nil, fmt.Errorf("node returned no transaction")
	}
	if tx.Result != nil && tx.Result.Code != api.Return_SUCCESS {
		return nil, chains.Classify(domain.NetworkTron, "build", fmt.Errorf("transaction build failed: %s: %s", tx.Result.Code, string(tx.Result.Message)))
	}

	signedTx, err := signTransaction(tx.Transaction, req.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	hash, err := txID(signedTx)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction hash: %w", err)
	}

	err = t.retry.Do(ctx, domain.NetworkTron, "broadcast", func(ctx context.Context) error {
		res, err := t.grpcClient.Broadcast(signedTx)
		if err != nil {
			return err
		}
		return broadcastError(res)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to broadcast transaction %s: %w", hash, err)
	}

	return &domain.TransferResult{
		TxHash:      hash,
		Network:     domain.NetworkTron,
		From:        req.From,
		To:          req.To,
		Amount:      req.Amount,
		SubmittedAt: time.Now(),
	}, nil
}

func broadcastError(res *api.Return) error {
	if res == nil || res.Result {
		return nil
	}

	switch res.Code {
	case api.Return_SUCCESS, api.Return_DUP_TRANSACTION_ERROR:
		// already in the mempool from a previous attempt
		return nil
	case api.Return_SERVER_BUSY, api.Return_NO_CONNECTION, api.Return_NOT_ENOUGH_EFFECTIVE_CONNECTION:
		return &domain.ChainTransientError{
			Network: domain.NetworkTron,
			Op:      "broadcast",
			Err:     fmt.Errorf("%s: %s", res.Code, string(res.Message)),
		}
	}

	return fmt.Errorf("broadcast rejected: %s: %s", res.Code, string(res.Message))
}

// ============================================================================
// CONFIRMATION
// ============================================================================

// WaitForConfirmation polls transaction info until it lands in a block or timeout elapses
func (t *TronChain) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (*domain.Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		conf, err := t.transactionStatus(txHash)
		if err != nil {
			t.logger.Debug("transaction info lookup failed", zap.String("tx_hash", txHash), zap.Error(err))
		} else if conf.Status != domain.TxStatusPending {
			if conf.Status == domain.TxStatusFailed {
				return conf, fmt.Errorf("%w: %s", domain.ErrTransactionFailed, txHash)
			}
			return conf, nil
		}

		select {
		case <-ctx.Done():
			return &domain.Confirmation{TxHash: txHash, Status: domain.TxStatusPending},
				fmt.Errorf("%w: %s after %s", domain.ErrConfirmationTimeout, txHash, timeout)
		case <-ticker.C:
		}
	}
}

func (t *TronChain) transactionStatus(txHash string) (*domain.Confirmation, error) {
	info, err := t.grpcClient.GetTransactionInfoByID(txHash)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return &domain.Confirmation{TxHash: txHash, Status: domain.TxStatusPending}, nil
		}
		return nil, err
	}
	if info == nil || info.BlockNumber == 0 {
		return &domain.Confirmation{TxHash: txHash, Status: domain.TxStatusPending}, nil
	}

	conf := &domain.Confirmation{
		TxHash:      txHash,
		Status:      domain.TxStatusConfirmed,
		BlockNumber: info.BlockNumber,
		Fee:         utils.FromBaseUnits(big.NewInt(info.Fee), trxDecimals),
	}

	if info.Result == core.TransactionInfo_FAILED {
		conf.Status = domain.TxStatusFailed
	}
	if r := info.Receipt; r != nil && r.Result != core.Transaction_Result_DEFAULT && r.Result != core.Transaction_Result_SUCCESS {
		conf.Status = domain.TxStatusFailed
	}

	return conf, nil
}

// GetNonceState reports equal counters: TRON transactions carry no account nonce
func (t *TronChain) GetNonceState(ctx context.Context, addr string) (*domain.NonceState, error) {
	return &domain.NonceState{}, nil
}
