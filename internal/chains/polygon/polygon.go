// internal/chains/polygon/polygon.go
package polygon

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"settlement-service/internal/chains"
	"settlement-service/internal/domain"
	"settlement-service/pkg/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	polDecimals        = 18
	nativeTransferGas  = 21000
	defaultFallbackGas = 100_000
)

// Config configures the Polygon adapter
type Config struct {
	Network       string
	RPCURL        string
	USDCContracts []string

	GasMultiplier    float64
	FallbackGasLimit uint64
	MaxGasPrice      *big.Int

	PollInterval time.Duration
}

// PolygonChain is the Polygon (USDC) chain adapter
type PolygonChain struct {
	client  EthClient
	chainID *big.Int
	cfg     Config
	locker  chains.Locker
	retry   *chains.RetryPolicy
	logger  *zap.Logger

	contractsMu     sync.Mutex
	contractsLoaded bool
	liveContracts   []*usdcContract
}

var (
	_ domain.ChainAdapter       = (*PolygonChain)(nil)
	_ domain.StablecoinSplitter = (*PolygonChain)(nil)
)

// NewPolygonChain dials the RPC endpoint and returns a ready adapter
func NewPolygonChain(ctx context.Context, cfg Config, locker chains.Locker, retry *chains.RetryPolicy, logger *zap.Logger) (*PolygonChain, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Polygon: %w", err)
	}

	c, err := newPolygonChain(ctx, cfg, client, locker, retry, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

func newPolygonChain(ctx context.Context, cfg Config, client EthClient, locker chains.Locker, retry *chains.RetryPolicy, logger *zap.Logger) (*PolygonChain, error) {
	if cfg.GasMultiplier <= 0 {
		cfg.GasMultiplier = 1.2
	}
	if cfg.FallbackGasLimit == 0 {
		cfg.FallbackGasLimit = defaultFallbackGas
	}
	if cfg.MaxGasPrice == nil {
		cfg.MaxGasPrice = big.NewInt(500e9)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if len(cfg.USDCContracts) == 0 {
		cfg.USDCContracts = DefaultUSDCContracts(cfg.Network)
	}

	var chainID *big.Int
	err := retry.Do(ctx, domain.NetworkPolygon, "chain_id", func(ctx context.Context) error {
		var err error
		chainID, err = client.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	logger.Info("Polygon chain initialized",
		zap.String("network", cfg.Network),
		zap.String("chain_id", chainID.String()),
		zap.Strings("usdc_contracts", cfg.USDCContracts))

	return &PolygonChain{
		client:  client,
		chainID: chainID,
		cfg:     cfg,
		locker:  locker,
		retry:   retry,
		logger:  logger.With(zap.String("chain", "POLYGON")),
	}, nil
}

// Stop closes the RPC connection
func (c *PolygonChain) Stop() {
	c.client.Close()
}

func (c *PolygonChain) Network() domain.Network { return domain.NetworkPolygon }
func (c *PolygonChain) NativeSymbol() string     { return "POL" }
func (c *PolygonChain) StablecoinSymbol() string { return "USDC" }

// GenerateWallet creates a new Polygon wallet
func (c *PolygonChain) GenerateWallet(ctx context.Context) (*domain.GeneratedWallet, error) {
	wallet, err := generatePolygonWallet()
	if err != nil {
		return nil, err
	}

	c.logger.Info("Polygon wallet generated", zap.String("address", wallet.Address))
	return wallet, nil
}

// ValidateAddress accepts any well-formed hex address; mixed-case input must carry a valid checksum
func (c *PolygonChain) ValidateAddress(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: Polygon address %s", domain.ErrInvalidAddress, address)
	}

	body := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	mixed := strings.ToLower(body) != body && strings.ToUpper(body) != body
	if mixed && common.HexToAddress(address).Hex() != "0x"+body {
		return fmt.Errorf("%w: bad checksum %s", domain.ErrInvalidAddress, address)
	}

	return nil
}

// GetNativeBalance returns the POL balance
func (c *PolygonChain) GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if err := c.ValidateAddress(address); err != nil {
		return decimal.Zero, err
	}

	var balance *big.Int
	err := c.retry.Do(ctx, domain.NetworkPolygon, "balance_at", func(ctx context.Context) error {
		var err error
		balance, err = c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get POL balance: %w", err)
	}

	return utils.FromBaseUnits(balance, polDecimals), nil
}

// ============================================================================
// TRANSFERS
// ============================================================================

// TransferStablecoin sends USDC in one transaction, from req.Contract or else the first
// contract that covers the amount. Amounts spread over several contracts are planned
// with PlanStablecoinTransfer and sent leg by leg. req.Nonce and req.Gas pin the submission when set.
func (c *PolygonChain) TransferStablecoin(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	if err := c.validateTransfer(req); err != nil {
		return nil, err
	}

	from := common.HexToAddress(req.From)
	contract, err := c.sourceContract(ctx, from, req.Contract, req.Amount)
	if err != nil {
		return nil, err
	}

	data, err := c.transferCallData(common.HexToAddress(req.To), contract, req.Amount)
	if err != nil {
		return nil, err
	}

	gas := req.Gas
	if gas == nil {
		gas, err = c.estimateContractGas(ctx, from, contract.address, data)
		if err != nil {
			return nil, err
		}
	}

	c.logger.Info("sending USDC transfer",
		zap.String("from", req.From),
		zap.String("to", req.To),
		zap.String("amount", req.Amount.String()),
		zap.String("contract", contract.address.Hex()),
		zap.Uint64("gas_limit", gas.Units))

	return c.submit(ctx, req, contract.address, big.NewInt(0), data, gas)
}

// TransferNative sends POL
func (c *PolygonChain) TransferNative(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	if err := c.validateTransfer(req); err != nil {
		return nil, err
	}

	value := utils.ToBaseUnits(req.Amount, polDecimals)
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive: %s", req.Amount)
	}

	gas := req.Gas
	if gas == nil {
		price, err := c.gasPrice(ctx)
		if err != nil {
			return nil, err
		}
		gas = &domain.GasEstimate{Units: nativeTransferGas, UnitPrice: price}
	}

	return c.submit(ctx, req, common.HexToAddress(req.To), value, nil, gas)
}

func (c *PolygonChain) validateTransfer(req *domain.TransferRequest) error {
	if err := c.ValidateAddress(req.From); err != nil {
		return err
	}
	if err := c.ValidateAddress(req.To); err != nil {
		return err
	}
	if req.PrivateKey == "" {
		return fmt.Errorf("private key required for %s", req.From)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("transfer amount must be positive: %s", req.Amount)
	}
	return nil
}

// submit assigns the nonce, signs and sends under the sender's lock
func (c *PolygonChain) submit(ctx context.Context, req *domain.TransferRequest, to common.Address, value *big.Int, data []byte, gas *domain.GasEstimate) (*domain.TransferResult, error) {
	from := common.HexToAddress(req.From)
	var result *domain.TransferResult

	err := c.locker.WithLock(ctx, "polygon:"+strings.ToLower(req.From), func(ctx context.Context) error {
		nonce, err := c.nonceFor(ctx, from, req.Nonce)
		if err != nil {
			return err
		}

		price := gas.UnitPrice
		if price == nil {
			if price, err = c.gasPrice(ctx); err != nil {
				return err
			}
		}

		tx := types.NewTransaction(nonce, to, value, gas.Units, price, data)
		signedTx, err := signTransaction(tx, req.PrivateKey, c.chainID)
		if err != nil {
			return err
		}

		err = c.retry.Do(ctx, domain.NetworkPolygon, "send_transaction", func(ctx context.Context) error {
			err := c.client.SendTransaction(ctx, signedTx)
			if err != nil && isAlreadyKnown(err) {
				return nil
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to send transaction: %w", err)
		}

		result = &domain.TransferResult{
			TxHash:      signedTx.Hash().Hex(),
			Network:     domain.NetworkPolygon,
			From:        req.From,
			To:          req.To,
			Amount:      req.Amount,
			Nonce:       &nonce,
			SubmittedAt: time.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Polygon transaction sent",
		zap.String("tx_hash", result.TxHash),
		zap.Uint64("nonce", *result.Nonce))

	return result, nil
}

func (c *PolygonChain) nonceFor(ctx context.Context, from common.Address, pinned *uint64) (uint64, error) {
	if pinned != nil {
		return *pinned, nil
	}

	var nonce uint64
	err := c.retry.Do(ctx, domain.NetworkPolygon, "pending_nonce", func(ctx context.Context) error {
		var err error
		nonce, err = c.client.PendingNonceAt(ctx, from)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce: %w", err)
	}
	return nonce, nil
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

// ============================================================================
// GAS
// ============================================================================

// EstimateRequiredGas simulates the USDC transfer and scales the result by the configured
// multiplier. When simulation fails the fixed fallback gas limit is used.
func (c *PolygonChain) EstimateRequiredGas(ctx context.Context, req *domain.GasEstimateRequest) (*domain.GasEstimate, error) {
	from := common.HexToAddress(req.From)

	contract, err := c.sourceContract(ctx, from, req.Contract, req.Amount)
	if err != nil {
		if !domain.IsInsufficientFunds(err) {
			return nil, err
		}
		// still price the transfer so callers can report the shortfall
		contracts, cerr := c.contracts(ctx)
		if cerr != nil || len(contracts) == 0 {
			return nil, err
		}
		contract = contracts[0]
		for _, candidate := range contracts {
			if req.Contract != "" && candidate.address == common.HexToAddress(req.Contract) {
				contract = candidate
			}
		}
	}

	data, err := c.transferCallData(common.HexToAddress(req.To), contract, req.Amount)
	if err != nil {
		return nil, err
	}

	return c.estimateContractGas(ctx, from, contract.address, data)
}

func (c *PolygonChain) estimateContractGas(ctx context.Context, from, contract common.Address, data []byte) (*domain.GasEstimate, error) {
	price, err := c.gasPrice(ctx)
	if err != nil {
		return nil, err
	}

	estimate := &domain.GasEstimate{UnitPrice: price, Simulated: true}

	units, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &contract, Data: data})
	if err != nil || units == 0 {
		c.logger.Info("gas simulation failed, using fallback limit",
			zap.String("from", from.Hex()),
			zap.Uint64("fallback_gas", c.cfg.FallbackGasLimit),
			zap.Error(err))
		estimate.Units = c.cfg.FallbackGasLimit
		estimate.Simulated = false
	} else {
		estimate.Units = uint64(decimal.NewFromInt(int64(units)).
			Mul(decimal.NewFromFloat(c.cfg.GasMultiplier)).Ceil().IntPart())
	}

	cost := new(big.Int).Mul(new(big.Int).SetUint64(estimate.Units), price)
	estimate.NativeCost = utils.FromBaseUnits(cost, polDecimals)

	return estimate, nil
}

// gasPrice returns the suggested gas price capped at MaxGasPrice
func (c *PolygonChain) gasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.retry.Do(ctx, domain.NetworkPolygon, "gas_price", func(ctx context.Context) error {
		var err error
		price, err = c.client.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	if price.Cmp(c.cfg.MaxGasPrice) > 0 {
		c.logger.Warn("gas price capped",
			zap.String("suggested", price.String()),
			zap.String("max", c.cfg.MaxGasPrice.String()))
		price = new(big.Int).Set(c.cfg.MaxGasPrice)
	}
	return price, nil
}

// ============================================================================
// CONFIRMATION / NONCES
// ============================================================================

// WaitForConfirmation polls for the receipt until it is mined or timeout elapses
func (c *PolygonChain) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (*domain.Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	hash := common.HexToHash(txHash)
	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			return c.confirmation(txHash, receipt)
		case err != nil && !errors.Is(err, ethereum.NotFound):
			c.logger.Debug("receipt lookup failed", zap.String("tx_hash", txHash), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return &domain.Confirmation{TxHash: txHash, Status: domain.TxStatusPending},
				fmt.Errorf("%w: %s after %s", domain.ErrConfirmationTimeout, txHash, timeout)
		case <-ticker.C:
		}
	}
}

func (c *PolygonChain) confirmation(txHash string, receipt *types.Receipt) (*domain.Confirmation, error) {
	conf := &domain.Confirmation{
		TxHash: txHash,
		Status: domain.TxStatusConfirmed,
	}
	if receipt.BlockNumber != nil {
		conf.BlockNumber = receipt.BlockNumber.Int64()
	}
	if receipt.EffectiveGasPrice != nil {
		fee := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
		conf.Fee = utils.FromBaseUnits(fee, polDecimals)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		conf.Status = domain.TxStatusFailed
		return conf, fmt.Errorf("%w: %s", domain.ErrTransactionFailed, txHash)
	}
	return conf, nil
}

// GetNonceState reports the pending and latest (mined) nonces
func (c *PolygonChain) GetNonceState(ctx context.Context, address string) (*domain.NonceState, error) {
	addr := common.HexToAddress(address)
	state := &domain.NonceState{}

	err := c.retry.Do(ctx, domain.NetworkPolygon, "nonce_state", func(ctx context.Context) error {
		pending, err := c.client.PendingNonceAt(ctx, addr)
		if err != nil {
			return err
		}
		latest, err := c.client.NonceAt(ctx, addr, nil)
		if err != nil {
			return err
		}
		state.Pending, state.Latest = pending, latest
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce state: %w", err)
	}

	return state, nil
}
