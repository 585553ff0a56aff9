// internal/chains/tron/trc20.go
package tron

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/pkg/utils"

	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Well-known USDT contracts
const (
	USDTContractMainnet = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	USDTContractShasta  = "TG3XXyExBkPp9nzdajDZsozEu4BkaSJozs"
	USDTContractNile    = "TXLAQ63Xg1NAzckPwKHvzw7CSEmLMEqcdj"
)

const (
	defaultEnergyFeeSUN    = 420
	defaultBandwidthFeeSUN = 1000
	trc20TxBandwidth       = 345
	minTRC20FeeSUN         = 345_000
)

// GetUSDTContract returns USDT contract address for network
func GetUSDTContract(network string) string {
	switch network {
	case "shasta":
		return USDTContractShasta
	case "nile":
		return USDTContractNile
	default:
		return USDTContractMainnet
	}
}

// GetStablecoinBalance reads USDT balanceOf through a constant call
func (t *TronChain) GetStablecoinBalance(ctx context.Context, addr string) (decimal.Decimal, error) {
	if err := t.ValidateAddress(addr); err != nil {
		return decimal.Zero, err
	}

	param, err := encodeBalanceOfParams(addr)
	if err != nil {
		return decimal.Zero, err
	}

	var res *ConstantCallResult
	err = t.retry.Do(ctx, domain.NetworkTron, "usdt_balance", func(ctx context.Context) error {
		var err error
		res, err = t.httpClient.TriggerConstantContract(ctx, addr, t.cfg.USDTContract, balanceOfSelector, param)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get USDT balance: %w", err)
	}

	if len(res.ConstantResult) == 0 || res.ConstantResult[0] == "" {
		return decimal.Zero, nil
	}

	raw, err := decodeUint256Hex(res.ConstantResult[0])
	if err != nil {
		return decimal.Zero, err
	}

	return utils.Normalize(raw, usdtDecimals, domain.StablecoinDecimals), nil
}

// TransferStablecoin sends USDT. When req.Gas is set the fee limit follows the estimate.
func (t *TronChain) TransferStablecoin(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	if err := t.validateTransfer(req); err != nil {
		return nil, err
	}

	amount := utils.ToBaseUnits(req.Amount, usdtDecimals)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive: %s", req.Amount)
	}
	feeLimit := t.feeLimitFor(req.Gas)

	t.logger.Info("sending USDT transfer",
		zap.String("from", req.From),
		zap.String("to", req.To),
		zap.String("amount", req.Amount.String()),
		zap.Int64("fee_limit_sun", feeLimit))

	var result *domain.TransferResult
	err := t.locker.WithLock(ctx, "tron:"+req.From, func(ctx context.Context) error {
		var tx *api.TransactionExtention
		err := t.retry.Do(ctx, domain.NetworkTron, "build_trc20_transfer", func(ctx context.Context) error {
			var err error
			tx, err = t.grpcClient.TRC20Send(req.From, req.To, t.cfg.USDTContract, amount, feeLimit)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to build USDT transfer: %w", err)
		}

		result, err = t.signAndBroadcast(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("USDT transfer broadcast",
		zap.String("tx_hash", result.TxHash),
		zap.String("from", req.From),
		zap.String("to", req.To))

	return result, nil
}

func (t *TronChain) feeLimitFor(gas *domain.GasEstimate) int64 {
	if gas == nil || !gas.NativeCost.IsPositive() {
		return t.cfg.FeeLimitSUN
	}

	limit := utils.ToBaseUnits(gas.NativeCost.Mul(decimal.NewFromInt(2)), trxDecimals)
	if !limit.IsInt64() || limit.Int64() > t.cfg.FeeLimitSUN {
		return t.cfg.FeeLimitSUN
	}
	return limit.Int64()
}

// ============================================================================
// FEE ESTIMATION
// ============================================================================

// EstimateRequiredGas prices a USDT transfer in TRX.
// Energy comes from a simulated transfer scaled by the configured multiplier; when the
// simulation fails a fixed energy figure is used, doubled for first-time token holders.
func (t *TronChain) EstimateRequiredGas(ctx context.Context, req *domain.GasEstimateRequest) (*domain.GasEstimate, error) {
	params := t.chainParameters(ctx)

	energy, simulated := t.simulateEnergy(ctx, req)
	if !simulated {
		energy = t.fallbackEnergy(ctx, req.To)
	}
	energy = decimal.NewFromInt(energy).Mul(decimal.NewFromFloat(t.cfg.EnergyMultiplier)).Ceil().IntPart()

	resources, err := t.httpClient.GetAccountResources(ctx, req.From)
	if err != nil {
		t.logger.Warn("failed to get account resources, assuming none available",
			zap.String("address", req.From),
			zap.Error(err))
		resources = &AccountResources{}
	}

	costSUN := t.feeFromEnergy(energy, resources, params)

	estimate := &domain.GasEstimate{
		Units:      uint64(energy),
		UnitPrice:  big.NewInt(params.EnergyFee),
		NativeCost: utils.FromBaseUnits(big.NewInt(costSUN), trxDecimals),
		Simulated:  simulated,
	}

	t.logger.Info("USDT transfer fee estimated",
		zap.String("from", req.From),
		zap.Int64("energy", energy),
		zap.Int64("energy_available", resources.EnergyAvailable()),
		zap.Bool("simulated", simulated),
		zap.String("cost_trx", estimate.NativeCost.String()))

	return estimate, nil
}

func (t *TronChain) simulateEnergy(ctx context.Context, req *domain.GasEstimateRequest) (int64, bool) {
	amount := utils.ToBaseUnits(req.Amount, usdtDecimals)
	param, err := encodeTransferParams(req.To, amount)
	if err != nil {
		return 0, false
	}

	res, err := t.httpClient.TriggerConstantContract(ctx, req.From, t.cfg.USDTContract, transferSelector, param)
	if err != nil || res.EnergyUsed <= 0 {
		t.logger.Info("energy simulation unavailable, using fallback",
			zap.String("from", req.From),
			zap.Error(err))
		return 0, false
	}

	return res.EnergyUsed, true
}

// fallbackEnergy charges more when the recipient has never held the token,
// since the transfer then initializes a new storage slot
func (t *TronChain) fallbackEnergy(ctx context.Context, to string) int64 {
	balance, err := t.GetStablecoinBalance(ctx, to)
	if err == nil && balance.IsZero() {
		return t.cfg.FallbackEnergyNewHolder
	}
	return t.cfg.FallbackEnergy
}

func (t *TronChain) feeFromEnergy(energy int64, resources *AccountResources, params *ChainParameters) int64 {
	var total int64

	if deficit := energy - resources.EnergyAvailable(); deficit > 0 {
		total += deficit * params.EnergyFee
	}

	if resources.BandwidthAvailable() < trc20TxBandwidth {
		total += trc20TxBandwidth * params.TransactionFee
	}

	if total < minTRC20FeeSUN {
		total = minTRC20FeeSUN
	}
	return total
}

func (t *TronChain) chainParameters(ctx context.Context) *ChainParameters {
	t.paramsMu.Lock()
	defer t.paramsMu.Unlock()

	if t.params != nil && time.Since(t.paramsAt) < t.paramsTTL {
		return t.params
	}

	params, err := t.httpClient.GetChainParameters(ctx)
	if err != nil {
		t.logger.Warn("failed to get chain parameters, using defaults", zap.Error(err))
		if t.params != nil {
			return t.params
		}
		return &ChainParameters{EnergyFee: defaultEnergyFeeSUN, TransactionFee: defaultBandwidthFeeSUN}
	}

	t.params = params
	t.paramsAt = time.Now()
	return params
}
