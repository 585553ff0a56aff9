// internal/chains/polygon/erc20.go
package polygon

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"settlement-service/internal/domain"
	"settlement-service/pkg/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Well-known USDC contracts
const (
	USDCContractMainnet        = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359" // native USDC
	USDCBridgedContractMainnet = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174" // USDC.e (PoS bridge)
	USDCContractAmoy           = "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582"
)

// DefaultUSDCContracts returns the USDC contracts summed on a network
func DefaultUSDCContracts(network string) []string {
	if network == "amoy" {
		return []string{USDCContractAmoy}
	}
	return []string{USDCContractMainnet, USDCBridgedContractMainnet}
}

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

var parsedERC20ABI = mustParseABI(erc20ABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ERC-20 ABI: %v", err))
	}
	return parsed
}

// usdcContract is a configured token contract with cached metadata
type usdcContract struct {
	address  common.Address
	decimals int32
}

// tokenHolding is the balance of one holder on one contract
type tokenHolding struct {
	contract *usdcContract
	raw      *big.Int
}

func (h tokenHolding) amount() decimal.Decimal {
	return utils.Normalize(h.raw, h.contract.decimals, domain.StablecoinDecimals)
}

// contracts returns the configured contracts that have code, loading metadata on first use.
// Contracts without code are skipped and logged once.
func (c *PolygonChain) contracts(ctx context.Context) ([]*usdcContract, error) {
	c.contractsMu.Lock()
	defer c.contractsMu.Unlock()

	if c.contractsLoaded {
		return c.liveContracts, nil
	}

	var live []*usdcContract
	for _, addr := range c.cfg.USDCContracts {
		contract := &usdcContract{address: common.HexToAddress(addr), decimals: domain.StablecoinDecimals}

		var code []byte
		err := c.retry.Do(ctx, domain.NetworkPolygon, "code_at", func(ctx context.Context) error {
			var err error
			code, err = c.client.CodeAt(ctx, contract.address, nil)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to check contract %s: %w", addr, err)
		}

		if len(code) == 0 {
			c.logger.Warn("USDC contract has no code on this network, skipping",
				zap.String("contract", addr))
			continue
		}
		if decimals, err := c.tokenDecimals(ctx, contract.address); err == nil {
			contract.decimals = decimals
		} else {
			c.logger.Warn("failed to read token decimals, assuming 6",
				zap.String("contract", addr),
				zap.Error(err))
		}

		live = append(live, contract)
	}

	c.liveContracts = live
	c.contractsLoaded = true
	return live, nil
}

func (c *PolygonChain) tokenDecimals(ctx context.Context, contract common.Address) (int32, error) {
	out, err := c.call(ctx, contract, "decimals")
	if err != nil {
		return 0, err
	}

	values, err := parsedERC20ABI.Unpack("decimals", out)
	if err != nil || len(values) == 0 {
		return 0, fmt.Errorf("failed to unpack decimals: %v", err)
	}

	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}
	return int32(d), nil
}

// holdings returns the holder's raw balance on every live contract
func (c *PolygonChain) holdings(ctx context.Context, holder common.Address) ([]tokenHolding, error) {
	contracts, err := c.contracts(ctx)
	if err != nil {
		return nil, err
	}

	holdings := make([]tokenHolding, 0, len(contracts))
	for _, contract := range contracts {
		out, err := c.call(ctx, contract.address, "balanceOf", holder)
		if err != nil {
			return nil, fmt.Errorf("failed to get USDC balance on %s: %w", contract.address.Hex(), err)
		}

		raw := big.NewInt(0)
		if len(out) > 0 {
			values, err := parsedERC20ABI.Unpack("balanceOf", out)
			if err != nil || len(values) == 0 {
				return nil, fmt.Errorf("failed to unpack balance: %v", err)
			}
			if v, ok := values[0].(*big.Int); ok && v != nil {
				raw = v
			}
		}

		holdings = append(holdings, tokenHolding{contract: contract, raw: raw})
	}

	return holdings, nil
}

// GetStablecoinBalance sums USDC across all configured contracts, normalized to 6 decimals
func (c *PolygonChain) GetStablecoinBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if err := c.ValidateAddress(address); err != nil {
		return decimal.Zero, err
	}

	holdings, err := c.holdings(ctx, common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.amount())
	}
	return total, nil
}

// PlanStablecoinTransfer splits amount across contracts in configured order.
// A contract that covers amount alone is used on its own.
func (c *PolygonChain) PlanStablecoinTransfer(ctx context.Context, from string, amount decimal.Decimal) ([]domain.TransferLeg, error) {
	if err := c.ValidateAddress(from); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("transfer amount must be positive: %s", amount)
	}

	holdings, err := c.holdings(ctx, common.HexToAddress(from))
	if err != nil {
		return nil, err
	}

	for _, h := range holdings {
		if h.amount().GreaterThanOrEqual(amount) {
			return []domain.TransferLeg{{Contract: h.contract.address.Hex(), Amount: amount}}, nil
		}
	}

	var legs []domain.TransferLeg
	remaining := amount
	total := decimal.Zero
	for _, h := range holdings {
		held := h.amount()
		total = total.Add(held)
		if !held.IsPositive() || !remaining.IsPositive() {
			continue
		}
		part := decimal.Min(held, remaining)
		legs = append(legs, domain.TransferLeg{Contract: h.contract.address.Hex(), Amount: part})
		remaining = remaining.Sub(part)
	}

	if remaining.IsPositive() {
		return nil, &domain.InsufficientFundsError{
			Scope:     "on-chain",
			Asset:     "USDC",
			Available: total.String(),
			Required:  amount.String(),
		}
	}
	return legs, nil
}

// sourceContract picks the contract one transaction sends from: the requested contract,
// or else the first whose balance alone covers amount. Available on the shortfall error
// is the largest single-contract holding since one transaction cannot combine contracts.
func (c *PolygonChain) sourceContract(ctx context.Context, holder common.Address, contract string, amount decimal.Decimal) (*usdcContract, error) {
	if contract != "" && !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid USDC contract %q", contract)
	}

	holdings, err := c.holdings(ctx, holder)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, fmt.Errorf("no USDC contract with code configured")
	}

	matched := false
	largest := decimal.Zero
	for _, h := range holdings {
		if contract != "" && h.contract.address != common.HexToAddress(contract) {
			continue
		}
		matched = true
		if h.amount().GreaterThanOrEqual(amount) {
			return h.contract, nil
		}
		largest = decimal.Max(largest, h.amount())
	}
	if !matched {
		return nil, fmt.Errorf("USDC contract %s is not configured or has no code", contract)
	}

	return nil, &domain.InsufficientFundsError{
		Scope:     "on-chain",
		Asset:     "USDC",
		Available: largest.String(),
		Required:  amount.String(),
	}
}

func (c *PolygonChain) transferCallData(to common.Address, contract *usdcContract, amount decimal.Decimal) ([]byte, error) {
	data, err := parsedERC20ABI.Pack("transfer", to, utils.ToBaseUnits(amount, contract.decimals))
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer: %w", err)
	}
	return data, nil
}

func (c *PolygonChain) call(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]byte, error) {
	data, err := parsedERC20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	var out []byte
	err = c.retry.Do(ctx, domain.NetworkPolygon, method, func(ctx context.Context) error {
		var err error
		out, err = c.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
		return err
	})
	return out, err
}
