// internal/chains/tron/client.go
package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"settlement-service/internal/chains"
	"settlement-service/internal/domain"

	"go.uber.org/zap"
)

// TronHTTPClient handles HTTP API calls to TronGrid
type TronHTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTronHTTPClient creates a new HTTP client for TronGrid
func NewTronHTTPClient(baseURL, apiKey string, logger *zap.Logger) *TronHTTPClient {
	return &TronHTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// ============================================================================
// RESPONSE TYPES
// ============================================================================

type accountsResponse struct {
	Success bool          `json:"success"`
	Data    []AccountInfo `json:"data"`
	Error   string        `json:"error"`
}

// AccountInfo is the subset of /v1/accounts the engine needs
type AccountInfo struct {
	Address string              `json:"address"`
	Balance int64               `json:"balance"`
	TRC20   []map[string]string `json:"trc20"`
}

// ConstantCallResult is the response of /wallet/triggerconstantcontract
type ConstantCallResult struct {
	Result struct {
		Result  bool   `json:"result"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"result"`
	EnergyUsed     int64    `json:"energy_used"`
	ConstantResult []string `json:"constant_result"`
}

// AccountResources is the response of /wallet/getaccountresource
type AccountResources struct {
	FreeNetUsed  int64 `json:"freeNetUsed"`
	FreeNetLimit int64 `json:"freeNetLimit"`
	NetUsed      int64 `json:"NetUsed"`
	NetLimit     int64 `json:"NetLimit"`
	EnergyUsed   int64 `json:"EnergyUsed"`
	EnergyLimit  int64 `json:"EnergyLimit"`
}

// EnergyAvailable returns staked energy not yet consumed
func (r *AccountResources) EnergyAvailable() int64 {
	if r == nil || r.EnergyLimit <= r.EnergyUsed {
		return 0
	}
	return r.EnergyLimit - r.EnergyUsed
}

// BandwidthAvailable returns free plus staked bandwidth left today
func (r *AccountResources) BandwidthAvailable() int64 {
	if r == nil {
		return 0
	}
	free := r.FreeNetLimit - r.FreeNetUsed
	staked := r.NetLimit - r.NetUsed
	if free < 0 {
		free = 0
	}
	if staked < 0 {
		staked = 0
	}
	return free + staked
}

type chainParametersResponse struct {
	ChainParameter []struct {
		Key   string `json:"key"`
		Value int64  `json:"value"`
	} `json:"chainParameter"`
}

// ChainParameters are the resource prices used for fee estimation, in SUN
type ChainParameters struct {
	EnergyFee      int64
	TransactionFee int64
}

// ============================================================================
// ENDPOINTS
// ============================================================================

// GetAccountInfo returns the account, or a zero-balance account when it has never been activated
func (c *TronHTTPClient) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	var resp accountsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+address, nil, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		c.logger.Debug("account not activated, returning zero balance",
			zap.String("address", address))
		return &AccountInfo{Address: address}, nil
	}

	return &resp.Data[0], nil
}

// TriggerConstantContract runs a read-only contract call, also used to simulate energy usage
func (c *TronHTTPClient) TriggerConstantContract(ctx context.Context, owner, contract, selector, parameter string) (*ConstantCallResult, error) {
	body := map[string]interface{}{
		"owner_address":     owner,
		"contract_address":  contract,
		"function_selector": selector,
		"parameter":         parameter,
		"visible":           true,
	}

	var resp ConstantCallResult
	if err := c.do(ctx, http.MethodPost, "/wallet/triggerconstantcontract", body, &resp); err != nil {
		return nil, err
	}

	if !resp.Result.Result {
		msg := decodeMessage(resp.Result.Message)
		return &resp, fmt.Errorf("constant call %s failed: %s %s", selector, resp.Result.Code, msg)
	}

	return &resp, nil
}

// GetAccountResources returns bandwidth and energy usage for an address
func (c *TronHTTPClient) GetAccountResources(ctx context.Context, address string) (*AccountResources, error) {
	body := map[string]interface{}{
		"address": address,
		"visible": true,
	}

	var resp AccountResources
	if err := c.do(ctx, http.MethodPost, "/wallet/getaccountresource", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetChainParameters returns current energy and bandwidth prices
func (c *TronHTTPClient) GetChainParameters(ctx context.Context) (*ChainParameters, error) {
	var resp chainParametersResponse
	if err := c.do(ctx, http.MethodGet, "/wallet/getchainparameters", nil, &resp); err != nil {
		return nil, err
	}

	params := &ChainParameters{EnergyFee: defaultEnergyFeeSUN, TransactionFee: defaultBandwidthFeeSUN}
	for _, p := range resp.ChainParameter {
		switch p.Key {
		case "getEnergyFee":
			if p.Value > 0 {
				params.EnergyFee = p.Value
			}
		case "getTransactionFee":
			if p.Value > 0 {
				params.TransactionFee = p.Value
			}
		}
	}

	return params, nil
}

// ============================================================================
// TRANSPORT
// ============================================================================

func (c *TronHTTPClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chains.Classify(domain.NetworkTron, path, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		if retryAfter == 0 {
			retryAfter = chains.RetryAfterHint(string(respBody))
		}
		return &domain.ChainTransientError{
			Network:    domain.NetworkTron,
			Op:         path,
			RetryAfter: retryAfter,
			Err:        fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(respBody)),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// decodeMessage turns hex-encoded node messages into text when possible
func decodeMessage(msg string) string {
	if b, err := hexDecode(msg); err == nil && len(b) > 0 {
		return string(b)
	}
	return msg
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
