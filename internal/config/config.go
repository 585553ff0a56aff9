// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"settlement-service/internal/chains/polygon"
	"settlement-service/internal/chains/tron"
	"settlement-service/internal/domain"

	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv      string
	DatabaseURL string
	MetricsAddr string

	Security  SecurityConfig
	Tron      TronConfig
	Polygon   PolygonConfig
	Sweep     SweepConfig
	Reconcile ReconcileConfig
	Retry     RetryConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
}

type SecurityConfig struct {
	VaultProvider string // "env", "file"
	FileVaultDir  string
	FileVaultKey  string
	// EncryptionKey is only read here to validate the env provider at startup
	EncryptionKey string
}

// ChainConfig holds what the sweep orchestrator needs per network
type ChainConfig struct {
	Enabled       bool
	Network       string
	MasterAddress string
	NativeReserve decimal.Decimal
	MinTopUp      decimal.Decimal
	// MinSweep is the smallest stablecoin balance the sweep worker acts on
	MinSweep decimal.Decimal
}

type TronConfig struct {
	ChainConfig
	FullNodeURL             string
	GRPCURL                 string
	APIKey                  string
	USDTContract            string
	EnergyMultiplier        float64
	FallbackEnergy          int64
	FallbackEnergyNewHolder int64
}

type PolygonConfig struct {
	ChainConfig
	RPCURL           string
	USDCContracts    []string
	GasMultiplier    float64
	FallbackGasLimit uint64
	MaxGasPriceGwei  int64
}

type SweepConfig struct {
	Interval           time.Duration
	BatchSize          int
	Concurrency        int
	TopUpMargin        decimal.Decimal
	ConfirmTimeout     time.Duration
	TopUpSettleTimeout time.Duration
	NonceWaitTimeout   time.Duration
	PollInterval       time.Duration
	LockTTL            time.Duration
	LockWait           time.Duration
}

type ReconcileConfig struct {
	Interval      time.Duration
	Grace         time.Duration
	BatchSize     int
	SettleTimeout time.Duration
}

type RetryConfig struct {
	Attempts  uint
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads the configuration from the process environment
func Load() (*Config, error) {
	return LoadWith(os.LookupEnv)
}

// LoadWith reads the configuration through lookup. Malformed values are reported
// as *domain.ConfigurationError, missing values fall back to defaults.
func LoadWith(lookup func(string) (string, bool)) (*Config, error) {
	e := &env{lookup: lookup}

	// ============================================================================
	// TRON Configuration
	// ============================================================================
	tronNetwork := e.getEnv("TRON_NETWORK", "shasta")

	var tronHTTPUrl, tronGRPCUrl string
	switch tronNetwork {
	case "mainnet":
		tronHTTPUrl = "https://api.trongrid.io"
		tronGRPCUrl = "grpc.trongrid.io:50051"
	case "shasta":
		tronHTTPUrl = "https://api.shasta.trongrid.io"
		tronGRPCUrl = "grpc.shasta.trongrid.io:50051"
	case "nile":
		tronHTTPUrl = "https://api.nile.trongrid.io"
		tronGRPCUrl = "grpc.nile.trongrid.io:50051"
	default:
		e.fail("TRON_NETWORK", fmt.Sprintf("unknown network %q (mainnet, shasta, nile)", tronNetwork))
	}

	tronCfg := TronConfig{
		ChainConfig: ChainConfig{
			Enabled:       e.getEnvAsBool("TRON_ENABLED", true),
			Network:       tronNetwork,
			MasterAddress: e.getEnv("TRON_MASTER_ADDRESS", ""),
			NativeReserve: e.getEnvAsDecimal("TRON_NATIVE_RESERVE", "1"),
			MinTopUp:      e.getEnvAsDecimal("TRON_MIN_TOPUP", "20"),
			MinSweep:      e.getEnvAsDecimal("TRON_MIN_SWEEP", "1"),
		},
		FullNodeURL:             e.getEnv("TRON_FULL_NODE", tronHTTPUrl),
		GRPCURL:                 e.getEnv("TRON_GRPC_URL", tronGRPCUrl),
		APIKey:                  e.getEnv("TRON_API_KEY", ""),
		USDTContract:            e.getEnv("TRON_USDT_CONTRACT", tron.GetUSDTContract(tronNetwork)),
		EnergyMultiplier:        e.getEnvAsFloat("TRON_ENERGY_MULTIPLIER", 1.1),
		FallbackEnergy:          e.getEnvAsInt64("TRON_FALLBACK_ENERGY", 65_000),
		FallbackEnergyNewHolder: e.getEnvAsInt64("TRON_FALLBACK_ENERGY_NEW_HOLDER", 130_000),
	}

	// ============================================================================
	// Polygon Configuration
	// ============================================================================
	polygonNetwork := e.getEnv("POLYGON_NETWORK", "amoy")

	var polygonRPCURL string
	switch polygonNetwork {
	case "mainnet":
		polygonRPCURL = "https://polygon-rpc.com"
	case "amoy":
		polygonRPCURL = "https://rpc-amoy.polygon.technology"
	default:
		e.fail("POLYGON_NETWORK", fmt.Sprintf("unknown network %q (mainnet, amoy)", polygonNetwork))
	}

	polygonContracts := e.parseCSVEnv("POLYGON_USDC_CONTRACTS")
	if len(polygonContracts) == 0 {
		polygonContracts = polygon.DefaultUSDCContracts(polygonNetwork)
	}

	polygonCfg := PolygonConfig{
		ChainConfig: ChainConfig{
			Enabled:       e.getEnvAsBool("POLYGON_ENABLED", false),
			Network:       polygonNetwork,
			MasterAddress: e.getEnv("POLYGON_MASTER_ADDRESS", ""),
			NativeReserve: e.getEnvAsDecimal("POLYGON_NATIVE_RESERVE", "0.05"),
			MinTopUp:      e.getEnvAsDecimal("POLYGON_MIN_TOPUP", "0.1"),
			MinSweep:      e.getEnvAsDecimal("POLYGON_MIN_SWEEP", "1"),
		},
		RPCURL:           e.getEnv("POLYGON_RPC_URL", polygonRPCURL),
		USDCContracts:    polygonContracts,
		GasMultiplier:    e.getEnvAsFloat("POLYGON_GAS_MULTIPLIER", 1.2),
		FallbackGasLimit: uint64(e.getEnvAsInt64("POLYGON_FALLBACK_GAS_LIMIT", 100_000)),
		MaxGasPriceGwei:  e.getEnvAsInt64("POLYGON_MAX_GAS_PRICE_GWEI", 500),
	}

	// ============================================================================
	// Workers, retries, infrastructure
	// ============================================================================
	cfg := &Config{
		AppEnv:      e.getEnv("APP_ENV", "production"),
		DatabaseURL: e.getEnv("DATABASE_URL", ""),
		MetricsAddr: e.getEnv("METRICS_ADDR", ""),
		Security: SecurityConfig{
			VaultProvider: e.getEnv("VAULT_PROVIDER", "env"),
			FileVaultDir:  e.getEnv("FILE_VAULT_DIR", "./vault"),
			FileVaultKey:  e.getEnv("FILE_VAULT_KEY", ""),
			EncryptionKey: e.getEnv("CRYPTO_ENCRYPTION_KEY", ""),
		},
		Tron:    tronCfg,
		Polygon: polygonCfg,
		Sweep: SweepConfig{
			Interval:           e.getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
			BatchSize:          int(e.getEnvAsInt64("SWEEP_BATCH_SIZE", 50)),
			Concurrency:        int(e.getEnvAsInt64("SWEEP_CONCURRENCY", 4)),
			TopUpMargin:        e.getEnvAsDecimal("SWEEP_TOPUP_MARGIN", "1.5"),
			ConfirmTimeout:     e.getEnvAsDuration("SWEEP_CONFIRM_TIMEOUT", 60*time.Second),
			TopUpSettleTimeout: e.getEnvAsDuration("SWEEP_TOPUP_SETTLE_TIMEOUT", 30*time.Second),
			NonceWaitTimeout:   e.getEnvAsDuration("SWEEP_NONCE_WAIT_TIMEOUT", 30*time.Second),
			PollInterval:       e.getEnvAsDuration("SWEEP_POLL_INTERVAL", time.Second),
			LockTTL:            e.getEnvAsDuration("SWEEP_LOCK_TTL", 5*time.Minute),
			LockWait:           e.getEnvAsDuration("SWEEP_LOCK_WAIT", 30*time.Second),
		},
		Reconcile: ReconcileConfig{
			Interval:      e.getEnvAsDuration("RECONCILE_INTERVAL", time.Minute),
			Grace:         e.getEnvAsDuration("RECONCILE_GRACE", 2*time.Minute),
			BatchSize:     int(e.getEnvAsInt64("RECONCILE_BATCH_SIZE", 100)),
			SettleTimeout: e.getEnvAsDuration("RECONCILE_SETTLE_TIMEOUT", 15*time.Second),
		},
		Retry: RetryConfig{
			Attempts:  uint(e.getEnvAsInt64("RETRY_ATTEMPTS", 4)),
			BaseDelay: e.getEnvAsDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:  e.getEnvAsDuration("RETRY_MAX_DELAY", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     e.getEnv("REDIS_ADDR", ""),
			Password: e.getEnv("REDIS_PASSWORD", ""),
			DB:       int(e.getEnvAsInt64("REDIS_DB", 0)),
		},
		Kafka: KafkaConfig{
			Brokers: e.parseCSVEnv("KAFKA_BROKERS"),
			Topic:   e.getEnv("KAFKA_TOPIC", "settlement-events"),
		},
	}

	if e.err != nil {
		return nil, e.err
	}
	return cfg, nil
}

// Validate reports the first setting that prevents the service from starting
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return &domain.ConfigurationError{Key: "DATABASE_URL", Reason: "database url is required"}
	}

	switch c.Security.VaultProvider {
	case "env":
		if c.Security.EncryptionKey == "" {
			return &domain.ConfigurationError{Key: "CRYPTO_ENCRYPTION_KEY", Reason: "encryption key is required"}
		}
	case "file":
		if c.Security.FileVaultKey == "" {
			return &domain.ConfigurationError{Key: "FILE_VAULT_KEY", Reason: "file vault key is required"}
		}
	default:
		return &domain.ConfigurationError{Key: "VAULT_PROVIDER", Reason: fmt.Sprintf("unknown provider %q (env, file)", c.Security.VaultProvider)}
	}

	if !c.Tron.Enabled && !c.Polygon.Enabled {
		return &domain.ConfigurationError{Key: "TRON_ENABLED", Reason: "at least one network must be enabled"}
	}

	if c.Tron.Enabled {
		if c.Tron.GRPCURL == "" || c.Tron.FullNodeURL == "" {
			return &domain.ConfigurationError{Key: "TRON_GRPC_URL", Reason: "TRON is enabled without an RPC url"}
		}
		if c.Tron.MasterAddress == "" {
			return &domain.ConfigurationError{Key: "TRON_MASTER_ADDRESS", Reason: "TRON is enabled without a master wallet"}
		}
	}

	if c.Polygon.Enabled {
		if c.Polygon.RPCURL == "" {
			return &domain.ConfigurationError{Key: "POLYGON_RPC_URL", Reason: "Polygon is enabled without an RPC url"}
		}
		if c.Polygon.MasterAddress == "" {
			return &domain.ConfigurationError{Key: "POLYGON_MASTER_ADDRESS", Reason: "Polygon is enabled without a master wallet"}
		}
		if len(c.Polygon.USDCContracts) == 0 {
			return &domain.ConfigurationError{Key: "POLYGON_USDC_CONTRACTS", Reason: "at least one USDC contract is required"}
		}
	}

	return nil
}

// Chains returns the per-network settings of every enabled network
func (c *Config) Chains() map[domain.Network]ChainConfig {
	out := make(map[domain.Network]ChainConfig)
	if c.Tron.Enabled {
		out[domain.NetworkTron] = c.Tron.ChainConfig
	}
	if c.Polygon.Enabled {
		out[domain.NetworkPolygon] = c.Polygon.ChainConfig
	}
	return out
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// ============================================================================
// Helper Functions
// ============================================================================

type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) fail(key, reason string) {
	if e.err == nil {
		e.err = &domain.ConfigurationError{Key: key, Reason: reason}
	}
}

func (e *env) getEnv(key, defaultValue string) string {
	if value, ok := e.lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func (e *env) getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := e.getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		e.fail(key, fmt.Sprintf("not an integer: %q", valueStr))
		return defaultValue
	}
	return value
}

func (e *env) getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := e.getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		e.fail(key, fmt.Sprintf("not a number: %q", valueStr))
		return defaultValue
	}
	return value
}

func (e *env) getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := e.getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		e.fail(key, fmt.Sprintf("not a boolean: %q", valueStr))
		return defaultValue
	}
	return value
}

func (e *env) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := e.getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		e.fail(key, fmt.Sprintf("not a positive duration: %q", valueStr))
		return defaultValue
	}
	return value
}

func (e *env) getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	valueStr := e.getEnv(key, defaultValue)
	value, err := decimal.NewFromString(valueStr)
	if err != nil || value.IsNegative() {
		e.fail(key, fmt.Sprintf("not a non-negative amount: %q", valueStr))
		return decimal.RequireFromString(defaultValue)
	}
	return value
}

// parseCSVEnv splits a comma separated value, dropping empty entries
func (e *env) parseCSVEnv(key string) []string {
	raw := e.getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
