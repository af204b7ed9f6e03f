package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/michaelpento.lv/flashbridge/flashloan"
	"github.com/michaelpento.lv/flashbridge/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

// DefaultConfigName is looked up in the home directory when no path is given
const DefaultConfigName = ".flashbridge.json"

type Config struct {
	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`
	Debug    bool   `json:"debug" yaml:"debug"`

	// Execution limits
	MaxCallDepth        int             `json:"max_call_depth" yaml:"max_call_depth"`
	SimulationCacheSize int             `json:"simulation_cache_size" yaml:"simulation_cache_size"`
	SimulationRateLimit RateLimitConfig `json:"simulation_rate_limit" yaml:"simulation_rate_limit"`

	Metrics  MetricsConfig   `json:"metrics" yaml:"metrics"`
	Adapter  AdapterConfig   `json:"adapter" yaml:"adapter"`
	Vault    VaultConfig     `json:"vault" yaml:"vault"`
	Reserves []ReserveConfig `json:"reserves" yaml:"reserves"`

	// Internal components
	Logger *zap.Logger `json:"-" yaml:"-"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	ListenAddr     string `json:"listen_addr" yaml:"listen_addr"`
	Namespace      string `json:"namespace" yaml:"namespace"`
	IncludeRuntime bool   `json:"include_runtime" yaml:"include_runtime"`
}

// RateLimitConfig throttles simulations. Zero RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int           `json:"burst_size" yaml:"burst_size"`
	WaitTimeout       time.Duration `json:"wait_timeout" yaml:"wait_timeout"`
}

type AdapterConfig struct {
	// InitiatorPolicy is "adapter" or "origin"
	InitiatorPolicy string `json:"initiator_policy" yaml:"initiator_policy"`
	// BorrowerAcceptsLender lets the demo borrower trust the lender as initiator
	BorrowerAcceptsLender bool `json:"borrower_accepts_lender" yaml:"borrower_accepts_lender"`
}

// VaultConfig enables a second, directly funded flash lender
type VaultConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	FeeBps  uint16 `json:"fee_bps" yaml:"fee_bps"`
}

// ReserveConfig lists one demo reserve. Liquidity is a decimal amount in
// whole tokens.
type ReserveConfig struct {
	Symbol    string `json:"symbol" yaml:"symbol"`
	Name      string `json:"name" yaml:"name"`
	Decimals  uint8  `json:"decimals" yaml:"decimals"`
	Liquidity string `json:"liquidity" yaml:"liquidity"`
	// VaultLiquidity funds the vault lender when it is enabled
	VaultLiquidity string `json:"vault_liquidity,omitempty" yaml:"vault_liquidity,omitempty"`
}

// LiquidityUnits converts Liquidity to base units
func (r ReserveConfig) LiquidityUnits() (*big.Int, error) {
	return utils.ParseUnits(r.Liquidity, r.Decimals)
}

// VaultLiquidityUnits converts VaultLiquidity to base units. Empty means zero.
func (r ReserveConfig) VaultLiquidityUnits() (*big.Int, error) {
	if r.VaultLiquidity == "" {
		return new(big.Int), nil
	}
	return utils.ParseUnits(r.VaultLiquidity, r.Decimals)
}

// Policy parses the configured initiator policy
func (a AdapterConfig) Policy() (flashloan.InitiatorPolicy, error) {
	return flashloan.ParseInitiatorPolicy(a.InitiatorPolicy)
}

func (c *Config) Validate() error {
	var errors []string

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("log_level: %v", err))
	}
	if c.MaxCallDepth <= 0 || c.MaxCallDepth > chain.DefaultMaxDepth {
		errors = append(errors, fmt.Sprintf("max_call_depth must be between 1 and %d", chain.DefaultMaxDepth))
	}
	if c.SimulationCacheSize < 0 {
		errors = append(errors, "simulation_cache_size must not be negative")
	}

	if err := c.SimulationRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("simulation rate limit error: %v", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("metrics config error: %v", err))
	}
	if _, err := c.Adapter.Policy(); err != nil {
		errors = append(errors, fmt.Sprintf("adapter config error: %v", err))
	}
	if c.Vault.FeeBps > 10_000 {
		errors = append(errors, "vault config error: fee_bps must be at most 10000")
	}

	seen := make(map[string]bool)
	for i, r := range c.Reserves {
		if err := r.Validate(); err != nil {
			errors = append(errors, fmt.Sprintf("reserve %d: %v", i, err))
			continue
		}
		if seen[r.Symbol] {
			errors = append(errors, fmt.Sprintf("reserve %d: duplicate symbol %s", i, r.Symbol))
		}
		seen[r.Symbol] = true
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.ListenAddr == "" {
		return fmt.Errorf("listen address must be specified when metrics are enabled")
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond == 0 {
		return nil
	}
	if r.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	if r.WaitTimeout < 0 {
		return fmt.Errorf("wait timeout must not be negative")
	}
	return nil
}

func (r *ReserveConfig) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol must be specified")
	}
	if r.Decimals > 36 {
		return fmt.Errorf("decimals must be at most 36")
	}
	if _, err := r.LiquidityUnits(); err != nil {
		return fmt.Errorf("liquidity: %w", err)
	}
	if _, err := r.VaultLiquidityUnits(); err != nil {
		return fmt.Errorf("vault_liquidity: %w", err)
	}
	return nil
}

// LoadConfig reads a JSON or YAML file on top of DefaultConfig, applies
// FLASHBRIDGE_* environment overrides and validates the result.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, DefaultConfigName)
	}

	raw, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(cfgFile) {
		err = yaml.Unmarshal(raw, config)
	} else {
		err = json.Unmarshal(raw, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		cfgFile = filepath.Join(home, DefaultConfigName)
	}

	var (
		out []byte
		err error
	)
	if isYAML(cfgFile) {
		out, err = yaml.Marshal(cfg)
	} else {
		out, err = json.MarshalIndent(cfg, "", "    ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(cfgFile, out, 0o644)
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:            "info",
		MaxCallDepth:        chain.DefaultMaxDepth,
		SimulationCacheSize: 256,
		SimulationRateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			BurstSize:         100,
			WaitTimeout:       time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9090",
			Namespace:  "flashbridge",
		},
		Adapter: AdapterConfig{
			InitiatorPolicy:       flashloan.InitiatorAdapter.String(),
			BorrowerAcceptsLender: true,
		},
		Reserves: []ReserveConfig{
			{Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18, Liquidity: "1000"},
			{Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18, Liquidity: "2500000"},
			{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Liquidity: "2500000"},
		},
		Logger: zap.NewNop(),
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
