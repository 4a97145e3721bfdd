// Package config provides centralized configuration for the chainhop daemon.
// All tunable parameters (slippage, quote validity, hop limits, RPC
// endpoints) are defined here and injected explicitly into the components
// that need them; nothing reads configuration ambiently.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for product-tunable constants. The quote validity window and the
// alternative-switch delay have no derivation; they are configuration, not
// algorithm.
const (
	DefaultSlippageBps    = 50
	DefaultMaxHops        = 3
	DefaultQuoteValidity  = 30 * time.Second
	DefaultSwitchDelay    = 5 * time.Second
	DefaultProviderFeeBps = 0
)

// Config is the daemon configuration, loaded from a YAML file.
type Config struct {
	// Network selects the builtin registry ("mainnet" or "testnet").
	Network string `yaml:"network"`

	// DataDir holds the sqlite database.
	DataDir string `yaml:"data_dir"`

	// RPC endpoints keyed by chain id.
	RPCEndpoints map[uint64]string `yaml:"rpc_endpoints"`

	// Listen address for the HTTP/WS API.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel string `yaml:"log_level"`

	Routing RoutingConfig `yaml:"routing"`
}

// RoutingConfig carries the quoting and routing tunables.
type RoutingConfig struct {
	// SlippageBps is the default slippage tolerance in basis points.
	SlippageBps uint16 `yaml:"slippage_bps"`

	// MaxHops bounds route search depth.
	MaxHops int `yaml:"max_hops"`

	// QuoteValidity is how long a quote may be consumed after issuance.
	QuoteValidity time.Duration `yaml:"quote_validity"`

	// SwitchDelay is the cancelable delay before an alternative quote
	// replaces the selected one.
	SwitchDelay time.Duration `yaml:"switch_delay"`

	// ProviderFeeBps is the integrator fee passed to cell simulations.
	ProviderFeeBps uint16 `yaml:"provider_fee_bps"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Network:      "mainnet",
		DataDir:      "~/.chainhop",
		RPCEndpoints: make(map[uint64]string),
		ListenAddr:   "127.0.0.1:8723",
		LogLevel:     "info",
		Routing: RoutingConfig{
			SlippageBps:    DefaultSlippageBps,
			MaxHops:        DefaultMaxHops,
			QuoteValidity:  DefaultQuoteValidity,
			SwitchDelay:    DefaultSwitchDelay,
			ProviderFeeBps: DefaultProviderFeeBps,
		},
	}
}

// Load reads configuration from path, applying defaults for absent fields.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Network != "mainnet" && c.Network != "testnet" {
		return fmt.Errorf("invalid network %q: must be mainnet or testnet", c.Network)
	}
	if c.Routing.SlippageBps > 10000 {
		return fmt.Errorf("slippage_bps %d exceeds 10000", c.Routing.SlippageBps)
	}
	if c.Routing.MaxHops < 1 {
		return fmt.Errorf("max_hops must be at least 1, got %d", c.Routing.MaxHops)
	}
	if c.Routing.QuoteValidity <= 0 {
		return fmt.Errorf("quote_validity must be positive")
	}
	return nil
}

// Testnet reports whether the daemon runs against testnet chains.
func (c *Config) Testnet() bool {
	return c.Network == "testnet"
}
