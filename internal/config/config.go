// Package config provides daemon configuration loaded from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marswap-exchange/marswapd/internal/chain"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name inside the data directory.
const ConfigFileName = "config.yaml"

// Config holds all daemon configuration.
type Config struct {
	// Network selects mainnet, testnet or regtest for the primary chain.
	// Regtest pairs a regtest primary with an alt-chain testnet.
	Network string `yaml:"network"`

	// Storage settings.
	Storage StorageConfig `yaml:"storage"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging"`

	// Swap policy.
	Swap SwapConfig `yaml:"swap"`

	// Nodes holds per-chain RPC endpoints, keyed by chain symbol.
	Nodes map[string]*NodeConfig `yaml:"nodes"`

	// Wallet holds optional daemon key settings.
	Wallet WalletConfig `yaml:"wallet,omitempty"`
}

// WalletConfig holds the daemon's key material source. When MnemonicFile is
// set the daemon derives its swap keys from it and attempts refunds for
// expired swaps on its own.
type WalletConfig struct {
	MnemonicFile string `yaml:"mnemonic_file,omitempty"`
}

// StorageConfig holds journal settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SwapConfig holds swap policy defaults.
type SwapConfig struct {
	// Duration is the nominal swap duration D in seconds. The alt
	// contract expires after D, the primary contract after 2D.
	Duration uint32 `yaml:"duration"`

	// PollInterval is the chain polling cadence in seconds.
	PollInterval uint32 `yaml:"poll_interval"`

	// Flat transaction fees in minor units, keyed by chain symbol.
	Fees map[string]uint64 `yaml:"fees"`

	// Confirmation overrides, keyed by chain symbol. Zero entries fall
	// back to the chain's built-in default.
	Confirmations map[string]uint32 `yaml:"confirmations"`
}

// NodeConfig holds one chain node's RPC settings.
type NodeConfig struct {
	URL     string `yaml:"url"`
	User    string `yaml:"user"`
	Pass    string `yaml:"pass"`
	Timeout int    `yaml:"timeout,omitempty"` // seconds, default 30
}

// RPCTimeout returns the node's request timeout.
func (n *NodeConfig) RPCTimeout() time.Duration {
	if n.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n.Timeout) * time.Second
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Network: string(chain.Testnet),
		Storage: StorageConfig{
			DataDir: "~/.marswap",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Swap: SwapConfig{
			Duration:     3600,
			PollInterval: 30,
			Fees: map[string]uint64{
				"BTC":  1000,
				"MARS": 1000,
			},
		},
		Nodes: map[string]*NodeConfig{
			"BTC":  {URL: "http://127.0.0.1:8332"},
			"MARS": {URL: "http://127.0.0.1:8337"},
		},
	}
}

// Load reads configuration from path. A missing file is created with
// defaults so the operator has something to edit.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# marswapd configuration\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch chain.Network(c.Network) {
	case chain.Mainnet, chain.Testnet, chain.Regtest:
	default:
		return fmt.Errorf("invalid network %q", c.Network)
	}
	if c.Swap.Duration == 0 {
		return fmt.Errorf("swap duration must be positive")
	}
	for symbol, node := range c.Nodes {
		if node == nil || node.URL == "" {
			return fmt.Errorf("node %s: missing rpc url", symbol)
		}
	}
	return nil
}

// PrimaryNetwork returns the configured network as a chain.Network.
func (c *Config) PrimaryNetwork() chain.Network {
	return chain.Network(c.Network)
}

// AltNetwork returns the alt chain's network. The alt chain has no regtest
// deployment, so regtest setups pair with its testnet.
func (c *Config) AltNetwork() chain.Network {
	net := chain.Network(c.Network)
	if net == chain.Regtest {
		return chain.Testnet
	}
	return net
}

// FeeFor returns the configured flat fee for a chain, in minor units.
func (c *Config) FeeFor(symbol string) uint64 {
	if fee, ok := c.Swap.Fees[symbol]; ok && fee > 0 {
		return fee
	}
	return 1000
}

// PollInterval returns the chain polling cadence.
func (c *Config) PollInterval() time.Duration {
	if c.Swap.PollInterval == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Swap.PollInterval) * time.Second
}
