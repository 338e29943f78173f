package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"proposalpay/crypto"
	"proposalpay/native/proposal"
)

// Config is the on-disk daemon configuration.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	GatewayAddress string `toml:"GatewayAddress"`
	DataDir        string `toml:"DataDir"`
	Environment    string `toml:"Environment"`

	// CreationFee is the successful-proposal fee charged at creation time.
	// It seeds the module configuration on first start; afterwards the
	// stored value wins and updates go through the owner RPC.
	FeeDenom  string `toml:"FeeDenom"`
	FeeAmount string `toml:"FeeAmount"`

	// OwnerAddress, when set, seeds the module owner on first start.
	OwnerAddress string `toml:"OwnerAddress"`

	// RPCAuthToken guards mutating JSON-RPC methods. An empty token
	// disables the check, which is only sensible for local development.
	RPCAuthToken string `toml:"RPCAuthToken"`

	LogFile      string `toml:"LogFile"`
	LogMaxSizeMB int    `toml:"LogMaxSizeMB"`

	Telemetry TelemetryConfig `toml:"Telemetry"`
	Audit     AuditConfig     `toml:"Audit"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Enabled     bool   `toml:"Enabled"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Headers     string `toml:"Headers"`
	Environment string `toml:"Environment"`
}

// AuditConfig wires the relational event recorder. An empty DSN disables it.
type AuditConfig struct {
	DSN string `toml:"DSN"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8545"
	}
	if strings.TrimSpace(c.GatewayAddress) == "" {
		c.GatewayAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./proposalpay-data"
	}
	if strings.TrimSpace(c.FeeDenom) == "" {
		c.FeeDenom = "uom"
	}
	if strings.TrimSpace(c.FeeAmount) == "" {
		c.FeeAmount = "100"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if _, err := c.CreationFee(); err != nil {
		return err
	}
	if _, err := c.Owner(); err != nil {
		return err
	}
	return nil
}

// CreationFee parses the configured fee into a Coin.
func (c *Config) CreationFee() (proposal.Coin, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(c.FeeAmount), 10)
	if !ok {
		return proposal.Coin{}, fmt.Errorf("config: FeeAmount %q is not a base-10 integer", c.FeeAmount)
	}
	if amount.Sign() <= 0 {
		return proposal.Coin{}, fmt.Errorf("config: FeeAmount must be positive")
	}
	denom := strings.TrimSpace(c.FeeDenom)
	if denom == "" {
		return proposal.Coin{}, fmt.Errorf("config: FeeDenom must be set")
	}
	return proposal.Coin{Denom: denom, Amount: amount}, nil
}

// Owner decodes the configured owner address, if any.
func (c *Config) Owner() (*[20]byte, error) {
	raw := strings.TrimSpace(c.OwnerAddress)
	if raw == "" {
		return nil, nil
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return nil, fmt.Errorf("config: OwnerAddress: %w", err)
	}
	owner := addr.Raw()
	return &owner, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
