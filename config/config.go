package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the marketvaultd runtime configuration.
type Config struct {
	// RPCAddress is the listen address of the JSON-RPC server.
	RPCAddress string `toml:"RPCAddress"`
	// DataDir holds the LevelDB state database.
	DataDir string `toml:"DataDir"`
	// OwnerAddress is the contract owner identity, required on first boot
	// and immutable afterwards.
	OwnerAddress string `toml:"OwnerAddress"`
	// SeedCurrencies lists quote-currency ids whose traded-volume counters
	// are initialized to zero at genesis.
	SeedCurrencies []uint64 `toml:"SeedCurrencies"`
	// NetworkName tags log output and metrics.
	NetworkName string `toml:"NetworkName"`
}

const defaultConfigTemplate = `# marketvaultd configuration
RPCAddress = "%s"
DataDir = "%s"
# Contract owner identity (0x-prefixed, 20 bytes). Required on first boot.
OwnerAddress = ""
SeedCurrencies = [2]
NetworkName = "%s"
`

// Load loads the configuration from the given path, creating a commented
// default file when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown keys: %v", path, undecoded)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "market-local"
	}
	if cfg.SeedCurrencies == nil {
		cfg.SeedCurrencies = []uint64{2}
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	contents := fmt.Sprintf(defaultConfigTemplate, cfg.RPCAddress, cfg.DataDir, cfg.NetworkName)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return nil, err
	}
	return cfg, nil
}
