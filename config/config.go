package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the daemon configuration decoded from TOML.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	NetworkName    string `toml:"NetworkName"`
	ChainID        uint64 `toml:"ChainID"`
	// RPCAuthToken guards mutating RPC methods; read-only methods are open.
	RPCAuthToken string `toml:"RPCAuthToken"`
	// RateLimitPerMinute bounds JSON-RPC requests per client address.
	RateLimitPerMinute float64 `toml:"RateLimitPerMinute"`
	// CodeMetadataBaseURI prefixes rendered builder-code token URIs.
	CodeMetadataBaseURI string `toml:"CodeMetadataBaseURI"`
	// Registrars are bech32 addresses granted the code registrar role at
	// boot.
	Registrars []string `toml:"Registrars"`
}

// Load loads the configuration from the given path, writing defaults when the
// file does not exist yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot serve.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("config: ChainID must be non-zero")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: RateLimitPerMinute must be non-negative")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		RPCAddress:          "127.0.0.1:8645",
		MetricsAddress:      "127.0.0.1:9464",
		DataDir:             "./flywheel-data",
		NetworkName:         "flywheel-local",
		ChainID:             1337,
		RateLimitPerMinute:  600,
		CodeMetadataBaseURI: "https://codes.flywheel.local/",
	}
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
