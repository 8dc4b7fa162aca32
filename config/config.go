package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"crcmarket/core/types"
)

// Strategy selects the weight-ledger implementation the daemon wires up.
const (
	StrategyGraded = "graded"
	StrategyBinary = "binary"
)

// Config is the daemon configuration, loaded from TOML.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`

	AdminAddress  string `toml:"AdminAddress"`
	TokenSymbol   string `toml:"TokenSymbol"`
	TokenDecimals uint8  `toml:"TokenDecimals"`

	Strategy        string `toml:"Strategy"`
	CycleStart      int64  `toml:"CycleStart"`
	WindowDuration  int64  `toml:"WindowDurationSeconds"`
	SoftLock        bool   `toml:"SoftLock"`
	OfferNamePrefix string `toml:"OfferNamePrefix"`

	RateLimitPerMinute float64 `toml:"RateLimitPerMinute"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress:      ":8640",
		DataDir:            "./crcmarket-data",
		Environment:        "local",
		TokenSymbol:        "MKT",
		TokenDecimals:      18,
		Strategy:           StrategyGraded,
		WindowDuration:     7 * 24 * 60 * 60,
		SoftLock:           true,
		OfferNamePrefix:    "offer",
		RateLimitPerMinute: 600,
		RateLimitBurst:     30,
	}
}

// Load reads the configuration at path, writing a default file first when
// none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "." {
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
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engines would refuse anyway, so the
// daemon fails fast at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("config: WindowDurationSeconds must be positive")
	}
	switch c.Strategy {
	case StrategyGraded, StrategyBinary:
	default:
		return fmt.Errorf("config: Strategy must be %q or %q", StrategyGraded, StrategyBinary)
	}
	if strings.TrimSpace(c.AdminAddress) != "" {
		if _, err := types.DecodeAddress(c.AdminAddress); err != nil {
			return fmt.Errorf("config: AdminAddress: %w", err)
		}
	}
	return nil
}

// Admin parses the configured admin address. An empty value is reported as
// unset so the daemon can generate a key instead.
func (c *Config) Admin() (types.Address, bool, error) {
	trimmed := strings.TrimSpace(c.AdminAddress)
	if trimmed == "" {
		return types.Address{}, false, nil
	}
	addr, err := types.DecodeAddress(trimmed)
	if err != nil {
		return types.Address{}, false, err
	}
	return addr, true, nil
}
