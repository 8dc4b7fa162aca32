package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crcmarketd.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if cfg.Strategy != StrategyGraded {
		t.Fatalf("default strategy %q", cfg.Strategy)
	}
	if cfg.WindowDuration <= 0 {
		t.Fatalf("default window duration %d", cfg.WindowDuration)
	}
	if _, configured, err := cfg.Admin(); err != nil || configured {
		t.Fatalf("default admin should be unset: configured=%v err=%v", configured, err)
	}

	// A second load reads the file it just wrote.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ListenAddress != cfg.ListenAddress {
		t.Fatalf("reload mismatch: %q != %q", again.ListenAddress, cfg.ListenAddress)
	}
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crcmarketd.toml")
	content := "ListenAddress = \":9000\"\nStrategy = \"binary\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("listen address %q", cfg.ListenAddress)
	}
	if cfg.Strategy != StrategyBinary {
		t.Fatalf("strategy %q", cfg.Strategy)
	}
	// Unset keys keep their defaults.
	if cfg.TokenDecimals != 18 {
		t.Fatalf("token decimals %d", cfg.TokenDecimals)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg.Strategy = "quadratic"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected strategy rejection")
	}
	cfg = defaultConfig()
	cfg.WindowDuration = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected duration rejection")
	}
	cfg = defaultConfig()
	cfg.AdminAddress = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected admin address rejection")
	}
}
