package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RPC.RetryAttempts != 3 || cfg.RPC.RetryDelay != time.Second {
		t.Errorf("RPC = %+v; want 3 attempts, 1s delay", cfg.RPC)
	}
	if cfg.RPC.WSUrl != "" {
		t.Errorf("RPC.WSUrl = %q; want empty so the http-only node is polled", cfg.RPC.WSUrl)
	}
	if cfg.Strategy.MinProfit.Sign() != 0 || cfg.Strategy.ReservedGas.Sign() != 0 {
		t.Errorf("MinProfit, ReservedGas = %s, %s; want 0, 0", cfg.Strategy.MinProfit, cfg.Strategy.ReservedGas)
	}
	if cfg.Strategy.MaxHops != 3 || cfg.Strategy.PoolCapacity != 1024 {
		t.Errorf("MaxHops, PoolCapacity = %d, %d; want 3, 1024", cfg.Strategy.MaxHops, cfg.Strategy.PoolCapacity)
	}
	if want := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"); cfg.Strategy.BaseToken != want {
		t.Errorf("BaseToken = %s; want WETH", cfg.Strategy.BaseToken.Hex())
	}
	if cfg.Sweep.Enabled || cfg.Relay.Enabled || cfg.Metrics.Enabled {
		t.Error("optional components enabled by default")
	}
	if cfg.Executor.ChainID != nil {
		t.Errorf("Executor.ChainID = %s; want nil", cfg.Executor.ChainID)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v; want info/console", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("BACKRUN_STRATEGY_MIN_PROFIT", "5000000000000000")
	t.Setenv("BACKRUN_STRATEGY_TIPPED_ROUTERS", "0x87535b160E251167FB7abE239d2467d1127219E4")
	t.Setenv("BACKRUN_SWEEP_ENABLED", "true")
	t.Setenv("BACKRUN_RELAY_MAX_RETRIES", "5")
	t.Setenv("BACKRUN_EXECUTOR_CHAIN_ID", "5")
	t.Setenv("BACKRUN_LOGGING_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Strategy.MinProfit.String() != "5000000000000000" {
		t.Errorf("MinProfit = %s; want 5000000000000000", cfg.Strategy.MinProfit)
	}
	if len(cfg.Strategy.TippedRouters) != 1 || cfg.Strategy.TippedRouters[0] != common.HexToAddress("0x87535b160E251167FB7abE239d2467d1127219E4") {
		t.Errorf("TippedRouters = %v; want one router", cfg.Strategy.TippedRouters)
	}
	if !cfg.Sweep.Enabled {
		t.Error("Sweep.Enabled = false; want true")
	}
	if cfg.Relay.MaxRetries != 5 {
		t.Errorf("Relay.MaxRetries = %d; want 5", cfg.Relay.MaxRetries)
	}
	if cfg.Executor.ChainID == nil || cfg.Executor.ChainID.Int64() != 5 {
		t.Errorf("Executor.ChainID = %v; want 5", cfg.Executor.ChainID)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %s; want json", cfg.Logging.Format)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"BACKRUN_STRATEGY_MIN_PROFIT", "0.5"},
		{"BACKRUN_STRATEGY_RESERVED_GAS", "-1"},
		{"BACKRUN_STRATEGY_BASE_TOKEN", "weth"},
		{"BACKRUN_RPC_RETRY_DELAY", "soon"},
		{"BACKRUN_EXECUTOR_ADDRESS", "0x1234"},
	}

	for _, c := range cases {
		t.Run(c.key, func(t *testing.T) {
			isolate(t)
			t.Setenv(c.key, c.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load with %s=%q returned nil error", c.key, c.value)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	home := isolate(t)

	dir := filepath.Join(home, ".mev-backrunner")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	yaml := []byte(`
strategy:
  graph_file: /etc/backrunner/graph.yaml
  max_hops: 2
  whitelisted_exchanges: [uniswap, sushiswap]
  blacklisted_tokens: ["0xdAC17F958D2ee523a2206206994597C13D831ec7"]
metrics:
  enabled: true
  addr: ":9200"
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Strategy.GraphFile != "/etc/backrunner/graph.yaml" || cfg.Strategy.MaxHops != 2 {
		t.Errorf("Strategy = %+v; want file values", cfg.Strategy)
	}
	if len(cfg.Strategy.WhitelistedExchanges) != 2 || cfg.Strategy.WhitelistedExchanges[1] != "sushiswap" {
		t.Errorf("WhitelistedExchanges = %v; want [uniswap sushiswap]", cfg.Strategy.WhitelistedExchanges)
	}
	if len(cfg.Strategy.BlacklistedTokens) != 1 {
		t.Errorf("BlacklistedTokens = %v; want 1 entry", cfg.Strategy.BlacklistedTokens)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics = %+v; want enabled on :9200", cfg.Metrics)
	}
}
