package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all configuration for the backrunner
type Config struct {
	RPC      RPCConfig
	Strategy StrategyConfig
	Sweep    SweepConfig
	Executor ExecutorConfig
	Relay    RelayConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// RPCConfig holds Ethereum RPC configuration
type RPCConfig struct {
	URL            string
	WSUrl          string
	RetryAttempts  int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

// StrategyConfig holds the search thresholds and the instrument graph location
type StrategyConfig struct {
	GraphFile            string
	BaseToken            common.Address
	MinProfit            *big.Int // wei
	ReservedGas          *big.Int // wei held back from the input amount
	MaxHops              int
	PoolCapacity         int
	WhitelistedExchanges []string
	BlacklistedTokens    []common.Address
	EvalWorkers          int
	TippedRouters        []common.Address
	RefreshInterval      time.Duration
}

// SweepConfig toggles the pooled request validity checks
type SweepConfig struct {
	Enabled  bool
	Deadline bool
	Nonce    bool
	Mined    bool
	Balance  bool
	Workers  int
}

// ExecutorConfig identifies the contract and key used for backruns
type ExecutorConfig struct {
	Address    common.Address
	PrivateKey string
	ChainID    *big.Int // nil means use the node's chain id
}

// RelayConfig holds bundle relay settings
type RelayConfig struct {
	Enabled       bool
	URL           string
	SigningKey    string
	MaxRetries    int
	SubmitTimeout time.Duration
}

// MetricsConfig holds the prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

// Load reads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("rpc.url", "http://127.0.0.1:8545")
	v.SetDefault("rpc.ws_url", "")
	v.SetDefault("rpc.retry_attempts", 3)
	v.SetDefault("rpc.retry_delay", "1s")
	v.SetDefault("rpc.request_timeout", "30s")

	v.SetDefault("strategy.graph_file", "graph.yaml")
	v.SetDefault("strategy.base_token", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	v.SetDefault("strategy.min_profit", "0")
	v.SetDefault("strategy.reserved_gas", "0")
	v.SetDefault("strategy.max_hops", 3)
	v.SetDefault("strategy.pool_capacity", 1024)
	v.SetDefault("strategy.whitelisted_exchanges", []string{})
	v.SetDefault("strategy.blacklisted_tokens", []string{})
	v.SetDefault("strategy.eval_workers", 4)
	v.SetDefault("strategy.tipped_routers", []string{})
	v.SetDefault("strategy.refresh_interval", "12s")

	v.SetDefault("sweep.enabled", false)
	v.SetDefault("sweep.deadline", true)
	v.SetDefault("sweep.nonce", true)
	v.SetDefault("sweep.mined", true)
	v.SetDefault("sweep.balance", false)
	v.SetDefault("sweep.workers", 4)

	v.SetDefault("executor.address", "")
	v.SetDefault("executor.private_key", "")
	v.SetDefault("executor.chain_id", "")

	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.url", "https://relay.flashbots.net")
	v.SetDefault("relay.signing_key", "")
	v.SetDefault("relay.max_retries", 2)
	v.SetDefault("relay.submit_timeout", "5s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Environment variable support
	v.SetEnvPrefix("BACKRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file support
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.mev-backrunner")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var (
		cfg = &Config{}
		err error
	)

	cfg.RPC = RPCConfig{
		URL:           v.GetString("rpc.url"),
		WSUrl:         v.GetString("rpc.ws_url"),
		RetryAttempts: v.GetInt("rpc.retry_attempts"),
	}
	if cfg.RPC.RetryDelay, err = duration(v, "rpc.retry_delay"); err != nil {
		return nil, err
	}
	if cfg.RPC.RequestTimeout, err = duration(v, "rpc.request_timeout"); err != nil {
		return nil, err
	}
	if cfg.RPC.RetryAttempts < 1 {
		cfg.RPC.RetryAttempts = 1
	}

	cfg.Strategy = StrategyConfig{
		GraphFile:            v.GetString("strategy.graph_file"),
		MaxHops:              v.GetInt("strategy.max_hops"),
		PoolCapacity:         v.GetInt("strategy.pool_capacity"),
		WhitelistedExchanges: v.GetStringSlice("strategy.whitelisted_exchanges"),
		EvalWorkers:          v.GetInt("strategy.eval_workers"),
	}
	if cfg.Strategy.BaseToken, err = address(v.GetString("strategy.base_token"), "strategy.base_token"); err != nil {
		return nil, err
	}
	if cfg.Strategy.MinProfit, err = bigInt(v.GetString("strategy.min_profit"), "strategy.min_profit"); err != nil {
		return nil, err
	}
	if cfg.Strategy.ReservedGas, err = bigInt(v.GetString("strategy.reserved_gas"), "strategy.reserved_gas"); err != nil {
		return nil, err
	}
	if cfg.Strategy.BlacklistedTokens, err = addresses(v.GetStringSlice("strategy.blacklisted_tokens"), "strategy.blacklisted_tokens"); err != nil {
		return nil, err
	}
	if cfg.Strategy.TippedRouters, err = addresses(v.GetStringSlice("strategy.tipped_routers"), "strategy.tipped_routers"); err != nil {
		return nil, err
	}
	if cfg.Strategy.RefreshInterval, err = duration(v, "strategy.refresh_interval"); err != nil {
		return nil, err
	}

	cfg.Sweep = SweepConfig{
		Enabled:  v.GetBool("sweep.enabled"),
		Deadline: v.GetBool("sweep.deadline"),
		Nonce:    v.GetBool("sweep.nonce"),
		Mined:    v.GetBool("sweep.mined"),
		Balance:  v.GetBool("sweep.balance"),
		Workers:  v.GetInt("sweep.workers"),
	}

	cfg.Executor = ExecutorConfig{
		PrivateKey: v.GetString("executor.private_key"),
	}
	if s := v.GetString("executor.address"); s != "" {
		if cfg.Executor.Address, err = address(s, "executor.address"); err != nil {
			return nil, err
		}
	}
	if s := v.GetString("executor.chain_id"); s != "" {
		if cfg.Executor.ChainID, err = bigInt(s, "executor.chain_id"); err != nil {
			return nil, err
		}
	}

	cfg.Relay = RelayConfig{
		Enabled:    v.GetBool("relay.enabled"),
		URL:        v.GetString("relay.url"),
		SigningKey: v.GetString("relay.signing_key"),
		MaxRetries: v.GetInt("relay.max_retries"),
	}
	if cfg.Relay.SubmitTimeout, err = duration(v, "relay.submit_timeout"); err != nil {
		return nil, err
	}

	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("metrics.enabled"),
		Addr:    v.GetString("metrics.addr"),
	}

	cfg.Logging = LoggingConfig{
		Level:  v.GetString("logging.level"),
		Format: v.GetString("logging.format"),
	}

	return cfg, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func bigInt(s, key string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %q is not a non-negative integer", key, s)
	}
	return n, nil
}

func address(s, key string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s: %q is not an address", key, s)
	}
	return common.HexToAddress(s), nil
}

func addresses(list []string, key string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		addr, err := address(s, key)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
