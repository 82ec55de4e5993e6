package graph

import (
	"fmt"

	"github.com/spf13/viper"
)

// Definition is the on-disk form of the instrument graph
type Definition struct {
	Exchanges []ExchangeDef `mapstructure:"exchanges"`
	Tokens    []TokenDef    `mapstructure:"tokens"`
	Pools     []PoolDef     `mapstructure:"pools"`
	Paths     []PathDef     `mapstructure:"paths"`
}

// ExchangeDef names an exchange and its router
type ExchangeDef struct {
	Name   string `mapstructure:"name"`
	Router string `mapstructure:"router"`
}

// TokenDef describes a token
type TokenDef struct {
	ID       int    `mapstructure:"id"`
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Decimals uint8  `mapstructure:"decimals"`
}

// PoolDef describes a pool. Tokens are ordered token0, token1.
type PoolDef struct {
	ID       int      `mapstructure:"id"`
	Address  string   `mapstructure:"address"`
	Exchange string   `mapstructure:"exchange"`
	Tokens   []int    `mapstructure:"tokens"`
	Weights  []uint32 `mapstructure:"weights"`
}

// PathDef describes a cyclic path
type PathDef struct {
	ID      int    `mapstructure:"id"`
	Tokens  []int  `mapstructure:"tokens"`
	Pools   []int  `mapstructure:"pools"`
	Enabled bool   `mapstructure:"enabled"`
	Gas     uint64 `mapstructure:"gas"`
}

// Load reads a graph definition file (yaml, json or toml) and builds the graph
func Load(file string, opts Options) (*Graph, error) {
	v := viper.New()
	v.SetConfigFile(file)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read instrument graph %s: %w", file, err)
	}

	var def Definition
	if err := v.Unmarshal(&def); err != nil {
		return nil, fmt.Errorf("failed to decode instrument graph %s: %w", file, err)
	}

	return New(def, opts)
}
