package enricher

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/mev-backrunner/internal/amm"
	"github.com/devlongs/mev-backrunner/pkg/types"
)

// Registry is the instrument graph lookup surface the enricher needs
type Registry interface {
	ExchangeByRouter(router common.Address) (string, bool)
	TokenByAddress(addr common.Address) (*types.Token, bool)
	PoolForPair(exchange string, a, b int) (*types.Pool, bool)
}

// Config restricts which trades are enriched
type Config struct {
	WhitelistedExchanges []string
	BlacklistedTokens    []common.Address
}

// Enricher resolves decoded trades against the instrument graph
type Enricher struct {
	registry  Registry
	exchanges map[string]bool
	blacklist map[common.Address]bool
}

// NewEnricher creates an enricher. An empty exchange whitelist allows every exchange.
func NewEnricher(registry Registry, cfg Config) *Enricher {
	exchanges := make(map[string]bool, len(cfg.WhitelistedExchanges))
	for _, ex := range cfg.WhitelistedExchanges {
		exchanges[ex] = true
	}
	blacklist := make(map[common.Address]bool, len(cfg.BlacklistedTokens))
	for _, tok := range cfg.BlacklistedTokens {
		blacklist[tok] = true
	}

	return &Enricher{
		registry:  registry,
		exchanges: exchanges,
		blacklist: blacklist,
	}
}

// Enrich maps a trade descriptor to internal ids and normalized amounts.
// It returns false when any part of the trade cannot be resolved.
func (e *Enricher) Enrich(trade *types.TradeDescriptor) (*types.CallArgs, bool) {
	if trade == nil || len(trade.Path) < 2 {
		return nil, false
	}

	exchange, ok := e.registry.ExchangeByRouter(trade.Router)
	if !ok {
		return nil, false
	}
	if len(e.exchanges) > 0 && !e.exchanges[exchange] {
		return nil, false
	}

	tokens := make([]*types.Token, 0, len(trade.Path))
	for _, addr := range trade.Path {
		if e.blacklist[addr] {
			log.Debug().Str("token", addr.Hex()).Msg("Skipping trade on blacklisted token")
			return nil, false
		}
		token, ok := e.registry.TokenByAddress(addr)
		if !ok {
			return nil, false
		}
		tokens = append(tokens, token)
	}

	args := &types.CallArgs{
		Exchange:      exchange,
		TokenIDs:      make([]int, len(tokens)),
		PoolIDs:       make([]int, 0, len(tokens)-1),
		PoolAddresses: make([]common.Address, 0, len(tokens)-1),
	}
	for i, token := range tokens {
		args.TokenIDs[i] = token.ID
	}

	for i := 0; i < len(tokens)-1; i++ {
		pool, ok := e.registry.PoolForPair(exchange, tokens[i].ID, tokens[i+1].ID)
		if !ok {
			return nil, false
		}
		args.PoolIDs = append(args.PoolIDs, pool.ID)
		args.PoolAddresses = append(args.PoolAddresses, pool.Address)
	}

	args.AmountIn = amm.Normalize(trade.AmountIn, tokens[0].Decimals)
	args.AmountOutMin = amm.Normalize(trade.AmountOutMin, tokens[len(tokens)-1].Decimals)
	if trade.Deadline != nil {
		args.Deadline = new(big.Int).Set(trade.Deadline)
	}

	return args, true
}
