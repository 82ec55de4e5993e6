// Package graph holds the static instrument graph: tokens, pools, exchanges
// and the cyclic paths evaluated for arbitrage. It is built once at startup
// and read-only afterwards.
package graph

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-backrunner/pkg/types"
)

// ValidationError reports an inconsistent instrument graph
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid instrument graph: " + e.Reason
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Options control graph validation
type Options struct {
	BaseToken common.Address
	MaxHops   int
}

type pairKey struct {
	exchange string
	a, b     int
}

func newPairKey(exchange string, a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{exchange: exchange, a: a, b: b}
}

// Graph is the validated, immutable instrument graph
type Graph struct {
	base *types.Token

	tokens       map[int]*types.Token
	tokensByAddr map[common.Address]*types.Token
	pools        map[int]*types.Pool
	poolsByExch  map[string][]*types.Pool
	pairs        map[pairKey]*types.Pool
	routers      map[common.Address]string
	paths        []*types.Path
	pathsByPool  map[int][]*types.Path
}

// New validates a definition and builds the graph
func New(def Definition, opts Options) (*Graph, error) {
	g := &Graph{
		tokens:       make(map[int]*types.Token),
		tokensByAddr: make(map[common.Address]*types.Token),
		pools:        make(map[int]*types.Pool),
		poolsByExch:  make(map[string][]*types.Pool),
		pairs:        make(map[pairKey]*types.Pool),
		routers:      make(map[common.Address]string),
		pathsByPool:  make(map[int][]*types.Path),
	}

	exchanges := make(map[string]bool)
	for _, ex := range def.Exchanges {
		if ex.Name == "" {
			return nil, invalid("exchange with empty name")
		}
		if !common.IsHexAddress(ex.Router) {
			return nil, invalid("exchange %s: bad router address %q", ex.Name, ex.Router)
		}
		router := common.HexToAddress(ex.Router)
		if other, ok := g.routers[router]; ok {
			return nil, invalid("router %s registered for %s and %s", router.Hex(), other, ex.Name)
		}
		g.routers[router] = ex.Name
		exchanges[ex.Name] = true
	}

	for _, td := range def.Tokens {
		if _, dup := g.tokens[td.ID]; dup {
			return nil, invalid("duplicate token id %d", td.ID)
		}
		if !common.IsHexAddress(td.Address) {
			return nil, invalid("token %d: bad address %q", td.ID, td.Address)
		}
		token := &types.Token{
			ID:       td.ID,
			Address:  common.HexToAddress(td.Address),
			Symbol:   td.Symbol,
			Decimals: td.Decimals,
		}
		if _, dup := g.tokensByAddr[token.Address]; dup {
			return nil, invalid("duplicate token address %s", token.Address.Hex())
		}
		g.tokens[token.ID] = token
		g.tokensByAddr[token.Address] = token
	}

	base, ok := g.tokensByAddr[opts.BaseToken]
	if !ok {
		return nil, invalid("base token %s is not registered", opts.BaseToken.Hex())
	}
	g.base = base

	for _, pd := range def.Pools {
		pool, err := g.buildPool(pd, exchanges)
		if err != nil {
			return nil, err
		}
		g.pools[pool.ID] = pool
		g.poolsByExch[pool.Exchange] = append(g.poolsByExch[pool.Exchange], pool)

		key := newPairKey(pool.Exchange, pool.Tokens[0], pool.Tokens[1])
		if _, dup := g.pairs[key]; !dup {
			g.pairs[key] = pool
		}
	}

	seenPaths := make(map[int]bool)
	for _, pd := range def.Paths {
		if seenPaths[pd.ID] {
			return nil, invalid("duplicate path id %d", pd.ID)
		}
		seenPaths[pd.ID] = true

		path, err := g.buildPath(pd, opts.MaxHops)
		if err != nil {
			return nil, err
		}
		g.paths = append(g.paths, path)

		if !path.Enabled {
			continue
		}
		indexed := make(map[int]bool, len(path.PoolIDs))
		for _, poolID := range path.PoolIDs {
			if indexed[poolID] {
				continue
			}
			indexed[poolID] = true
			g.pathsByPool[poolID] = append(g.pathsByPool[poolID], path)
		}
	}

	sort.Slice(g.paths, func(i, j int) bool { return g.paths[i].ID < g.paths[j].ID })

	return g, nil
}

func (g *Graph) buildPool(pd PoolDef, exchanges map[string]bool) (*types.Pool, error) {
	if _, dup := g.pools[pd.ID]; dup {
		return nil, invalid("duplicate pool id %d", pd.ID)
	}
	if !common.IsHexAddress(pd.Address) {
		return nil, invalid("pool %d: bad address %q", pd.ID, pd.Address)
	}
	if !exchanges[pd.Exchange] {
		return nil, invalid("pool %d: unknown exchange %q", pd.ID, pd.Exchange)
	}
	if len(pd.Tokens) != 2 {
		return nil, invalid("pool %d: expected 2 tokens, got %d", pd.ID, len(pd.Tokens))
	}
	for _, id := range pd.Tokens {
		if _, ok := g.tokens[id]; !ok {
			return nil, invalid("pool %d: unknown token %d", pd.ID, id)
		}
	}
	if pd.Tokens[0] == pd.Tokens[1] {
		return nil, invalid("pool %d: both sides are token %d", pd.ID, pd.Tokens[0])
	}

	weights := [2]uint32{50, 50}
	if len(pd.Weights) != 0 {
		if len(pd.Weights) != 2 || pd.Weights[0] != pd.Weights[1] {
			return nil, invalid("pool %d: only equal-weight constant-product pools are supported", pd.ID)
		}
		weights = [2]uint32{pd.Weights[0], pd.Weights[1]}
	}

	return &types.Pool{
		ID:       pd.ID,
		Address:  common.HexToAddress(pd.Address),
		Exchange: pd.Exchange,
		Tokens:   [2]int{pd.Tokens[0], pd.Tokens[1]},
		Weights:  weights,
	}, nil
}

func (g *Graph) buildPath(pd PathDef, maxHops int) (*types.Path, error) {
	if len(pd.Pools) == 0 {
		return nil, invalid("path %d: no pools", pd.ID)
	}
	if len(pd.Pools) != len(pd.Tokens)-1 {
		return nil, invalid("path %d: %d pools for %d tokens", pd.ID, len(pd.Pools), len(pd.Tokens))
	}
	if maxHops > 0 && len(pd.Pools) > maxHops {
		return nil, invalid("path %d: %d hops exceeds max %d", pd.ID, len(pd.Pools), maxHops)
	}
	if pd.Tokens[0] != g.base.ID || pd.Tokens[len(pd.Tokens)-1] != g.base.ID {
		return nil, invalid("path %d: must start and end at base token %d", pd.ID, g.base.ID)
	}

	for i, poolID := range pd.Pools {
		pool, ok := g.pools[poolID]
		if !ok {
			return nil, invalid("path %d: unknown pool %d", pd.ID, poolID)
		}
		in, out := pd.Tokens[i], pd.Tokens[i+1]
		if in == out || !pool.Has(in) || !pool.Has(out) {
			return nil, invalid("path %d: pool %d does not trade %d -> %d", pd.ID, poolID, in, out)
		}
	}

	return &types.Path{
		ID:        pd.ID,
		TokenIDs:  append([]int(nil), pd.Tokens...),
		PoolIDs:   append([]int(nil), pd.Pools...),
		Enabled:   pd.Enabled,
		GasAmount: pd.Gas,
	}, nil
}

// BaseToken returns the token every path starts and ends with
func (g *Graph) BaseToken() *types.Token {
	return g.base
}

// Token returns a token by id
func (g *Graph) Token(id int) (*types.Token, bool) {
	t, ok := g.tokens[id]
	return t, ok
}

// TokenByAddress resolves a chain address to a token
func (g *Graph) TokenByAddress(addr common.Address) (*types.Token, bool) {
	t, ok := g.tokensByAddr[addr]
	return t, ok
}

// Pool returns a pool by id
func (g *Graph) Pool(id int) (*types.Pool, bool) {
	p, ok := g.pools[id]
	return p, ok
}

// Pools returns every pool ordered by id
func (g *Graph) Pools() []*types.Pool {
	pools := make([]*types.Pool, 0, len(g.pools))
	for _, p := range g.pools {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return pools
}

// PoolsForExchange returns the pools listed on an exchange
func (g *Graph) PoolsForExchange(exchange string) []*types.Pool {
	return g.poolsByExch[exchange]
}

// PoolForPair finds the pool on an exchange trading both tokens
func (g *Graph) PoolForPair(exchange string, a, b int) (*types.Pool, bool) {
	p, ok := g.pairs[newPairKey(exchange, a, b)]
	return p, ok
}

// ExchangeByRouter maps a router address to its exchange name
func (g *Graph) ExchangeByRouter(router common.Address) (string, bool) {
	name, ok := g.routers[router]
	return name, ok
}

// Paths returns every configured path, enabled or not
func (g *Graph) Paths() []*types.Path {
	return g.paths
}

// EnabledPaths returns the paths eligible for evaluation
func (g *Graph) EnabledPaths() []*types.Path {
	enabled := make([]*types.Path, 0, len(g.paths))
	for _, p := range g.paths {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// PathsThroughPools returns the enabled paths touching any of the given pools, ordered by id
func (g *Graph) PathsThroughPools(poolIDs []int) []*types.Path {
	seen := make(map[int]bool)
	var paths []*types.Path
	for _, poolID := range poolIDs {
		for _, p := range g.pathsByPool[poolID] {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			paths = append(paths, p)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].ID < paths[j].ID })
	return paths
}
