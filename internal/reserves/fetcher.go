package reserves

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/devlongs/mev-backrunner/internal/amm"
	"github.com/devlongs/mev-backrunner/pkg/types"
)

// PairReader reads raw token0/token1 reserves of a pair
type PairReader interface {
	GetReserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error)
}

// Registry exposes the pools and token precision to fetch for
type Registry interface {
	Pools() []*types.Pool
	Token(id int) (*types.Token, bool)
}

// Fetcher builds normalized snapshots from on-chain pair state
type Fetcher struct {
	reader    PairReader
	registry  Registry
	workers   int
	byAddress map[common.Address]*types.Pool
}

// NewFetcher creates a fetcher issuing up to workers concurrent calls
func NewFetcher(reader PairReader, registry Registry, workers int) *Fetcher {
	if workers <= 0 {
		workers = 8
	}
	pools := registry.Pools()
	byAddress := make(map[common.Address]*types.Pool, len(pools))
	for _, p := range pools {
		byAddress[p.Address] = p
	}

	return &Fetcher{
		reader:    reader,
		registry:  registry,
		workers:   workers,
		byAddress: byAddress,
	}
}

// Fetch reads every registered pool. Pools whose reserves cannot be read are
// left out of the snapshot so paths through them are skipped.
func (f *Fetcher) Fetch(ctx context.Context) (Snapshot, error) {
	pools := f.registry.Pools()
	snap := make(Snapshot, len(pools))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for _, pool := range pools {
		pool := pool
		g.Go(func() error {
			r0, r1, err := f.reader.GetReserves(gctx, pool.Address)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn().
					Err(err).
					Int("pool", pool.ID).
					Str("address", pool.Address.Hex()).
					Msg("Failed to read reserves")
				return nil
			}

			mu.Lock()
			f.set(snap, pool, r0, r1)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().
		Int("pools", len(pools)).
		Int("loaded", len(snap)).
		Msg("Reserve snapshot refreshed")

	return snap, nil
}

// Apply returns a copy of snap with the reserves of the pair at addr replaced,
// as reported by a Sync event. It reports false for pairs outside the registry.
func (f *Fetcher) Apply(snap Snapshot, addr common.Address, reserve0, reserve1 *big.Int) (Snapshot, bool) {
	pool, ok := f.byAddress[addr]
	if !ok {
		return snap, false
	}

	next := snap.Clone()
	if !f.set(next, pool, reserve0, reserve1) {
		return snap, false
	}
	return next, true
}

// PoolAddresses lists the pair contracts covered by the fetcher
func (f *Fetcher) PoolAddresses() []common.Address {
	pools := f.registry.Pools()
	out := make([]common.Address, len(pools))
	for i, p := range pools {
		out[i] = p.Address
	}
	return out
}

// set stores normalized token0/token1 reserves of pool in snap
func (f *Fetcher) set(snap Snapshot, pool *types.Pool, reserve0, reserve1 *big.Int) bool {
	t0, ok0 := f.registry.Token(pool.Tokens[0])
	t1, ok1 := f.registry.Token(pool.Tokens[1])
	if !ok0 || !ok1 {
		return false
	}

	snap.Set(pool.ID, t0.ID, amm.Normalize(reserve0, t0.Decimals))
	snap.Set(pool.ID, t1.ID, amm.Normalize(reserve1, t1.Decimals))
	return true
}
