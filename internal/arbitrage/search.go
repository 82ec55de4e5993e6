// Package arbitrage finds profitable cyclic trades over a reserve view and
// selects a pool-disjoint subset of them for submission.
package arbitrage

import (
	"math/big"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/devlongs/mev-backrunner/internal/amm"
	"github.com/devlongs/mev-backrunner/pkg/types"
)

// ReserveReader is satisfied by reserves.View and reserves.Snapshot
type ReserveReader interface {
	Reserve(poolID, tokenID int) (*big.Int, bool)
}

// Params carries the per-evaluation chain state and thresholds.
// A nil AvailableBalance leaves the input uncapped.
type Params struct {
	GasPrice         *big.Int
	AvailableBalance *big.Int
	ReservedGas      *big.Int
	MinProfit        *big.Int
}

// FindOpportunities evaluates each enabled path against the reserve view and
// returns the profitable ones, highest net profit first.
func FindOpportunities(paths []*types.Path, view ReserveReader, params Params) []*types.Opportunity {
	var opps []*types.Opportunity

	for _, path := range paths {
		if !path.Enabled {
			continue
		}

		reservePath, ok := ReservePath(path, view)
		if !ok {
			log.Debug().Int("pathID", path.ID).Msg("Skipping path with missing reserves")
			continue
		}

		optimal := amm.OptimalCycleInput(reservePath)
		if optimal.Sign() <= 0 {
			continue
		}

		input := CapInput(optimal, params.AvailableBalance, params.ReservedGas)
		if input.Sign() <= 0 {
			continue
		}

		amounts := amm.ChainOutputs(input, reservePath)
		gross := new(big.Int).Sub(amounts[len(amounts)-1], input)

		gasCost := new(big.Int).SetUint64(path.GasAmount)
		if params.GasPrice != nil {
			gasCost.Mul(gasCost, params.GasPrice)
		} else {
			gasCost.SetInt64(0)
		}
		net := new(big.Int).Sub(gross, gasCost)

		if net.Cmp(minProfit(params.MinProfit)) <= 0 {
			continue
		}

		opps = append(opps, &types.Opportunity{
			Path:        path,
			InputAmount: input,
			Amounts:     amounts,
			GrossProfit: gross,
			GasAmount:   path.GasAmount,
			GasPrice:    params.GasPrice,
			NetProfit:   net,
		})
	}

	SortByProfit(opps)
	return opps
}

// ReservePath flattens a path into hop-ordered [in, out, in, out, ...] reserves
func ReservePath(path *types.Path, view ReserveReader) ([]*big.Int, bool) {
	if len(path.PoolIDs) == 0 || len(path.PoolIDs) != len(path.TokenIDs)-1 {
		return nil, false
	}

	reservePath := make([]*big.Int, 0, 2*len(path.PoolIDs))
	for i, poolID := range path.PoolIDs {
		in, ok := view.Reserve(poolID, path.TokenIDs[i])
		if !ok {
			return nil, false
		}
		out, ok := view.Reserve(poolID, path.TokenIDs[i+1])
		if !ok {
			return nil, false
		}
		reservePath = append(reservePath, in, out)
	}
	return reservePath, true
}

// CapInput bounds the optimal input by the funds available to the executor.
// When the balance cannot cover the optimum the whole balance is used;
// otherwise the reserved gas budget is held back.
func CapInput(optimal, balance, reservedGas *big.Int) *big.Int {
	if balance == nil {
		return new(big.Int).Set(optimal)
	}
	if balance.Cmp(optimal) < 0 {
		return new(big.Int).Set(balance)
	}

	spendable := new(big.Int).Set(balance)
	if reservedGas != nil {
		spendable.Sub(spendable, reservedGas)
	}
	if spendable.Cmp(optimal) < 0 {
		return spendable
	}
	return new(big.Int).Set(optimal)
}

// SortByProfit orders opportunities by descending net profit, keeping the
// input order for ties.
func SortByProfit(opps []*types.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].NetProfit.Cmp(opps[j].NetProfit) > 0
	})
}

// Best returns the most profitable opportunity, or nil
func Best(opps []*types.Opportunity) *types.Opportunity {
	var best *types.Opportunity
	for _, o := range opps {
		if best == nil || o.NetProfit.Cmp(best.NetProfit) > 0 {
			best = o
		}
	}
	return best
}

func minProfit(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
