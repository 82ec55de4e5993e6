// Package simulator applies a pending trade to a reserve snapshot and returns
// the resulting virtual reserves as a sparse overlay.
package simulator

import (
	"fmt"
	"math/big"

	"github.com/devlongs/mev-backrunner/internal/amm"
	"github.com/devlongs/mev-backrunner/internal/reserves"
	"github.com/devlongs/mev-backrunner/pkg/types"
)

// Result is the hypothetical outcome of one trade
type Result struct {
	Delta     reserves.Delta
	Amounts   []*big.Int // amount after each hop, Amounts[0] is the input
	AmountOut *big.Int
}

// Simulate routes args.AmountIn through args' pools. The snapshot is never
// modified; every touched reserve is written to the returned delta.
func Simulate(snap reserves.Snapshot, args *types.CallArgs) (*Result, error) {
	if args == nil || len(args.PoolIDs) == 0 || len(args.PoolIDs) != len(args.TokenIDs)-1 {
		return nil, fmt.Errorf("malformed call args")
	}
	if args.AmountIn == nil || args.AmountIn.Sign() < 0 {
		return nil, fmt.Errorf("invalid input amount")
	}

	overlay := reserves.NewOverlay(reserves.View{Snapshot: snap})
	amountIn := new(big.Int).Set(args.AmountIn)
	amounts := []*big.Int{amountIn}

	for i, poolID := range args.PoolIDs {
		tokenIn, tokenOut := args.TokenIDs[i], args.TokenIDs[i+1]

		reserveIn, ok := overlay.Reserve(poolID, tokenIn)
		if !ok {
			return nil, fmt.Errorf("pool %d token %d: %w", poolID, tokenIn, reserves.ErrMissingReserve)
		}
		reserveOut, ok := overlay.Reserve(poolID, tokenOut)
		if !ok {
			return nil, fmt.Errorf("pool %d token %d: %w", poolID, tokenOut, reserves.ErrMissingReserve)
		}

		amountOut := amm.SwapOutput(amountIn, reserveIn, reserveOut)

		if err := overlay.Add(poolID, tokenIn, amountIn); err != nil {
			return nil, err
		}
		if err := overlay.Add(poolID, tokenOut, new(big.Int).Neg(amountOut)); err != nil {
			return nil, err
		}

		amounts = append(amounts, amountOut)
		amountIn = amountOut
	}

	return &Result{
		Delta:     overlay.Delta(),
		Amounts:   amounts,
		AmountOut: amountIn,
	}, nil
}
