package mempool

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/devlongs/mev-backrunner/pkg/types"
)

// ChainState is the live provider consulted by the validity sweep
type ChainState interface {
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	IsMined(ctx context.Context, txHash common.Hash) (bool, error)
}

// SweepOptions toggles the individual validity checks
type SweepOptions struct {
	Deadline bool
	Nonce    bool
	Mined    bool
	Balance  bool
	Workers  int
}

// Any reports whether at least one check is enabled
func (o SweepOptions) Any() bool {
	return o.Deadline || o.Nonce || o.Mined || o.Balance
}

// Reason explains why a request was swept
type Reason string

const (
	ReasonExpired             Reason = "expired"
	ReasonMined               Reason = "mined"
	ReasonStaleNonce          Reason = "stale_nonce"
	ReasonInsufficientBalance Reason = "insufficient_balance"
)

// Removal is a request dropped by the sweep
type Removal struct {
	TxHash common.Hash
	Reason Reason
}

// SweepReport summarizes one sweep. Requests whose checks failed with a
// provider error are kept and listed in Failures.
type SweepReport struct {
	Checked  int
	Removed  []Removal
	Failures map[common.Hash]error
}

// Sweep re-validates every pooled request against chain state and removes the
// ones that can no longer execute.
func (p *Pool) Sweep(ctx context.Context, chain ChainState, now time.Time, opts SweepOptions) SweepReport {
	items := p.List()
	report := SweepReport{
		Checked:  len(items),
		Failures: make(map[common.Hash]error),
	}
	if !opts.Any() || len(items) == 0 {
		return report
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(workers)

	for _, req := range items {
		req := req
		g.Go(func() error {
			reason, err := check(ctx, chain, req, now, opts)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failures[req.TxHash] = err
				log.Warn().
					Err(err).
					Str("txHash", req.TxHash.Hex()).
					Msg("Validity check failed")
			case reason != "":
				report.Removed = append(report.Removed, Removal{TxHash: req.TxHash, Reason: reason})
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(report.Removed) > 0 {
		hashes := make([]common.Hash, len(report.Removed))
		for i, r := range report.Removed {
			hashes[i] = r.TxHash
		}
		p.RemoveAll(hashes)

		log.Debug().
			Int("removed", len(report.Removed)).
			Int("remaining", p.Len()).
			Msg("Request pool swept")
	}

	return report
}

// check returns a non-empty reason when the request should be dropped
func check(ctx context.Context, chain ChainState, req *types.BackrunRequest, now time.Time, opts SweepOptions) (Reason, error) {
	if opts.Deadline {
		if deadline := requestDeadline(req); deadline != nil && deadline.Cmp(big.NewInt(now.Unix())) < 0 {
			return ReasonExpired, nil
		}
	}

	if opts.Mined {
		mined, err := chain.IsMined(ctx, req.TxHash)
		if err != nil {
			return "", fmt.Errorf("mined status: %w", err)
		}
		if mined {
			return ReasonMined, nil
		}
	}

	if opts.Nonce {
		nonce, err := chain.NonceAt(ctx, req.Sender)
		if err != nil {
			return "", fmt.Errorf("nonce: %w", err)
		}
		if nonce > req.Nonce {
			return ReasonStaleNonce, nil
		}
	}

	// Balances are compared in raw token units, which only the decoded trade carries
	trade := req.Trade
	if opts.Balance && trade != nil && trade.AmountIn != nil {
		var (
			balance *big.Int
			err     error
		)
		if trade.Native || len(trade.Path) == 0 {
			balance, err = chain.BalanceAt(ctx, req.Sender)
		} else {
			balance, err = chain.TokenBalance(ctx, trade.Path[0], req.Sender)
		}
		if err != nil {
			return "", fmt.Errorf("balance: %w", err)
		}
		if balance.Cmp(trade.AmountIn) < 0 {
			return ReasonInsufficientBalance, nil
		}
	}

	return "", nil
}

func requestDeadline(req *types.BackrunRequest) *big.Int {
	if req.Args != nil && req.Args.Deadline != nil {
		return req.Args.Deadline
	}
	if req.Trade != nil {
		return req.Trade.Deadline
	}
	return nil
}
