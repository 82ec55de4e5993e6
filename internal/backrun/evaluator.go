// Package backrun evaluates pooled requests: each pending trade is simulated
// on the current snapshot, the paths through the pools it touches are
// searched, and the merged results are scheduled into pool-disjoint bundles.
package backrun

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/devlongs/mev-backrunner/internal/arbitrage"
	"github.com/devlongs/mev-backrunner/internal/reserves"
	"github.com/devlongs/mev-backrunner/internal/simulator"
	"github.com/devlongs/mev-backrunner/pkg/types"
)

// Registry exposes the configured paths
type Registry interface {
	EnabledPaths() []*types.Path
	PathsThroughPools(poolIDs []int) []*types.Path
}

// State is everything one evaluation pass reads. It is never modified.
type State struct {
	Snapshot reserves.Snapshot
	Params   arbitrage.Params
}

// Result is the per-request outcome of a batch evaluation
type Result struct {
	Request       *types.BackrunRequest
	Opportunities []*types.Opportunity
	Duration      time.Duration
	Err           error
}

// Best returns the most profitable opportunity for the request, or nil
func (r Result) Best() *types.Opportunity {
	if len(r.Opportunities) == 0 {
		return nil
	}
	return r.Opportunities[0]
}

// Evaluator runs simulate -> search for pending requests
type Evaluator struct {
	registry Registry
	workers  int
}

// NewEvaluator creates an evaluator using up to workers goroutines per batch
func NewEvaluator(registry Registry, workers int) *Evaluator {
	if workers <= 0 {
		workers = 4
	}
	return &Evaluator{
		registry: registry,
		workers:  workers,
	}
}

// EvaluateRequest simulates the request on the snapshot and searches every
// enabled path through the pools it touches. Opportunities are returned
// highest net profit first and carry the request's hash as trigger.
func (e *Evaluator) EvaluateRequest(state State, req *types.BackrunRequest) ([]*types.Opportunity, error) {
	if req == nil || req.Args == nil {
		return nil, fmt.Errorf("request has no call args")
	}

	sim, err := simulator.Simulate(state.Snapshot, req.Args)
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", req.TxHash.Hex(), err)
	}

	paths := e.registry.PathsThroughPools(sim.Delta.Pools())
	if len(paths) == 0 {
		return nil, nil
	}

	view := reserves.View{Snapshot: state.Snapshot, Delta: sim.Delta}
	opps := arbitrage.FindOpportunities(paths, view, state.Params)

	trigger := req.TxHash
	for _, opp := range opps {
		opp.TriggerHash = &trigger
	}

	return opps, nil
}

// EvaluateBatch evaluates requests concurrently. The returned slice matches
// the order of reqs; a failure is recorded on its own Result only.
func (e *Evaluator) EvaluateBatch(ctx context.Context, state State, reqs []*types.BackrunRequest) []Result {
	results := make([]Result, len(reqs))

	g := new(errgroup.Group)
	g.SetLimit(e.workers)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i].Request = req
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}

			start := time.Now()
			opps, err := e.EvaluateRequest(state, req)
			results[i].Opportunities = opps
			results[i].Err = err
			results[i].Duration = time.Since(start)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// EvaluateBlock searches every enabled path against the snapshot alone
func (e *Evaluator) EvaluateBlock(state State) []*types.Opportunity {
	return arbitrage.FindOpportunities(e.registry.EnabledPaths(), reserves.View{Snapshot: state.Snapshot}, state.Params)
}

// Plan merges the opportunities of a batch, ranks them and keeps a
// pool-disjoint subset. It must run on a single goroutine per pass.
func Plan(results []Result, extra ...*types.Opportunity) []*types.Opportunity {
	var merged []*types.Opportunity
	for _, r := range results {
		if r.Err != nil {
			event := log.Debug().Err(r.Err)
			if r.Request != nil {
				event = event.Str("txHash", r.Request.TxHash.Hex())
			}
			event.Msg("Request evaluation failed")
			continue
		}
		merged = append(merged, r.Opportunities...)
	}
	merged = append(merged, extra...)

	arbitrage.SortByProfit(merged)
	return arbitrage.ScheduleConflictFree(merged)
}
