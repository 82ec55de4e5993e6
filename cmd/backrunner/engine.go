package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/mev-backrunner/internal/amm"
	"github.com/devlongs/mev-backrunner/internal/arbitrage"
	"github.com/devlongs/mev-backrunner/internal/backrun"
	"github.com/devlongs/mev-backrunner/internal/classifier"
	"github.com/devlongs/mev-backrunner/internal/config"
	"github.com/devlongs/mev-backrunner/internal/dex/uniswapv2"
	"github.com/devlongs/mev-backrunner/internal/enricher"
	"github.com/devlongs/mev-backrunner/internal/eth"
	"github.com/devlongs/mev-backrunner/internal/executor"
	"github.com/devlongs/mev-backrunner/internal/graph"
	"github.com/devlongs/mev-backrunner/internal/mempool"
	"github.com/devlongs/mev-backrunner/internal/metrics"
	"github.com/devlongs/mev-backrunner/internal/output"
	"github.com/devlongs/mev-backrunner/internal/relay"
	"github.com/devlongs/mev-backrunner/internal/reserves"
	"github.com/devlongs/mev-backrunner/pkg/types"
)

const fetchWorkers = 8

// Engine wires the mempool stream into evaluation and bundle submission
type Engine struct {
	client    *eth.Client
	graph     *graph.Graph
	pool      *mempool.Pool
	fetcher   *reserves.Fetcher
	evaluator *backrun.Evaluator
	executor  *executor.Executor // nil: opportunities are only logged
	relay     *relay.Flashbots   // nil: bundles are built but not sent
	metrics   *metrics.Metrics
	logger    *output.Logger
	cfg       *config.Config

	// owned by the event loop goroutine
	block uint64
	state backrun.State
}

// NewEngine builds every component from configuration
func NewEngine(cfg *config.Config) (*Engine, error) {
	lgr := output.NewLogger(cfg.Logging)

	client, err := eth.NewClient(cfg.RPC)
	if err != nil {
		return nil, err
	}

	g, err := graph.Load(cfg.Strategy.GraphFile, graph.Options{
		BaseToken: cfg.Strategy.BaseToken,
		MaxHops:   cfg.Strategy.MaxHops,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	lgr.SetTokenResolver(g)

	cls := classifier.NewClassifier(classifier.AllDialects, cfg.Strategy.TippedRouters)
	enr := enricher.NewEnricher(g, enricher.Config{
		WhitelistedExchanges: cfg.Strategy.WhitelistedExchanges,
		BlacklistedTokens:    cfg.Strategy.BlacklistedTokens,
	})

	e := &Engine{
		client:    client,
		graph:     g,
		pool:      mempool.NewPool(cls, enr, cfg.Strategy.PoolCapacity),
		fetcher:   reserves.NewFetcher(uniswapv2.NewPairReader(client), g, fetchWorkers),
		evaluator: backrun.NewEvaluator(g, cfg.Strategy.EvalWorkers),
		metrics:   metrics.New(),
		logger:    lgr,
		cfg:       cfg,
	}

	if cfg.Executor.PrivateKey != "" && cfg.Executor.Address != (common.Address{}) {
		chainID := cfg.Executor.ChainID
		if chainID == nil {
			chainID = client.ChainID()
		}
		e.executor, err = executor.NewExecutor(executor.Config{
			Contract:   cfg.Executor.Address,
			PrivateKey: cfg.Executor.PrivateKey,
			ChainID:    chainID,
		}, g)
		if err != nil {
			client.Close()
			return nil, err
		}
		log.Info().
			Str("contract", cfg.Executor.Address.Hex()).
			Str("signer", e.executor.Address().Hex()).
			Str("chainID", chainID.String()).
			Msg("Executor configured")
	} else {
		log.Warn().Msg("No executor configured, opportunities will only be logged")
	}

	if cfg.Relay.Enabled {
		e.relay, err = relay.NewFlashbots(relay.Config{
			URL:           cfg.Relay.URL,
			SigningKey:    cfg.Relay.SigningKey,
			MaxRetries:    cfg.Relay.MaxRetries,
			SubmitTimeout: cfg.Relay.SubmitTimeout,
		})
		if err != nil {
			client.Close()
			return nil, err
		}
	}

	log.Info().
		Int("pools", len(g.Pools())).
		Int("paths", len(g.EnabledPaths())).
		Str("baseToken", g.BaseToken().Symbol).
		Msg("Instrument graph loaded")

	return e, nil
}

// Start runs the event loop until ctx is cancelled
func (e *Engine) Start(ctx context.Context) error {
	log.Info().Msg("Starting MEV Backrunner...")

	if e.cfg.Metrics.Enabled {
		go func() {
			if err := e.metrics.Serve(ctx, e.cfg.Metrics.Addr); err != nil {
				e.logger.LogError(err, "serving metrics")
			}
		}()
	}

	block, err := e.client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	e.block = block
	if err := e.refresh(ctx); err != nil {
		return err
	}

	log.Info().
		Uint64("currentBlock", e.block).
		Int("snapshotPools", len(e.state.Snapshot)).
		Msg("Backrunner initialized")

	for {
		err := e.run(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("Shutting down backrunner...")
			return ctx.Err()
		}
		e.logger.LogError(err, "subscription")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.RPC.RetryDelay):
		}
	}
}

// run subscribes to heads and pending transactions and dispatches events until
// a subscription fails. Without a websocket endpoint heads are polled and the
// mempool stream is unavailable.
func (e *Engine) run(ctx context.Context) error {
	heads := make(chan *ethtypes.Header, 16)
	txs := make(chan *ethtypes.Transaction, 1024)
	syncs := make(chan ethtypes.Log, 256)

	var headErr, txErr, syncErr <-chan error
	var poll <-chan time.Time

	headSub, err := e.client.SubscribeNewHead(ctx, heads)
	switch {
	case errors.Is(err, eth.ErrNoWebSocket):
		interval := e.cfg.Strategy.RefreshInterval
		if interval <= 0 {
			interval = 12 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		poll = ticker.C
		log.Warn().Msg("No websocket endpoint, polling for blocks without a mempool stream")
	case err != nil:
		return fmt.Errorf("subscribe heads: %w", err)
	default:
		defer headSub.Unsubscribe()
		headErr = headSub.Err()

		txSub, err := e.client.SubscribePendingTransactions(ctx, txs)
		if err != nil {
			return fmt.Errorf("subscribe pending transactions: %w", err)
		}
		defer txSub.Unsubscribe()
		txErr = txSub.Err()

		syncSub, err := e.client.SubscribeFilterLogs(ctx, uniswapv2.SyncFilter(e.fetcher.PoolAddresses()), syncs)
		if err != nil {
			return fmt.Errorf("subscribe pool syncs: %w", err)
		}
		defer syncSub.Unsubscribe()
		syncErr = syncSub.Err()
	}

	// Stats ticker (every 30 seconds)
	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-headErr:
			return fmt.Errorf("head subscription: %w", err)

		case err := <-txErr:
			return fmt.Errorf("pending transaction subscription: %w", err)

		case err := <-syncErr:
			return fmt.Errorf("pool sync subscription: %w", err)

		case <-statsTicker.C:
			e.logger.LogStats(e.pool.Len())

		case head := <-heads:
			e.onBlock(ctx, head.Number.Uint64())

		case <-poll:
			block, err := e.client.BlockNumber(ctx)
			if err != nil {
				e.logger.LogError(err, "polling block number")
				continue
			}
			if block > e.block {
				e.onBlock(ctx, block)
			}

		case tx := <-txs:
			e.onPendingTx(ctx, tx)

		case l := <-syncs:
			e.onSync(l)
		}
	}
}

// onPendingTx pools a mempool transaction and evaluates it on its own right away
func (e *Engine) onPendingTx(ctx context.Context, tx *ethtypes.Transaction) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return
	}

	outcome, req, err := e.pool.Submit(raw)
	e.metrics.SubmitOutcomes.WithLabelValues(outcome.String()).Inc()
	e.metrics.PoolSize.Set(float64(e.pool.Len()))
	if err != nil {
		log.Debug().Err(err).Str("txHash", tx.Hash().Hex()).Msg("Dropping undecodable transaction")
		return
	}
	e.logger.LogRequest(req, outcome.String())
	if req == nil {
		return
	}

	start := time.Now()
	results := e.evaluator.EvaluateBatch(ctx, e.state, []*types.BackrunRequest{req})
	e.execute(ctx, results, nil, start)
}

// onSync applies a pool's new reserves to the snapshot ahead of the next block
func (e *Engine) onSync(l ethtypes.Log) {
	if l.Removed {
		return
	}

	pair, reserve0, reserve1, err := uniswapv2.DecodeSync(l)
	if err != nil {
		log.Debug().Err(err).Msg("Ignoring undecodable Sync log")
		return
	}

	snap, ok := e.fetcher.Apply(e.state.Snapshot, pair, reserve0, reserve1)
	if !ok {
		return
	}
	e.state.Snapshot = snap
	e.metrics.SnapshotPools.Set(float64(len(snap)))

	log.Debug().
		Str("pool", pair.Hex()).
		Uint64("block", l.BlockNumber).
		Msg("Pool reserves synced")
}

// onBlock refreshes chain state, sweeps stale requests and re-evaluates the
// whole pool plus the bare snapshot for the next block
func (e *Engine) onBlock(ctx context.Context, block uint64) {
	e.block = block
	start := time.Now()

	if err := e.refresh(ctx); err != nil {
		e.logger.LogError(err, "refreshing state")
		return
	}

	if e.cfg.Sweep.Enabled {
		e.sweep(ctx)
	}

	results := e.evaluator.EvaluateBatch(ctx, e.state, e.pool.List())
	e.execute(ctx, results, e.evaluator.EvaluateBlock(e.state), start)
}

// refresh replaces the reserve snapshot and search parameters
func (e *Engine) refresh(ctx context.Context) error {
	snap, err := e.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return err
	}

	params := arbitrage.Params{
		GasPrice:    gasPrice,
		ReservedGas: e.cfg.Strategy.ReservedGas,
		MinProfit:   e.cfg.Strategy.MinProfit,
	}
	if e.executor != nil {
		params.AvailableBalance = e.availableBalance(ctx)
	}

	e.state = backrun.State{Snapshot: snap, Params: params}
	e.metrics.SnapshotPools.Set(float64(len(snap)))
	return nil
}

// availableBalance is the executor contract's base token balance, normalized.
// A failed lookup leaves the input uncapped.
func (e *Engine) availableBalance(ctx context.Context) *big.Int {
	base := e.graph.BaseToken()
	balance, err := e.client.TokenBalance(ctx, base.Address, e.cfg.Executor.Address)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read executor balance")
		return nil
	}
	return amm.Normalize(balance, base.Decimals)
}

func (e *Engine) sweep(ctx context.Context) {
	report := e.pool.Sweep(ctx, e.client, time.Now(), mempool.SweepOptions{
		Deadline: e.cfg.Sweep.Deadline,
		Nonce:    e.cfg.Sweep.Nonce,
		Mined:    e.cfg.Sweep.Mined,
		Balance:  e.cfg.Sweep.Balance,
		Workers:  e.cfg.Sweep.Workers,
	})

	for _, r := range report.Removed {
		e.metrics.SweepRemovals.WithLabelValues(string(r.Reason)).Inc()
	}
	e.metrics.SweepFailures.Add(float64(len(report.Failures)))
	e.metrics.PoolSize.Set(float64(e.pool.Len()))

	if len(report.Removed) > 0 || len(report.Failures) > 0 {
		log.Debug().
			Int("checked", report.Checked).
			Int("removed", len(report.Removed)).
			Int("failed", len(report.Failures)).
			Msg("Pool swept")
	}
}

// execute schedules the opportunities found in one pass and, when an executor
// is configured, packs them into a bundle for the next block.
func (e *Engine) execute(ctx context.Context, results []backrun.Result, extra []*types.Opportunity, start time.Time) {
	found := len(extra)
	targets := make(map[common.Hash][]byte, len(results))
	for _, r := range results {
		found += len(r.Opportunities)
		if r.Request != nil {
			targets[r.Request.TxHash] = r.Request.RawTx
		}
	}

	plan := backrun.Plan(results, extra...)

	elapsed := time.Since(start)
	e.metrics.Opportunities.Add(float64(found))
	e.metrics.Scheduled.Add(float64(len(plan)))
	e.metrics.EvaluationDuration.Observe(elapsed.Seconds())
	e.logger.LogEvaluation(e.block, len(results), found, len(plan), elapsed)

	for _, opp := range plan {
		e.logger.LogOpportunity(opp)
	}
	if len(plan) == 0 || e.executor == nil {
		return
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.executor.Address())
	if err != nil {
		e.logger.LogError(err, "fetching executor nonce")
		return
	}
	tip, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch tip cap, using fee cap")
	}

	// backruns in one bundle carry consecutive nonces
	txs, included := e.executor.BuildBundle(plan, targets, nonce, executor.Fees{GasTipCap: tip})
	if len(included) == 0 || e.relay == nil {
		return
	}

	target := e.block + 1
	resp, err := e.relay.SendBundle(ctx, relay.NewBundle(txs, target))
	hash := ""
	result := "sent"
	if err != nil {
		result = "failed"
	} else {
		hash = resp.BundleHash
	}
	e.metrics.Bundles.WithLabelValues(result).Inc()
	e.logger.LogBundle(included, hash, target, err)
}

// Close shuts down the engine
func (e *Engine) Close() {
	e.client.Close()
}
