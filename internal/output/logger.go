package output

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/mev-backrunner/internal/config"
	"github.com/devlongs/mev-backrunner/pkg/types"
)

// TokenResolver names tokens in log lines
type TokenResolver interface {
	Token(id int) (*types.Token, bool)
}

// Logger handles output formatting for backrun activity
type Logger struct {
	mu     sync.Mutex
	stats  *Stats
	tokens TokenResolver
}

// Stats tracks backrunner statistics
type Stats struct {
	RequestsSeen   uint64
	RequestsPooled uint64
	Evaluations    uint64
	Opportunities  uint64
	BundlesSent    uint64
	BundlesFailed  uint64
	TotalNetProfit *big.Int
	StartTime      time.Time
}

// NewLogger configures the global zerolog logger and returns a stats logger
func NewLogger(cfg config.LoggingConfig) *Logger {
	// Configure zerolog
	switch cfg.Format {
	case "json":
		// Default JSON output
	case "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	// Set log level
	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}

	return &Logger{
		stats: &Stats{
			TotalNetProfit: big.NewInt(0),
			StartTime:      time.Now(),
		},
	}
}

// SetTokenResolver lets path strings use token symbols instead of ids
func (l *Logger) SetTokenResolver(r TokenResolver) {
	l.mu.Lock()
	l.tokens = r
	l.mu.Unlock()
}

// LogRequest records a pending transaction and, when pooled, logs it at debug level
func (l *Logger) LogRequest(req *types.BackrunRequest, outcome string) {
	l.mu.Lock()
	l.stats.RequestsSeen++
	if req != nil {
		l.stats.RequestsPooled++
	}
	l.mu.Unlock()

	if req == nil {
		return
	}
	event := log.Debug().
		Str("txHash", req.TxHash.Hex()).
		Str("sender", req.Sender.Hex()).
		Str("outcome", outcome)
	if req.Args != nil {
		event = event.
			Str("exchange", req.Args.Exchange).
			Int("hops", len(req.Args.PoolIDs))
	}
	if req.Trade != nil {
		event = event.Str("method", req.Trade.Method)
	}
	event.Msg("Request pooled")
}

// LogEvaluation logs the outcome of one evaluation pass
func (l *Logger) LogEvaluation(block uint64, requests, opportunities, scheduled int, duration time.Duration) {
	l.mu.Lock()
	l.stats.Evaluations++
	l.stats.Opportunities += uint64(opportunities)
	l.mu.Unlock()

	event := log.Debug()
	if scheduled > 0 {
		event = log.Info()
	}
	event.
		Uint64("block", block).
		Int("requests", requests).
		Int("opportunities", opportunities).
		Int("scheduled", scheduled).
		Dur("duration", duration).
		Msg("Evaluation complete")
}

// LogOpportunity logs a scheduled opportunity
func (l *Logger) LogOpportunity(opp *types.Opportunity) {
	trigger := "block"
	if opp.TriggerHash != nil {
		trigger = opp.TriggerHash.Hex()
	}

	log.Info().
		Str("trigger", trigger).
		Int("pathID", opp.Path.ID).
		Str("path", l.buildPathString(opp.Path)).
		Int("hops", opp.Path.Hops()).
		Str("inputETH", weiToEther(opp.InputAmount)).
		Str("grossProfitETH", weiToEther(opp.GrossProfit)).
		Str("netProfitETH", weiToEther(opp.NetProfit)).
		Uint64("gas", opp.GasAmount).
		Msg("OPPORTUNITY SCHEDULED")
}

// LogBundle records a relay submission of one bundle carrying the given
// opportunities
func (l *Logger) LogBundle(opps []*types.Opportunity, bundleHash string, block uint64, err error) {
	netProfit := new(big.Int)
	txCount := 0
	for _, opp := range opps {
		if opp.NetProfit != nil {
			netProfit.Add(netProfit, opp.NetProfit)
		}
		txCount += len(opp.BackrunTxs)
	}

	l.mu.Lock()
	if err != nil {
		l.stats.BundlesFailed++
	} else {
		l.stats.BundlesSent++
		l.stats.TotalNetProfit.Add(l.stats.TotalNetProfit, netProfit)
	}
	l.mu.Unlock()

	if err != nil {
		log.Error().
			Err(err).
			Int("backruns", len(opps)).
			Uint64("block", block).
			Msg("Bundle submission failed")
		return
	}

	log.Info().
		Str("bundleHash", bundleHash).
		Int("backruns", len(opps)).
		Uint64("block", block).
		Int("txCount", txCount).
		Str("netProfitETH", weiToEther(netProfit)).
		Msg("Bundle sent")
}

// LogStats logs current statistics
func (l *Logger) LogStats(poolSize int) {
	l.mu.Lock()
	s := *l.stats
	total := weiToEther(l.stats.TotalNetProfit)
	l.mu.Unlock()

	elapsed := time.Since(s.StartTime)

	log.Info().
		Uint64("requestsSeen", s.RequestsSeen).
		Uint64("requestsPooled", s.RequestsPooled).
		Int("poolSize", poolSize).
		Uint64("evaluations", s.Evaluations).
		Uint64("opportunities", s.Opportunities).
		Uint64("bundlesSent", s.BundlesSent).
		Uint64("bundlesFailed", s.BundlesFailed).
		Str("totalNetProfit", total+" ETH").
		Dur("uptime", elapsed).
		Msg("Backrunner Stats")
}

// LogError logs an error
func (l *Logger) LogError(err error, context string) {
	log.Error().
		Err(err).
		Str("context", context).
		Msg("Error occurred")
}

// GetStats returns a copy of the current statistics
func (l *Logger) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := *l.stats
	s.TotalNetProfit = new(big.Int).Set(l.stats.TotalNetProfit)
	return s
}

// weiToEther converts wei to ether string with 6 decimal places
func weiToEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	// 1 ETH = 10^18 wei
	ether := new(big.Float).SetInt(wei)
	divisor := new(big.Float).SetInt(big.NewInt(1e18))
	ether.Quo(ether, divisor)

	return fmt.Sprintf("%.6f", ether)
}

// buildPathString creates a human-readable path string showing token flow
func (l *Logger) buildPathString(path *types.Path) string {
	l.mu.Lock()
	tokens := l.tokens
	l.mu.Unlock()

	names := make([]string, len(path.TokenIDs))
	for i, id := range path.TokenIDs {
		names[i] = strconv.Itoa(id)
		if tokens == nil {
			continue
		}
		if tok, ok := tokens.Token(id); ok && tok.Symbol != "" {
			names[i] = tok.Symbol
		}
	}
	return strings.Join(names, " -> ")
}
