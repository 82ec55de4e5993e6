// Package metrics exposes prometheus collectors for the backrunner pipeline
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "backrunner"

// Metrics holds all collectors
type Metrics struct {
	SubmitOutcomes     *prometheus.CounterVec
	PoolSize           prometheus.Gauge
	SweepRemovals      *prometheus.CounterVec
	SweepFailures      prometheus.Counter
	Opportunities      prometheus.Counter
	Scheduled          prometheus.Counter
	Bundles            *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	SnapshotPools      prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	m.gatherer = reg
	return m
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmitOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_total",
			Help:      "Pending transactions submitted to the request pool, by outcome",
		}, []string{"outcome"}),
		PoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_size",
			Help:      "Requests currently held in the request pool",
		}),
		SweepRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_removed_total",
			Help:      "Requests removed by the validity sweep, by reason",
		}, []string{"reason"}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Validity checks that failed with a provider error",
		}),
		Opportunities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Profitable opportunities found",
		}),
		Scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_total",
			Help:      "Opportunities accepted by the conflict-free scheduler",
		}),
		Bundles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_total",
			Help:      "Bundles sent to the relay, by result",
		}, []string{"result"}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time to evaluate one batch of pooled requests",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		SnapshotPools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_pools",
			Help:      "Pools present in the latest reserve snapshot",
		}),
	}

	reg.MustRegister(
		m.SubmitOutcomes,
		m.PoolSize,
		m.SweepRemovals,
		m.SweepFailures,
		m.Opportunities,
		m.Scheduled,
		m.Bundles,
		m.EvaluationDuration,
		m.SnapshotPools,
	)
	return m
}

// Handler serves the registered collectors
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
