// Package metrics exposes Prometheus instrumentation for the evaluator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertchain_runs_total",
			Help: "Total number of evaluator runs",
		},
		[]string{"status"}, // status: ok, fail
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertchain_run_duration_seconds",
			Help:    "Wall time of one evaluator run",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertchain_fetches_total",
			Help: "Total number of indicator fetch results",
		},
		[]string{"status"}, // status: ok, fail
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertchain_fetch_duration_seconds",
			Help:    "Latency of live indicator fetches",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertchain_cache_hits_total",
			Help: "Fetch cache hits by tier",
		},
		[]string{"tier"}, // tier: run, ttl
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertchain_cache_misses_total",
			Help: "Fetch cache misses (live fetch performed)",
		},
	)

	EvalUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertchain_eval_units_total",
			Help: "Evaluation units processed per final state",
		},
		[]string{"state"}, // state: true, false, unknown
	)

	PushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertchain_pushes_total",
			Help: "Alert pushes decided by the alarm policy",
		},
	)

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertchain_dispatch_total",
			Help: "Dispatched notification messages",
		},
		[]string{"mode", "status"}, // status: ok, fail
	)

	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertchain_commit_duration_seconds",
			Help:    "Latency of state store commits",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// Serve exposes /metrics on addr. It blocks, so callers run it in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
