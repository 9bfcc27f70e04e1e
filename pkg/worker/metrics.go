package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for worker operations.
var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pwa_worker_fetch_total",
		Help: "Intercepted requests by class and response source",
	}, []string{"class", "source"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pwa_worker_fetch_duration_seconds",
		Help:    "Intercepted request duration in seconds by class",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"class"})

	lifecycleState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pwa_worker_lifecycle_state",
		Help: "Current lifecycle state of each worker version (see worker.State)",
	}, []string{"static_cache"})

	installTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pwa_worker_install_total",
		Help: "Install attempts by outcome",
	}, []string{"outcome"})

	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pwa_worker_refresh_total",
		Help: "Background refresh results per URL by outcome",
	}, []string{"outcome"})
)

// Response sources for pwa_worker_fetch_total.
const (
	sourceNetwork     = "network"
	sourceCache       = "cache"
	sourceOffline     = "offline"
	sourceShell       = "shell"
	sourcePassthrough = "passthrough"
	sourceError       = "error"
)
