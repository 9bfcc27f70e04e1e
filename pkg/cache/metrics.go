package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer ("hot", "backend")
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pwa_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pwa_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheWrites tracks stored entries
	CacheWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pwa_cache_writes_total",
			Help: "Total number of cache entries written",
		},
	)

	// GenerationsDeleted tracks garbage-collected cache generations
	GenerationsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pwa_cache_generations_deleted_total",
			Help: "Total number of cache generations deleted",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pwa_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "open", "match", "put", "delete", "keys", "names", "drop"
	)
)
