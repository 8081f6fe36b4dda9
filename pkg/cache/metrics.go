package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks served entries by freshness state ("fresh", "stale")
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinrate_cache_hits_total",
			Help: "Total number of cache hits by freshness state",
		},
		[]string{"cache", "state"},
	)

	// CacheMisses tracks lookups that found no entry
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinrate_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// CacheErrors tracks Redis operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinrate_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "acquire", "release", "held"
	)

	// CacheEntryBytes tracks the encoded size of stored entries
	CacheEntryBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coinrate_cache_entry_bytes",
			Help:    "Size of stored cache entries in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
	)

	// Flights tracks upstream refreshes by outcome ("success", "error", "stale")
	Flights = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinrate_cache_flights_total",
			Help: "Total number of upstream refreshes by result",
		},
		[]string{"cache", "result"},
	)

	// Coalesced tracks callers that shared an in-process flight
	Coalesced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinrate_cache_coalesced_total",
			Help: "Total number of callers that shared another caller's refresh",
		},
		[]string{"cache"},
	)

	// BusyWaits tracks polls while another process held the busy marker
	BusyWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinrate_cache_busy_waits_total",
			Help: "Total number of waits on a busy marker held elsewhere",
		},
		[]string{"cache"},
	)

	// FetchDuration tracks upstream fetch latency per cache
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coinrate_cache_fetch_duration_seconds",
			Help:    "Upstream fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"cache"},
	)
)
