package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Observations processed per station and outcome (new, duplicate, stale).
	ObservationsTotal *prometheus.CounterVec

	// Collector failures per station and classified status.
	ScrapeErrorsTotal *prometheus.CounterVec

	// Retry attempts across all collectors. High retries = unstable upstream.
	ScrapeRetriesTotal prometheus.Counter

	// Fetch+parse latency per station.
	ScrapeDuration *prometheus.HistogramVec

	// Store notifications received per channel (wind_obs_insert, scraper_status_update).
	NotificationsTotal *prometheus.CounterVec

	// Listener reconnect attempts and successes. Watch for: flapping store connection.
	ListenerReconnectsTotal *prometheus.CounterVec

	// Time-range cache hit/miss split for the wind read path.
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Live websocket subscribers.
	WebsocketConnections prometheus.Gauge

	// Broadcast deliveries and failed sends (failed sends evict the subscriber).
	BroadcastsTotal            *prometheus.CounterVec
	BroadcastSendFailuresTotal prometheus.Counter

	// Rate limit denials on the API surface.
	RateLimitDeniedTotal prometheus.Counter

	cacheGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windObservationsTotal",
			Help: "Observations processed per station and outcome",
		},
		[]string{"station", "outcome"},
	)
	ScrapeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeErrorsTotal",
			Help: "Collector failures per station and classified status",
		},
		[]string{"station", "status"},
	)
	ScrapeRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scrapeRetriesTotal",
			Help: "Total number of retry attempts across all collectors",
		},
	)
	ScrapeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrapeDurationSeconds",
			Help:    "Fetch and parse latency in seconds (per station)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"station"},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeNotificationsTotal",
			Help: "Store notifications received per channel",
		},
		[]string{"channel"},
	)
	ListenerReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenerReconnectsTotal",
			Help: "Listener reconnect attempts per result (success, failure)",
		},
		[]string{"result"},
	)
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "windCacheHitsTotal",
			Help: "Time-range cache hits on the wind read path",
		},
	)
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "windCacheMissesTotal",
			Help: "Time-range cache misses on the wind read path",
		},
	)
	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocketConnections",
			Help: "Number of live websocket subscribers",
		},
	)
	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcastsTotal",
			Help: "Broadcast messages delivered per message type",
		},
		[]string{"type"},
	)
	BroadcastSendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcastSendFailuresTotal",
			Help: "Failed subscriber sends (each failure evicts the subscriber)",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration,
		ObservationsTotal, ScrapeErrorsTotal, ScrapeRetriesTotal, ScrapeDuration,
		NotificationsTotal, ListenerReconnectsTotal,
		CacheHitsTotal, CacheMissesTotal,
		WebsocketConnections, BroadcastsTotal, BroadcastSendFailuresTotal,
		RateLimitDeniedTotal,
	)
}

// CacheStatsSource exposes the totals the cache gauges report.
type CacheStatsSource interface {
	EntryCount() int
	StationCount() int
	OldestEntry() (time.Time, bool)
}

// RegisterCacheGauges registers gauges backed by the live cache. Call
// once from main after the cache is constructed.
func RegisterCacheGauges(src CacheStatsSource) {
	cacheGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "windCacheEntries",
					Help: "Total cached observations across all stations",
				},
				func() float64 { return float64(src.EntryCount()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "windCacheStations",
					Help: "Stations with cached observations",
				},
				func() float64 { return float64(src.StationCount()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "windCacheOldestAgeSeconds",
					Help: "Age of the oldest cached observation",
				},
				func() float64 {
					oldest, ok := src.OldestEntry()
					if !ok {
						return 0
					}
					return time.Since(oldest).Seconds()
				},
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
