package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TileRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nearmap_compare",
		Subsystem: "tiles",
		Name:      "requests_total",
		Help:      "Tile proxy requests by cache status (hit, miss, bypass, empty, error, rate_limited)",
	}, []string{"status"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nearmap_compare",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Latency of Nearmap API calls",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"endpoint"})

	CoverageLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nearmap_compare",
		Subsystem: "coverage",
		Name:      "lookups_total",
		Help:      "Coverage lookups by result (cached, fetched, error)",
	}, []string{"result"})

	RateLimitEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nearmap_compare",
		Subsystem: "upstream",
		Name:      "rate_limited_total",
		Help:      "Responses from Nearmap that signalled throttling",
	})

	PrefetchedTiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nearmap_compare",
		Subsystem: "prefetch",
		Name:      "tiles_total",
		Help:      "Tiles handled by cache warming, by outcome",
	}, []string{"outcome"})
)

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
