package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LookupsTotal   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "uplinks_lookups_total", Help: "remote lookups by endpoint and outcome"}, []string{"endpoint", "status"})
	LookupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "uplinks_lookup_duration_seconds", Help: "remote lookup latency", Buckets: prometheus.DefBuckets}, []string{"endpoint"})
	CacheTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "uplinks_cache_total", Help: "lookup cache hits and misses"}, []string{"result"})
	EdgesTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "uplinks_edges_total", Help: "uplink edges emitted by tree level"}, []string{"level"})
	TreesTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "uplinks_trees_total", Help: "tree builds by result"}, []string{"result"})
	BreakerState   = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "uplinks_breaker_state", Help: "circuit breaker state per endpoint (0 closed, 1 open, 2 half-open)"}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(LookupsTotal, LookupDuration, CacheTotal, EdgesTotal, TreesTotal, BreakerState)
}

// Edge counts one emitted uplink line
func Edge(level int) {
	EdgesTotal.WithLabelValues(strconv.Itoa(level)).Inc()
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
