// Package metrics defines and registers the Prometheus collectors exposed
// by this proxy: package-level collectors populated via promauto, a
// build-info collector registered in init, and a status-code label helper
// that reports an unset (zero) status as 200.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i18n-site/gway/certcache"
	"github.com/i18n-site/gway/connpool"
	"github.com/i18n-site/gway/proxy"
)

const namespace = "gway"

var (
	poolOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "open_connections",
		Help:      "Number of outbound HTTP/1.1 connections currently dialed per upstream address (idle or in flight).",
	}, []string{"addr"})

	poolDialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "dials_total",
		Help:      "Total outbound connections dialed per upstream address.",
	}, []string{"addr"})

	poolEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "evictions_total",
		Help:      "Total outbound connections removed from the pool because their driver observed the transport end.",
	}, []string{"addr"})

	certsLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cert",
		Name:      "loaded_total",
		Help:      "Total certificates inserted into the in-memory cache, labeled by cache key.",
	}, []string{"host"})

	certsEvictedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cert",
		Name:      "evicted_total",
		Help:      "Total certificates removed from the cache by the daily expiry sweep.",
	}, []string{"host"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "Total requests served by the proxy pipeline, labeled by response status code.",
	}, []string{"code"})
)

func init() {
	prometheus.MustRegister(prometheus.NewBuildInfoCollector())
}

// sanitizeCode collapses a status code into a metric-safe label: zero
// (meaning "not yet written") reads as 200.
func sanitizeCode(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	return strconv.Itoa(code)
}

// WirePool installs the gauge/counter hooks that make pool a source of
// metrics. Call before the pool serves any traffic.
func WirePool(pool *connpool.Pool) {
	pool.OnDial = func(addr string) {
		poolDialsTotal.WithLabelValues(addr).Inc()
		poolOpen.WithLabelValues(addr).Inc()
	}
	pool.OnEvict = func(addr string) {
		poolEvictionsTotal.WithLabelValues(addr).Inc()
		poolOpen.WithLabelValues(addr).Dec()
	}
}

// WireCache installs the counter hooks that make cache a source of metrics.
func WireCache(cache *certcache.Cache) {
	cache.OnLoad = func(host string) { certsLoadedTotal.WithLabelValues(host).Inc() }
	cache.OnEvict = func(host string) { certsEvictedTotal.WithLabelValues(host).Inc() }
}

// WirePipeline installs the counter hook that makes pipeline a source of
// metrics.
func WirePipeline(p *proxy.Pipeline) {
	p.OnServed = func(status int) { requestsTotal.WithLabelValues(sanitizeCode(status)).Inc() }
}

// Handler returns the promhttp handler to mount on the optional metrics
// listener, which the CLI's --metrics flag enables on the address set in
// the config's [metrics] block; it is never one of the three protocol
// listeners.
func Handler() http.Handler {
	return promhttp.Handler()
}
