package syncstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the sync engine. A nil *Metrics is valid and records
// nothing, so callers that don't scrape can leave Config.Metrics unset.
type Metrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CollapsedLoads *prometheus.CounterVec
	GatewayErrors  *prometheus.CounterVec
}

// NewMetrics creates and registers the sync engine collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "syncstore_cache_hits_total", Help: "Loads served from the freshness-window cache."},
			[]string{"resource"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "syncstore_cache_misses_total", Help: "Loads that required a gateway fetch."},
			[]string{"resource"},
		),
		CollapsedLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "syncstore_collapsed_loads_total", Help: "Loads that attached to an already in-flight fetch."},
			[]string{"resource"},
		),
		GatewayErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "syncstore_gateway_errors_total", Help: "Failed gateway calls by resource and operation."},
			[]string{"resource", "op"},
		),
	}
	reg.MustRegister(m.CacheHits, m.CacheMisses, m.CollapsedLoads, m.GatewayErrors)
	return m
}

func (m *Metrics) cacheHit(resource string) {
	if m != nil {
		m.CacheHits.WithLabelValues(resource).Inc()
	}
}

func (m *Metrics) cacheMiss(resource string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(resource).Inc()
	}
}

func (m *Metrics) collapsedLoad(resource string) {
	if m != nil {
		m.CollapsedLoads.WithLabelValues(resource).Inc()
	}
}

func (m *Metrics) gatewayError(resource, op string) {
	if m != nil {
		m.GatewayErrors.WithLabelValues(resource, op).Inc()
	}
}
