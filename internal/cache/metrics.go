package cache

import "github.com/prometheus/client_golang/prometheus"

// Lookup results recorded by Metrics.
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

// Metrics counts cache lookups and invalidations. A nil *Metrics records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	invalidations prometheus.Counter
}

// NewMetrics creates the cache counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storerating_cache_requests_total",
				Help: "Store listing cache lookups by result",
			},
			[]string{"result"},
		),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storerating_cache_invalidations_total",
			Help: "Store listing namespace invalidations",
		}),
	}
	reg.MustRegister(m.requests, m.invalidations)
	return m
}

func (m *Metrics) observe(result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
}

func (m *Metrics) invalidated() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}
