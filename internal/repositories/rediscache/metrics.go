package rediscache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	lookupHit   = "hit"
	lookupMiss  = "miss"
	lookupError = "error"
)

// Metrics counts promo cache lookups by result (hit, miss, error).
type Metrics struct {
	lookups *prometheus.CounterVec
}

// NewMetrics registers the lookup counter on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, errors.New("promotion cache metrics: registerer is required")
	}
	m := &Metrics{lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maplecart",
		Subsystem: "promo_cache",
		Name:      "lookups_total",
		Help:      "Promo code lookups served by the Redis cache, by result.",
	}, []string{"result"})}
	if err := reg.Register(m.lookups); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(result string) {
	if m != nil {
		m.lookups.WithLabelValues(result).Inc()
	}
}
