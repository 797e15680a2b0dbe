package jobs

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/maplecart/api/internal/services"
)

// MeteredOrderEventPublisher counts order events and observes submitted grand totals before
// handing them to the next publisher. A nil next publisher only records metrics.
type MeteredOrderEventPublisher struct {
	next        services.OrderEventPublisher
	events      *prometheus.CounterVec
	failures    *prometheus.CounterVec
	grandTotals *prometheus.HistogramVec
}

var _ services.OrderEventPublisher = (*MeteredOrderEventPublisher)(nil)

// NewMeteredOrderEventPublisher registers the order collectors on reg.
func NewMeteredOrderEventPublisher(next services.OrderEventPublisher, reg prometheus.Registerer) (*MeteredOrderEventPublisher, error) {
	if reg == nil {
		return nil, errors.New("metered order event publisher: registerer is required")
	}
	p := &MeteredOrderEventPublisher{
		next: next,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maplecart",
			Subsystem: "orders",
			Name:      "events_total",
			Help:      "Order events emitted by checkout, by type.",
		}, []string{"type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maplecart",
			Subsystem: "orders",
			Name:      "event_publish_failures_total",
			Help:      "Order events the downstream publisher rejected, by type.",
		}, []string{"type"}),
		grandTotals: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maplecart",
			Subsystem: "orders",
			Name:      "grand_total",
			Help:      "Grand total of submitted orders in major currency units.",
			Buckets:   []float64{25, 50, 100, 200, 300, 500, 1000, 2500},
		}, []string{"currency"}),
	}
	for _, c := range []prometheus.Collector{p.events, p.failures, p.grandTotals} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// PublishOrderEvent records the event and forwards it.
func (p *MeteredOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	p.events.WithLabelValues(event.Type).Inc()
	if event.Type == services.OrderEventSubmitted {
		p.grandTotals.WithLabelValues(event.Currency).Observe(float64(event.GrandTotal) / 100)
	}
	if p.next == nil {
		return nil
	}
	if err := p.next.PublishOrderEvent(ctx, event); err != nil {
		p.failures.WithLabelValues(event.Type).Inc()
		return err
	}
	return nil
}
