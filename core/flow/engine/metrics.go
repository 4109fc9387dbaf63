package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts engine activity for the /metrics endpoint.
type Metrics struct {
	Turns              *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	Hops               prometheus.Histogram
	DeliveryFallbacks  prometheus.Counter
	UnknownNodes       prometheus.Counter
}

// NewMetrics registers engine metrics on the given registerer. Passing nil
// uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowbot",
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Handled conversation turns by outcome.",
		}, []string{"outcome"}),
		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowbot",
			Subsystem: "engine",
			Name:      "validation_failures_total",
			Help:      "Rejected user inputs by validation kind.",
		}, []string{"kind"}),
		Hops: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowbot",
			Subsystem: "engine",
			Name:      "advance_hops",
			Help:      "Nodes traversed per turn before pausing.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		DeliveryFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "flowbot",
			Subsystem: "engine",
			Name:      "delivery_fallbacks_total",
			Help:      "Edits that fell back to sending a new message.",
		}),
		UnknownNodes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "flowbot",
			Subsystem: "engine",
			Name:      "unknown_nodes_total",
			Help:      "Transitions into node ids missing from the graph.",
		}),
	}
}

func (m *Metrics) turn(outcome string) {
	if m != nil {
		m.Turns.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) validationFailure(kind string) {
	if m != nil {
		m.ValidationFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) hops(n int) {
	if m != nil {
		m.Hops.Observe(float64(n))
	}
}

func (m *Metrics) unknownNode() {
	if m != nil {
		m.UnknownNodes.Inc()
	}
}
