package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"timekeep/pkg/platform/circuit"
)

// Metrics counts pipeline outcomes and breaker transitions per dependency.
type Metrics struct {
	Outcomes    *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	BreakerOpen *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_dependency_calls_total",
			Help: "Dependency calls by outcome",
		}, []string{"dependency", "outcome"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_circuit_transitions_total",
			Help: "Circuit breaker state transitions",
		}, []string{"dependency", "from", "to"}),
		BreakerOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "timekeep_circuit_open",
			Help: "1 while the dependency's circuit is open",
		}, []string{"dependency"}),
	}
}

func (m *Metrics) observe(dependency, outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(dependency, outcome).Inc()
}

// BreakerHook returns a circuit.WithStateChangeHook callback that records
// transitions.
func (m *Metrics) BreakerHook() func(name string, from, to circuit.State) {
	return func(name string, from, to circuit.State) {
		if m == nil {
			return
		}
		m.Transitions.WithLabelValues(name, from.String(), to.String()).Inc()
		if to == circuit.StateOpen {
			m.BreakerOpen.WithLabelValues(name).Set(1)
		} else {
			m.BreakerOpen.WithLabelValues(name).Set(0)
		}
	}
}
