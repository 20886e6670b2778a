package resolution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Outcomes   *prometheus.CounterVec
	LowQuality prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_resolution_outcomes_total",
			Help: "Punch resolutions by outcome (resolved, duplicate, unresolved, failed)",
		}, []string{"outcome"}),
		LowQuality: factory.NewCounter(prometheus.CounterOpts{
			Name: "timekeep_resolution_low_quality_total",
			Help: "Punches accepted below the verification quality threshold",
		}),
	}
}

func (m *Metrics) outcome(o string) {
	if m != nil {
		m.Outcomes.WithLabelValues(o).Inc()
	}
}
