package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Evaluations *prometheus.CounterVec
	Signals     *prometheus.CounterVec
	Suppressed  *prometheus.CounterVec
	RuleErrors  *prometheus.CounterVec
	Transitions *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_anomaly_evaluations_total",
			Help: "Audit entries evaluated, by rule set",
		}, []string{"ruleset"}),
		Signals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_anomaly_signals_total",
			Help: "Signals created, by type and severity",
		}, []string{"type", "severity"}),
		Suppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_anomaly_signals_suppressed_total",
			Help: "Findings dropped because a signal with the same dedup key exists",
		}, []string{"type"}),
		RuleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_anomaly_rule_errors_total",
			Help: "Rule evaluations that failed, by type",
		}, []string{"type"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_anomaly_transitions_total",
			Help: "Operator lifecycle transitions, by target status",
		}, []string{"status"}),
	}
}
