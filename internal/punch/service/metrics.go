package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Submissions *prometheus.CounterVec
	Rejected    prometheus.Counter
	Duration    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_punch_submissions_total",
			Help: "Valid punch submissions by final status",
		}, []string{"status"}),
		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "timekeep_punch_validation_rejected_total",
			Help: "Punch submissions rejected by validation",
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "timekeep_punch_submit_duration_seconds",
			Help:    "Synchronous ingestion latency, resolution through audit write",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
