package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit logger.
type Metrics struct {
	EntriesAppended  *prometheus.CounterVec
	AppendFailures   prometheus.Counter
	AppendDuration   prometheus.Histogram
	Verifications    *prometheus.CounterVec
	SubscriberReject *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EntriesAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_audit_entries_appended_total",
			Help: "Audit entries written, by action",
		}, []string{"action"}),
		AppendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "timekeep_audit_append_failures_total",
			Help: "Audit writes that failed; every increment is a critical incident",
		}),
		AppendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "timekeep_audit_append_duration_seconds",
			Help:    "Synchronous audit write latency",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_audit_verifications_total",
			Help: "Checksum verifications by result (ok, mismatch)",
		}, []string{"result"}),
		SubscriberReject: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_audit_subscriber_rejected_total",
			Help: "Entries a subscriber queue refused",
		}, []string{"subscriber"}),
	}
}
