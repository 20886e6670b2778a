package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is shared by every queue instance; series are labelled by queue name.
type Metrics struct {
	Enqueued *prometheus.CounterVec
	Rejected *prometheus.CounterVec
	Dropped  *prometheus.CounterVec
	Handled  *prometheus.CounterVec
	Depth    *prometheus.GaugeVec
	Latency  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_queue_enqueued_total",
			Help: "Items accepted by a bounded queue",
		}, []string{"queue"}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_queue_rejected_total",
			Help: "Items rejected because the queue was full or closed",
		}, []string{"queue"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_queue_dropped_total",
			Help: "Items still queued when the drain deadline expired",
		}, []string{"queue"}),
		Handled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_queue_handled_total",
			Help: "Items handled, by result (ok, error, timeout, panic)",
		}, []string{"queue", "result"}),
		Depth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "timekeep_queue_depth",
			Help: "Items waiting in a bounded queue",
		}, []string{"queue"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timekeep_queue_item_latency_seconds",
			Help:    "Time from enqueue to handler completion",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"queue"}),
	}
}
