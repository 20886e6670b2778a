package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published   *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
	Subscribers prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_notify_published_total",
			Help: "Events handed to a channel, by channel and result",
		}, []string{"channel", "result"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_notify_dropped_total",
			Help: "Realtime deliveries dropped because a subscriber buffer was full, by event type",
		}, []string{"event"}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "timekeep_notify_subscribers",
			Help: "Connected realtime subscribers",
		}),
	}
}
