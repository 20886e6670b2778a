package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Polls   *prometheus.CounterVec
	Records *prometheus.CounterVec
	Online  *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Polls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_device_polls_total",
			Help: "Device polls, by result",
		}, []string{"result"}),
		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_device_records_total",
			Help: "Records read from devices, by outcome",
		}, []string{"outcome"}),
		Online: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "timekeep_device_online",
			Help: "1 when the device answered its last poll",
		}, []string{"device"}),
	}
}
