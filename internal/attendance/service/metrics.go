package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Mutations       *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	ShiftFallbacks  prometheus.Counter
	SweptIncomplete prometheus.Counter
	Corrections     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_attendance_mutations_total",
			Help: "Span mutations applied, by kind",
		}, []string{"kind"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeep_attendance_rejections_total",
			Help: "Punches the state machine refused, by code",
		}, []string{"code"}),
		ShiftFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "timekeep_attendance_shift_fallbacks_total",
			Help: "Checkouts computed without a shift because the lookup failed",
		}),
		SweptIncomplete: factory.NewCounter(prometheus.CounterOpts{
			Name: "timekeep_attendance_swept_incomplete_total",
			Help: "Open spans closed as incomplete by the end-of-day sweep",
		}),
		Corrections: factory.NewCounter(prometheus.CounterOpts{
			Name: "timekeep_attendance_corrections_total",
			Help: "Spans corrected through the correction workflow",
		}),
	}
}
