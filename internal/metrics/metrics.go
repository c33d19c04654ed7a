package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckIns records check-in outcomes.
type CheckIns struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCheckIns registers the check-in collectors on reg.
func NewCheckIns(reg prometheus.Registerer) *CheckIns {
	m := &CheckIns{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "checkins_total",
			Help:      "Check-in attempts by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "checkin_duration_seconds",
			Help:      "Time spent deciding a check-in.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	reg.MustRegister(m.total, m.duration)
	return m
}

// ObserveCheckIn counts one attempt.
func (m *CheckIns) ObserveCheckIn(result string, elapsed time.Duration) {
	m.total.WithLabelValues(result).Inc()
	m.duration.WithLabelValues(result).Observe(elapsed.Seconds())
}
