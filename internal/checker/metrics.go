package checker

import "github.com/prometheus/client_golang/prometheus"

var (
	// checksTotal counts per-subscription task outcomes.
	checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatcher_checks_total",
			Help: "Per-subscription check outcomes.",
		},
		[]string{"outcome"},
	)

	// notificationsTotal counts decrease notifications by delivery result.
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatcher_notifications_total",
			Help: "Price decrease notifications by delivery result.",
		},
		[]string{"result"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricewatcher_cycle_duration_seconds",
			Help:    "Wall time of one full check cycle.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	fetchInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricewatcher_fetch_inflight",
			Help: "Currently held concurrency limiter slots.",
		},
	)
)

func init() {
	prometheus.MustRegister(checksTotal, notificationsTotal, cycleDuration, fetchInflight)
}
