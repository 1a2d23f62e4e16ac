package scheduler

import "github.com/prometheus/client_golang/prometheus"

// cyclesTotal counts finished cycles by result (ok|error).
var cyclesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricewatcher_cycles_total",
		Help: "Completed check cycles by result.",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(cyclesTotal)
}
