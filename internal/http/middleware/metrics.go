package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP collectors. The route label is the registered Gin route
// (e.g. /api/v1/chats/:chat_id/subscriptions), or "unmatched" for 404s so raw
// paths never become label values.
var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricewatcher",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Admin API requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pricewatcher",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Admin API request latency.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pricewatcher",
		Subsystem: "http",
		Name:      "requests_inflight",
		Help:      "Admin API requests being served.",
	})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pricewatcher",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "Admin API response sizes.",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 7), // 128B..512KiB
	}, []string{"method", "route"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize)
}

// Metrics instruments requests with the collectors above. Mount /metrics with
// promhttp.Handler() next to it.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		// Size is -1 when nothing was written (e.g. hijacked connections).
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}
