package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request counts, latency and response size per route
// template, so session ids never become label values.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		method := c.Request.Method
		m.HTTPActiveRequests.WithLabelValues(method).Inc()
		start := time.Now()

		c.Next()

		m.HTTPActiveRequests.WithLabelValues(method).Dec()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		size := c.Writer.Size()
		if size < 0 {
			size = 0
		}
		prometheus.RecordHTTPRequest(m, method, path, c.Writer.Status(), time.Since(start), int64(size))
	}
}
