package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"docqa-rag-api/pkg/metrics"
)

// Metrics Prometheus 指标采集中间件，SSE 请求的耗时覆盖整个流
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		method := c.Request.Method

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
