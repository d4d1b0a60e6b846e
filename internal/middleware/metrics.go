package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scolahub/scolarite-api/internal/service"
)

// Metrics observes method, route template, status and duration for every
// request. Unmatched routes fall back to the raw path. Requests that went
// through a cache lookup also feed the hit/miss counters.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
		if hit, ok := CacheHit(c); ok {
			metrics.RecordCacheLookup(hit)
		}
	}
}
