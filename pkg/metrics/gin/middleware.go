package gin

import (
	"strconv"
	"time"

	"github.com/keepsakehq/keepsake/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// PrometheusMiddleware records per-request metrics labeled by the registered
// route pattern, so /api/stories/:id/assets stays one series regardless of
// how many stories exist. Requests that match no route share an "unmatched"
// label to keep probe scans from minting series.
func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordRequest(serviceName, c.Request.Method+" "+route, status, time.Since(start))
	}
}
