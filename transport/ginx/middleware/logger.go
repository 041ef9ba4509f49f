package ginx

import (
	"time"

	"github.com/bang-go/collabd/telemetry/logger"
	"github.com/gin-gonic/gin"
)

// LoggerMiddleware logs every request through the shared structured logger,
// skipping the given paths (scrape and health-check endpoints would drown
// the access log otherwise).
func LoggerMiddleware(log *logger.Logger, skipPaths ...string) gin.HandlerFunc {
	skipMap := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skipMap[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if _, ok := skipMap[path]; ok && len(c.Errors) == 0 {
			return
		}

		end := time.Now()
		latency := end.Sub(start)

		if len(c.Errors) > 0 {
			for _, e := range c.Errors.Errors() {
				log.Error(c.Request.Context(), e)
			}
		} else {
			log.Info(c.Request.Context(), "access_log",
				"status", c.Writer.Status(),
				"method", c.Request.Method,
				"path", path,
				"query", query,
				"ip", c.ClientIP(),
				"user-agent", c.Request.UserAgent(),
				"cost", latency.Seconds(),
			)
		}
	}
}
