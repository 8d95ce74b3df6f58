package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests that hit no registered route, keeping raw
// paths (ids, paths hit by scanners) out of the metric label set.
const unmatchedRoute = "unmatched"

// HTTPObserver records request outcomes. The metrics service implements it.
type HTTPObserver interface {
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// Metrics returns middleware that observes every request by route template.
// Websocket upgrades are skipped; the gateway tracks those connections itself.
func Metrics(observer HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if observer == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		if status == http.StatusSwitchingProtocols {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		observer.ObserveHTTPRequest(c.Request.Method, route, status, time.Since(start))
	}
}
