package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Request kinds on the admin surface.
const (
	KindScrape = "scrape"
	KindRealm  = "realm"
	KindAdmin  = "admin"
)

// unmatched keeps 404 paths out of the route label.
const unmatchedRoute = "unmatched"

// RequestKind classifies an admin route. Prometheus scrapes are split out so
// they do not drown the operator traffic in logs or dashboards.
func RequestKind(route string) string {
	switch route {
	case "/metrics":
		return KindScrape
	case "/realm", "/realms", "/registry":
		return KindRealm
	default:
		return KindAdmin
	}
}

// AdminRequests logs and counts each admin request against the node that
// serves the realm group. Scrapes log at trace level unless they fail.
func AdminRequests(node string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		kind := RequestKind(route)
		status := c.Writer.Status()
		RecordHTTPRequest(node, kind, route, status, elapsed)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case kind == KindScrape:
			event = logger.Trace()
		default:
			event = logger.Debug()
		}
		if name := c.Query("name"); name != "" {
			event = event.Str("realm", name)
		}
		event.
			Str("node", node).
			Str("kind", kind).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Int("bytes", c.Writer.Size()).
			Msg("admin request")
	}
}
