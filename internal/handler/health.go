package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// Health returns a JSON health check response with one entry per check.
// Never exposes credentials or internals.
func Health(checks map[string]Check) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		body := gin.H{}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				body[name] = "error"
				status = http.StatusServiceUnavailable
				continue
			}
			body[name] = "connected"
		}
		body["ok"] = status == http.StatusOK
		c.JSON(status, body)
	}
}
