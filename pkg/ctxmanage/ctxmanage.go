// Package ctxmanage carries the per-request trace id through the gin context.
package ctxmanage

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const TraceIDKey = "trace_id"

// GetTraceIdOfRequest returns the trace id set by middleware.Logger, or a fresh
// one if the request bypassed the middleware (tests, internal calls).
func GetTraceIdOfRequest(c *gin.Context) string {
	if v, ok := c.Get(TraceIDKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	traceId := uuid.NewString()
	c.Set(TraceIDKey, traceId)
	return traceId
}
