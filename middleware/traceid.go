package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceIDKey    = "trace_id"
	TraceIDHeader = "X-Trace-ID"

	// Caps forwarded trace IDs so a hostile client can't inflate log lines.
	maxTraceIDLen = 64
)

// TraceID tags every request with an ID that is echoed in the response and
// threaded through logs and audit rows. An upstream-supplied X-Trace-ID is
// honored so a gateway's ID survives into this service's logs.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceIDHeader)
		if id == "" || len(id) > maxTraceIDLen {
			id = uuid.NewString()
		}
		c.Set(TraceIDKey, id)
		c.Header(TraceIDHeader, id)
		c.Next()
	}
}

// GetTraceID returns the request's trace ID, or "" outside the middleware.
func GetTraceID(c *gin.Context) string {
	if v, ok := c.Get(TraceIDKey); ok {
		return v.(string)
	}
	return ""
}
