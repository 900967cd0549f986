package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/linkupchat/linkup/audit"
)

// Audit records mutating API requests to the audit log. Reads (GET, HEAD,
// OPTIONS) are skipped to keep the log focused on state changes.
func Audit(svc *audit.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		entry := audit.Entry{
			TraceID:    GetTraceID(c),
			Action:     c.Request.Method + " " + c.FullPath(),
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
			Detail: map[string]interface{}{
				"status": c.Writer.Status(),
				"path":   c.Request.URL.Path,
			},
		}
		if userID := GetUserID(c); userID != 0 {
			entry.UserID = &userID
		}
		if len(c.Errors) > 0 {
			entry.Error = c.Errors.String()
		}
		svc.Log(entry)
	}
}
