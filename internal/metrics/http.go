package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// DomainServer is the domain of requests handled by the fake service.
const DomainServer = "server"

// HTTPMiddleware records one operation per handled request. The operation
// is the route pattern, e.g. /send_all/:uid, so user ids never become
// attribute values. Unmatched paths are recorded as "unmatched".
func HTTPMiddleware(r Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		op := c.FullPath()
		if op == "" {
			op = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		ctx := c.Request.Context()
		r.RecordOperation(ctx, DomainServer, op, status)
		r.RecordDuration(ctx, DomainServer, op, time.Since(start), status)
	}
}
