package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/pkg/middleware/requestid"
)

// ErrorReporter receives server errors together with request tags.
type ErrorReporter func(err error, tags map[string]string)

// ReportServerErrors forwards errors attached to 5xx responses.
func ReportServerErrors(report ErrorReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if report == nil || status < http.StatusInternalServerError || len(c.Errors) == 0 {
			return
		}
		tags := map[string]string{
			"method": c.Request.Method,
			"route":  c.FullPath(),
			"status": strconv.Itoa(status),
		}
		if id := requestid.Value(c); id != "" {
			tags["request_id"] = id
		}
		for _, ginErr := range c.Errors {
			report(ginErr.Err, tags)
		}
	}
}
