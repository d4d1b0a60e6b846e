package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/internal/service"
)

// Audit records an entry for every mutating request that succeeds. Safe
// methods and failed requests pass through untouched. The action combines
// the singular resource name with the verb, e.g. COURSE_CREATE. Entries go
// through the async recorder so the response is never delayed by the audit
// table.
func Audit(recorder service.AuditRecorder, resource string) gin.HandlerFunc {
	prefix := strings.ToUpper(strings.TrimSuffix(resource, "s"))
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if recorder == nil || c.Writer.Status() >= 400 {
			return
		}
		var verb string
		switch c.Request.Method {
		case http.MethodPost:
			verb = "CREATE"
		case http.MethodPut, http.MethodPatch:
			verb = "UPDATE"
		case http.MethodDelete:
			verb = "DELETE"
		default:
			return
		}

		var userID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			user := claims.(*models.JWTClaims)
			userID = &user.UserID
		}
		var resourceID *string
		if id := c.Param("id"); id != "" {
			resourceID = &id
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		recorder.Record(models.AuditLog{
			UserID:     userID,
			Action:     prefix + "_" + verb,
			Resource:   resource,
			ResourceID: resourceID,
			NewValues:  body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		})
	}
}
