package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/scolahub/scolarite-api/internal/models"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

// SelfRole is a pseudo-role granting access when the route's :id parameter
// matches the caller's own user id.
const SelfRole = "SELF"

// RBAC allows the request through when the caller's role is in the allowed
// list, or when SelfRole is listed and the caller targets their own record.
func RBAC(allowed ...string) gin.HandlerFunc {
	roles := make(map[models.UserRole]struct{}, len(allowed))
	allowSelf := false
	for _, a := range allowed {
		if a == SelfRole {
			allowSelf = true
			continue
		}
		roles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		value, ok := c.Get(ContextUserKey)
		if !ok {
			abortWith(c, appErrors.ErrUnauthorized)
			return
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok {
			abortWith(c, appErrors.ErrUnauthorized)
			return
		}

		if _, ok := roles[claims.Role]; ok {
			c.Next()
			return
		}
		if allowSelf && c.Param("id") != "" && c.Param("id") == claims.UserID {
			c.Next()
			return
		}

		abortWith(c, appErrors.ErrForbidden)
	}
}

// RequireRoles is RBAC with typed roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, role := range roles {
		allowed[i] = string(role)
	}
	return RBAC(allowed...)
}
