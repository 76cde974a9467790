package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userRolesKey = "user_roles"

// RequireRole rejects requests whose caller lacks requiredRole. Roles come from the
// auth layer in context or from the gateway's X-User-Roles header (comma separated);
// super_admin passes every check.
func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var roles []string
		if v, ok := c.Get(userRolesKey); ok {
			roles, _ = v.([]string)
		}
		if len(roles) == 0 {
			for _, role := range strings.Split(c.GetHeader("X-User-Roles"), ",") {
				if role = strings.TrimSpace(role); role != "" {
					roles = append(roles, role)
				}
			}
		}

		if len(roles) == 0 {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NO_ROLES",
					"message": "User roles not found",
				},
			})
			c.Abort()
			return
		}

		for _, role := range roles {
			if role == requiredRole || role == "super_admin" {
				c.Set(userRolesKey, roles)
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INSUFFICIENT_PERMISSIONS",
				"message": fmt.Sprintf("Required role: %s", requiredRole),
			},
		})
		c.Abort()
	}
}
