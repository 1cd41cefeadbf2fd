package middleware

import (
	"net/http"

	"expense_ingest/internal/utils"

	"github.com/gin-gonic/gin"
)

// RoleMiddleware creates a middleware to check for specific token roles
func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get(AuthRoleKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Role not found in token"})
			return
		}

		role, ok := roleVal.(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Invalid role type in token"})
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "You do not have permission to access this resource"})
	}
}

// AuthenticatedMiddleware rejects anonymous tokens.
func AuthenticatedMiddleware() gin.HandlerFunc {
	return RoleMiddleware(utils.RoleAuthenticated)
}
