package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
)

const errForbidden = "Insufficient permissions"

// RequireRole rejects requests whose authenticated role ranks below min.
// Must run after Auth.
func RequireRole(min domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := domain.Role(c.GetString(CtxUserRole))
		if !role.AtLeast(min) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": errForbidden})
			return
		}
		c.Next()
	}
}
