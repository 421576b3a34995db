package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/backend/internal/apperr"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/response"
)

// ErrInsufficientRole is returned when the caller's role is not allowed on a route.
var ErrInsufficientRole = apperr.Forbidden("insufficient_role", "insufficient permissions")

// RequireRole allows only principals holding one of roles. It must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := MustPrincipal(c)
		if !ok {
			return
		}
		if !slices.Contains(roles, p.Role) {
			response.Error(c, ErrInsufficientRole)
			c.Abort()
			return
		}
		c.Next()
	}
}
