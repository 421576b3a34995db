package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/backend/internal/auth"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/response"
)

const (
	// ContextPrincipal is the key for the authenticated models.Principal in gin context.
	ContextPrincipal = "principal"
)

// JWT returns a middleware that validates JWT and sets the caller principal in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextPrincipal, claims.Principal())
		c.Next()
	}
}

// Principal returns the caller set by JWT. ok is false on unauthenticated routes.
func Principal(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}

// MustPrincipal is Principal for handlers mounted behind JWT. It writes 401 and
// returns false when the principal is missing.
func MustPrincipal(c *gin.Context) (models.Principal, bool) {
	p, ok := Principal(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		c.Abort()
	}
	return p, ok
}
