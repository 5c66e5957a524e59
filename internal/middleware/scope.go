package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/helmsan/kompass/internal/pkg/errcode"
	"github.com/helmsan/kompass/internal/pkg/response"
	"github.com/helmsan/kompass/internal/pkg/scopetoken"
)

const ContextScopeKey = "scope"

// ScopeAuth verifies the bearer token and stashes the caller's retrieval
// scope on the request context.
func ScopeAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := scopetoken.ParseToken(parts[1], secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		scope := claims.Scope()
		if !scope.IsValid() {
			response.Error(c, errcode.ErrUnauthorized, "token carries no scope")
			c.Abort()
			return
		}
		c.Set(ContextScopeKey, scope)
		c.Next()
	}
}
