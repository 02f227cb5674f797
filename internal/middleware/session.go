package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/expensetrack/expense-api/internal/authz"
	"github.com/expensetrack/expense-api/internal/models"
	appErrors "github.com/expensetrack/expense-api/pkg/errors"
	"github.com/expensetrack/expense-api/pkg/response"
)

// Context keys populated by the session middleware.
const (
	ContextUserKey     = "currentUser"
	ContextIdentityKey = "identity"
	ContextTokenKey    = "sessionToken"
)

type sessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*models.User, error)
}

// Session protects routes by requiring a live, valid session token, taken
// from the Authorization header or the token cookie interchangeably.
func Session(auth sessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)

		user, err := auth.ValidateSession(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextIdentityKey, authz.IdentityOf(user))
		c.Set(ContextTokenKey, token)
		c.Next()
	}
}

// ExtractToken pulls the session token from the bearer header or cookie.
func ExtractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := c.Cookie("token"); err == nil {
		return cookie
	}
	return ""
}

// RequireRoles enforces role-based access control for routes behind Session.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ContextIdentityKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		identity := value.(authz.Identity)

		if err := authz.RequireRole(identity, roles...); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
