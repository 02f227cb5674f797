package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/expensetrack/expense-api/internal/authz"
	"github.com/expensetrack/expense-api/internal/middleware"
	"github.com/expensetrack/expense-api/internal/models"
)

func userFromContext(c *gin.Context) *models.User {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

func identityFromContext(c *gin.Context) (authz.Identity, bool) {
	value, exists := c.Get(middleware.ContextIdentityKey)
	if !exists {
		return authz.Identity{}, false
	}
	identity, ok := value.(authz.Identity)
	return identity, ok
}

func tokenFromContext(c *gin.Context) string {
	value, exists := c.Get(middleware.ContextTokenKey)
	if !exists {
		return ""
	}
	token, ok := value.(string)
	if !ok {
		return ""
	}
	return token
}

func requestContext(c *gin.Context) models.RequestContext {
	return models.RequestContext{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}
