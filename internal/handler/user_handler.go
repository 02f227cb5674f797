package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/expensetrack/expense-api/internal/authz"
	"github.com/expensetrack/expense-api/internal/models"
	"github.com/expensetrack/expense-api/internal/service"
	appErrors "github.com/expensetrack/expense-api/pkg/errors"
	"github.com/expensetrack/expense-api/pkg/response"
)

type userService interface {
	List(ctx context.Context, identity authz.Identity, filter models.UserFilter) ([]models.UserInfo, *models.Pagination, error)
	Update(ctx context.Context, identity authz.Identity, id string, req service.UpdateUserRequest, reqCtx models.RequestContext) (*models.UserInfo, error)
	ChangeRole(ctx context.Context, identity authz.Identity, id string, req service.UpdateRoleRequest, reqCtx models.RequestContext) (*models.UserInfo, error)
	Deactivate(ctx context.Context, identity authz.Identity, id string, reqCtx models.RequestContext) error
}

// UserHandler exposes the admin user management endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Description Admin listing with role and department filters
// @Tags Users
// @Produce json
// @Param role query string false "Filter by role"
// @Param department query string false "Filter by department"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.UserFilter{
		Department: c.Query("department"),
		Search:     c.Query("search"),
	}
	if raw := c.Query("role"); raw != "" {
		role := models.Role(raw)
		filter.Role = &role
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	users, pagination, err := h.service.List(c.Request.Context(), identity, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, users, pagination)
}

// Update godoc
// @Summary Update user profile
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id} [patch]
func (h *UserHandler) Update(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}

	user, err := h.service.Update(c.Request.Context(), identity, c.Param("id"), req, requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}

// ChangeRole godoc
// @Summary Change user role
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id}/role [patch]
func (h *UserHandler) ChangeRole(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid role payload"))
		return
	}

	user, err := h.service.ChangeRole(c.Request.Context(), identity, c.Param("id"), req, requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}

// Deactivate godoc
// @Summary Deactivate user
// @Description Marks the account inactive and ends all of its sessions
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *UserHandler) Deactivate(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), identity, c.Param("id"), requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "User deactivated"}, nil)
}
