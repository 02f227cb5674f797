package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/expensetrack/expense-api/internal/authz"
	"github.com/expensetrack/expense-api/internal/models"
	appErrors "github.com/expensetrack/expense-api/pkg/errors"
)

type userAdminRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, id string, role models.Role) error
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type sessionRevoker interface {
	EndAllUserSessions(ctx context.Context, userID string) error
}

// UpdateUserRequest edits a user's profile fields.
type UpdateUserRequest struct {
	Name       string `json:"name" validate:"required"`
	Department string `json:"department" validate:"required"`
}

// UpdateRoleRequest changes a user's role.
type UpdateRoleRequest struct {
	Role models.Role `json:"role" validate:"required"`
}

// UserService provides the admin-facing user management surface.
type UserService struct {
	repo      userAdminRepository
	sessions  sessionRevoker
	audit     *AuditService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userAdminRepository, sessions sessionRevoker, audit *AuditService, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, sessions: sessions, audit: audit, validator: validate, logger: logger}
}

// List returns users matching the filter; admin only.
func (s *UserService) List(ctx context.Context, identity authz.Identity, filter models.UserFilter) ([]models.UserInfo, *models.Pagination, error) {
	if err := authz.RequireRole(identity, models.RoleAdmin); err != nil {
		return nil, nil, err
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	infos := make([]models.UserInfo, 0, len(users))
	for i := range users {
		infos = append(infos, users[i].Info())
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return infos, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update edits a user's profile; admin only.
func (s *UserService) Update(ctx context.Context, identity authz.Identity, id string, req UpdateUserRequest, reqCtx models.RequestContext) (*models.UserInfo, error) {
	if err := authz.RequireRole(identity, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Name = req.Name
	user.Department = req.Department

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.audit.Record(ctx, &identity.ID, models.AuditActionUserUpdate, reqCtx, models.AuditSuccess, map[string]interface{}{"target": id})

	info := user.Info()
	return &info, nil
}

// ChangeRole reassigns a user's role; admin only.
func (s *UserService) ChangeRole(ctx context.Context, identity authz.Identity, id string, req UpdateRoleRequest, reqCtx models.RequestContext) (*models.UserInfo, error) {
	if err := authz.RequireRole(identity, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Validation(appErrors.FieldError{Field: "role", Message: "unknown role"})
	}

	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateRole(ctx, id, req.Role); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change role")
	}

	s.audit.Record(ctx, &identity.ID, models.AuditActionRoleChange, reqCtx, models.AuditSuccess, map[string]interface{}{
		"target": id,
		"from":   user.Role,
		"to":     req.Role,
	})

	user.Role = req.Role
	info := user.Info()
	return &info, nil
}

// Deactivate soft-deletes a user and ends every session they own, so the
// account stops working immediately; admin only.
func (s *UserService) Deactivate(ctx context.Context, identity authz.Identity, id string, reqCtx models.RequestContext) error {
	if err := authz.RequireRole(identity, models.RoleAdmin); err != nil {
		return err
	}

	if _, err := s.findUser(ctx, id); err != nil {
		return err
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}

	if err := s.sessions.EndAllUserSessions(ctx, id); err != nil {
		s.logger.Warn("failed to end sessions for deactivated user", zap.Error(err))
	}

	s.audit.Record(ctx, &identity.ID, models.AuditActionUserDelete, reqCtx, models.AuditSuccess, map[string]interface{}{"target": id})

	return nil
}

func (s *UserService) findUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}
