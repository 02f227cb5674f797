package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/expensetrack/expense-api/internal/models"
	"github.com/expensetrack/expense-api/internal/session"
	appErrors "github.com/expensetrack/expense-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	JWTSecret   string
	TokenTTL    time.Duration
	IdleTimeout time.Duration
	Issuer      string
}

// AuthService owns the session lifecycle: it issues signed tokens, tracks
// them in the session store, validates them with the dual expiry rules
// (signed TTL plus sliding idle window), and revokes them.
type AuthService struct {
	users     authUserRepository
	sessions  session.Store
	audit     *AuditService
	policy    *PasswordPolicy
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    AuthConfig

	// now is swapped out by tests that need to move the clock.
	now func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, sessions session.Store, audit *AuditService, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 24 * time.Hour
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 24 * time.Hour
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		audit:     audit,
		policy:    NewPasswordPolicy(),
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		config:    config,
		now:       time.Now,
	}
}

// Register creates a new account and logs the user straight in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	role := req.Role
	if role == "" {
		role = models.RoleEmployee
	}
	if !role.Valid() {
		return nil, appErrors.Validation(appErrors.FieldError{Field: "role", Message: "unknown role"})
	}

	if violations := s.policy.Validate(req.Name, req.Email, req.Password, req.ConfirmPassword); len(violations) > 0 {
		return nil, appErrors.Validation(violations...)
	}

	reqCtx := models.RequestContext{IP: req.IP, UserAgent: req.UserAgent}

	existing, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if existing != nil {
		s.audit.Record(ctx, &existing.ID, models.AuditActionUserCreate, reqCtx, models.AuditFailure, map[string]interface{}{"reason": "Email already exists"})
		return nil, appErrors.ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := s.now().UTC()
	user := &models.User{
		Name:               req.Name,
		Email:              req.Email,
		PasswordHash:       string(hash),
		Role:               role,
		Department:         req.Department,
		Active:             true,
		LastPasswordChange: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	token, err := s.createSession(ctx, user, reqCtx)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &user.ID, models.AuditActionUserCreate, reqCtx, models.AuditSuccess, nil)

	return &models.AuthResponse{Token: token, User: user.Info()}, nil
}

// Login authenticates a user and issues a fresh session token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	reqCtx := models.RequestContext{IP: req.IP, UserAgent: req.UserAgent}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.audit.Record(ctx, nil, models.AuditActionLoginFailed, reqCtx, models.AuditFailure, map[string]interface{}{"reason": "User not found"})
			s.metrics.RecordLoginFailure()
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.Active {
		s.audit.Record(ctx, &user.ID, models.AuditActionLoginFailed, reqCtx, models.AuditFailure, map[string]interface{}{"reason": "Account deactivated"})
		s.metrics.RecordLoginFailure()
		return nil, appErrors.ErrAccountDeactivated
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.audit.Record(ctx, &user.ID, models.AuditActionLoginFailed, reqCtx, models.AuditFailure, map[string]interface{}{"reason": "Invalid password"})
		s.metrics.RecordLoginFailure()
		return nil, appErrors.ErrInvalidCredentials
	}

	token, err := s.createSession(ctx, user, reqCtx)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{Token: token, User: user.Info()}, nil
}

// createSession signs a token for the user and registers it in the session
// table. Each login gets its own independently revocable entry.
func (s *AuthService) createSession(ctx context.Context, user *models.User, reqCtx models.RequestContext) (string, error) {
	token, err := s.signToken(user.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign session token")
	}

	entry := &models.Session{
		Token:        token,
		UserID:       user.ID,
		LastActivity: s.now().UTC(),
		IPAddress:    reqCtx.IP,
		UserAgent:    reqCtx.UserAgent,
	}
	if err := s.sessions.Put(ctx, entry); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session")
	}

	s.audit.Record(ctx, &user.ID, models.AuditActionLogin, reqCtx, models.AuditSuccess, nil)
	s.metrics.RecordSessionCreated()

	return token, nil
}

// ValidateSession checks a presented token against the session table and the
// token signature, refreshes the idle window, and resolves the owning user.
// An idle-expired entry is evicted as a side effect, so a second attempt on
// the same token reports an invalid session rather than an expired one.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, appErrors.ErrNoToken
	}

	entry, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, appErrors.ErrInvalidSession
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	now := s.now().UTC()
	if now.Sub(entry.LastActivity) > s.config.IdleTimeout {
		s.evict(ctx, token)
		return nil, appErrors.ErrSessionExpired
	}

	claims, err := s.parseToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// signed expiry elapsed; the table entry is dead weight now
			s.evict(ctx, token)
			return nil, appErrors.ErrSessionExpired
		}
		return nil, appErrors.ErrInvalidSession
	}

	if err := s.sessions.Touch(ctx, token, now); err != nil && !errors.Is(err, session.ErrNotFound) {
		s.logger.Warn("failed to refresh session activity", zap.Error(err))
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.ErrAccountDeactivated
	}

	return user, nil
}

// EndSession removes the token from the table. Removal is idempotent; the
// logout audit entry is only written when a user context is available.
func (s *AuthService) EndSession(ctx context.Context, token string, user *models.User, reqCtx models.RequestContext) error {
	if token == "" {
		return nil
	}
	removed, err := s.sessions.Delete(ctx, token)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	if removed {
		s.metrics.RecordSessionsEnded(1)
	}

	if user != nil {
		s.audit.Record(ctx, &user.ID, models.AuditActionLogout, reqCtx, models.AuditSuccess, nil)
	}
	return nil
}

// GetUserSessions returns the caller's live sessions, never anyone else's.
func (s *AuthService) GetUserSessions(ctx context.Context, userID string) ([]models.SessionInfo, error) {
	entries, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	infos := make([]models.SessionInfo, 0, len(entries))
	for i := range entries {
		infos = append(infos, entries[i].Info())
	}
	return infos, nil
}

// EndAllUserSessions removes every session owned by the user. Used after a
// password change, on "log out everywhere", and on account deactivation.
func (s *AuthService) EndAllUserSessions(ctx context.Context, userID string) error {
	removed, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end sessions")
	}
	s.metrics.RecordSessionsEnded(removed)
	return nil
}

// ChangePassword verifies the current password, applies the policy to the
// new one, swaps the hash, and invalidates every existing session so a
// credential change leaves no stale logins behind.
func (s *AuthService) ChangePassword(ctx context.Context, user *models.User, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	reqCtx := models.RequestContext{IP: req.IP, UserAgent: req.UserAgent}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		s.audit.Record(ctx, &user.ID, models.AuditActionPasswordChange, reqCtx, models.AuditFailure, map[string]interface{}{"reason": "Current password incorrect"})
		return appErrors.ErrWrongPassword
	}

	if violations := s.policy.Validate(user.Name, user.Email, req.NewPassword, req.ConfirmPassword); len(violations) > 0 {
		return appErrors.Validation(violations...)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(hash), s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if err := s.EndAllUserSessions(ctx, user.ID); err != nil {
		s.logger.Warn("failed to end sessions after password change", zap.Error(err))
	}

	s.audit.Record(ctx, &user.ID, models.AuditActionPasswordChange, reqCtx, models.AuditSuccess, nil)

	return nil
}

func (s *AuthService) evict(ctx context.Context, token string) {
	removed, err := s.sessions.Delete(ctx, token)
	if err != nil {
		s.logger.Warn("failed to evict session", zap.Error(err))
		return
	}
	if removed {
		s.metrics.RecordSessionsEnded(1)
	}
}

func (s *AuthService) signToken(userID string) (string, error) {
	issuedAt := s.now().UTC()
	claims := &models.SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ID:        newTokenID(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// newTokenID gives every token a random jti so two logins by the same user
// in the same second still produce distinct, independently revocable tokens.
func newTokenID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

func (s *AuthService) parseToken(tokenString string) (*models.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
