package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expensetrack/expense-api/internal/middleware"
	"github.com/expensetrack/expense-api/internal/models"
	appErrors "github.com/expensetrack/expense-api/pkg/errors"
)

type authServiceMock struct {
	registerResp *models.AuthResponse
	registerErr  error
	loginResp    *models.AuthResponse
	loginErr     error
	sessionsResp []models.SessionInfo
	changeErr    error

	endCalled     bool
	endAllCalled  bool
	lastEndToken  string
	lastLoginReq  models.LoginRequest
	changeCalled  bool
	lastChangeReq models.ChangePasswordRequest
}

func (m *authServiceMock) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	return m.registerResp, m.registerErr
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	m.lastLoginReq = req
	return m.loginResp, m.loginErr
}

func (m *authServiceMock) EndSession(ctx context.Context, token string, user *models.User, reqCtx models.RequestContext) error {
	m.endCalled = true
	m.lastEndToken = token
	return nil
}

func (m *authServiceMock) GetUserSessions(ctx context.Context, userID string) ([]models.SessionInfo, error) {
	return m.sessionsResp, nil
}

func (m *authServiceMock) EndAllUserSessions(ctx context.Context, userID string) error {
	m.endAllCalled = true
	return nil
}

func (m *authServiceMock) ChangePassword(ctx context.Context, user *models.User, req models.ChangePasswordRequest) error {
	m.changeCalled = true
	m.lastChangeReq = req
	return m.changeErr
}

func testUser() *models.User {
	return &models.User{ID: "u1", Name: "Alice Smith", Email: "alice@example.com", Role: models.RoleEmployee, Department: "Engineering", Active: true}
}

func jsonRequest(method, target string, payload interface{}) *http.Request {
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthHandlerRegister(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{
		registerResp: &models.AuthResponse{Token: "tok", User: models.UserInfo{ID: "u1"}},
	}
	handler := NewAuthHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/auth/register", models.RegisterRequest{
		Name:            "Alice Smith",
		Email:           "alice@example.com",
		Password:        "Str0ng!Pass",
		ConfirmPassword: "Str0ng!Pass",
		Department:      "Engineering",
	})

	handler.Register(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestAuthHandlerRegisterDuplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{registerErr: appErrors.ErrDuplicateEmail})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/auth/register", models.RegisterRequest{
		Name:            "Alice Smith",
		Email:           "alice@example.com",
		Password:        "Str0ng!Pass",
		ConfirmPassword: "Str0ng!Pass",
		Department:      "Engineering",
	})

	handler.Register(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{loginErr: appErrors.ErrInvalidCredentials})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/auth/login", models.LoginRequest{Email: "alice@example.com", Password: "wrong"})

	handler.Login(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLoginCapturesClientMetadata(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{loginResp: &models.AuthResponse{Token: "tok"}}
	handler := NewAuthHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := jsonRequest(http.MethodPost, "/auth/login", models.LoginRequest{Email: "alice@example.com", Password: "Str0ng!Pass"})
	req.Header.Set("User-Agent", "integration-test")
	c.Request = req

	handler.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "integration-test", mockSvc.lastLoginReq.UserAgent)
}

func TestAuthHandlerLogout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{}
	handler := NewAuthHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/logout", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, testUser())
	c.Set(middleware.ContextTokenKey, "tok-123")

	handler.Logout(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.endCalled)
	assert.Equal(t, "tok-123", mockSvc.lastEndToken)
}

func TestAuthHandlerLogoutWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/logout", nil)
	c.Request = req

	handler.Logout(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerSessions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{sessionsResp: []models.SessionInfo{{Token: "tok"}}}
	handler := NewAuthHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/auth/sessions", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, testUser())

	handler.Sessions(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthHandlerEndAllSessions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{}
	handler := NewAuthHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/sessions/end-all", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, testUser())

	handler.EndAllSessions(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.endAllCalled)
}

func TestAuthHandlerChangePasswordWrongCurrent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{changeErr: appErrors.ErrWrongPassword})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/auth/change-password", models.ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "N3w!Passw0rd",
		ConfirmPassword: "N3w!Passw0rd",
	})
	c.Set(middleware.ContextUserKey, testUser())

	handler.ChangePassword(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/auth/me", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, testUser())

	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice@example.com")
}
