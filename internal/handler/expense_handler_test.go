package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expensetrack/expense-api/internal/authz"
	"github.com/expensetrack/expense-api/internal/middleware"
	"github.com/expensetrack/expense-api/internal/models"
	"github.com/expensetrack/expense-api/internal/service"
	appErrors "github.com/expensetrack/expense-api/pkg/errors"
)

type expenseServiceMock struct {
	submitResp *models.Expense
	submitErr  error
	listResp   []models.Expense
	listErr    error
	getResp    *models.Expense
	getErr     error
	reviewResp *models.Expense
	reviewErr  error
	deleteErr  error

	lastFilter models.ExpenseFilter
	lastReview models.UpdateExpenseStatusRequest
}

func (m *expenseServiceMock) Submit(ctx context.Context, identity authz.Identity, req models.CreateExpenseRequest, receipt *service.ReceiptUpload, reqCtx models.RequestContext) (*models.Expense, error) {
	return m.submitResp, m.submitErr
}

func (m *expenseServiceMock) MyExpenses(ctx context.Context, identity authz.Identity) ([]models.Expense, error) {
	return m.listResp, m.listErr
}

func (m *expenseServiceMock) List(ctx context.Context, identity authz.Identity, filter models.ExpenseFilter) ([]models.Expense, *models.Pagination, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, nil, m.listErr
	}
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, nil
}

func (m *expenseServiceMock) Get(ctx context.Context, identity authz.Identity, id string) (*models.Expense, error) {
	return m.getResp, m.getErr
}

func (m *expenseServiceMock) Update(ctx context.Context, identity authz.Identity, id string, req models.UpdateExpenseRequest, reqCtx models.RequestContext) (*models.Expense, error) {
	return m.getResp, m.getErr
}

func (m *expenseServiceMock) Delete(ctx context.Context, identity authz.Identity, id string, reqCtx models.RequestContext) error {
	return m.deleteErr
}

func (m *expenseServiceMock) Review(ctx context.Context, identity authz.Identity, id string, req models.UpdateExpenseStatusRequest, reqCtx models.RequestContext) (*models.Expense, error) {
	m.lastReview = req
	return m.reviewResp, m.reviewErr
}

func (m *expenseServiceMock) Stats(ctx context.Context, identity authz.Identity) (*models.ExpenseStats, error) {
	return &models.ExpenseStats{}, nil
}

func (m *expenseServiceMock) ReceiptURL(ctx context.Context, identity authz.Identity, id string) (string, error) {
	return "signed", nil
}

func (m *expenseServiceMock) OpenReceipt(ctx context.Context, id, sig string) (io.ReadCloser, string, error) {
	if sig != "valid" {
		return nil, "", appErrors.ErrUnauthorized
	}
	return io.NopCloser(strings.NewReader("receipt-bytes")), "receipt.pdf", nil
}

func (m *expenseServiceMock) Export(ctx context.Context, identity authz.Identity, format string) ([]byte, string, error) {
	return []byte("id,amount\n"), "text/csv", nil
}

func withIdentity(c *gin.Context, id string, role models.Role) {
	c.Set(middleware.ContextIdentityKey, authz.Identity{ID: id, Role: role})
}

func TestExpenseHandlerListForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExpenseHandler(&expenseServiceMock{listErr: appErrors.ErrForbidden})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/expenses", nil)
	c.Request = req
	withIdentity(c, "e1", models.RoleEmployee)

	handler.List(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestExpenseHandlerListFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &expenseServiceMock{}
	handler := NewExpenseHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/expenses?status=Pending&category=Travel&userId=u2", nil)
	c.Request = req
	withIdentity(c, "m1", models.RoleManager)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastFilter.Status)
	assert.Equal(t, models.ExpensePending, *mockSvc.lastFilter.Status)
	require.NotNil(t, mockSvc.lastFilter.Category)
	assert.Equal(t, models.CategoryTravel, *mockSvc.lastFilter.Category)
	assert.Equal(t, "u2", mockSvc.lastFilter.UserID)
}

func TestExpenseHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExpenseHandler(&expenseServiceMock{getErr: appErrors.ErrNotFound})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/expenses/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	withIdentity(c, "e1", models.RoleEmployee)

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestExpenseHandlerReview(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &expenseServiceMock{reviewResp: &models.Expense{ID: "e1", Status: models.ExpenseApproved}}
	handler := NewExpenseHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPatch, "/expenses/e1/status", models.UpdateExpenseStatusRequest{Status: models.ExpenseApproved})
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	withIdentity(c, "m1", models.RoleManager)

	handler.Review(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ExpenseApproved, mockSvc.lastReview.Status)
}

func TestExpenseHandlerReviewInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExpenseHandler(&expenseServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPatch, "/expenses/e1/status", strings.NewReader(`{"status":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	withIdentity(c, "m1", models.RoleManager)

	handler.Review(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExpenseHandlerDownloadReceipt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExpenseHandler(&expenseServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/expenses/e1/receipt?sig=valid", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "e1"}}

	handler.DownloadReceipt(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "receipt-bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "receipt.pdf")
}

func TestExpenseHandlerDownloadReceiptBadSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExpenseHandler(&expenseServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/expenses/e1/receipt?sig=tampered", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "e1"}}

	handler.DownloadReceipt(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExpenseHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExpenseHandler(&expenseServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/expenses/export?format=csv", nil)
	c.Request = req
	withIdentity(c, "e1", models.RoleEmployee)

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
}

func TestExpenseHandlerMissingIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExpenseHandler(&expenseServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/expenses/my", nil)
	c.Request = req

	handler.MyExpenses(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
