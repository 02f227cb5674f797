package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/expensetrack/expense-api/internal/authz"
	"github.com/expensetrack/expense-api/internal/models"
	"github.com/expensetrack/expense-api/internal/service"
	appErrors "github.com/expensetrack/expense-api/pkg/errors"
	"github.com/expensetrack/expense-api/pkg/response"
)

type expenseService interface {
	Submit(ctx context.Context, identity authz.Identity, req models.CreateExpenseRequest, receipt *service.ReceiptUpload, reqCtx models.RequestContext) (*models.Expense, error)
	MyExpenses(ctx context.Context, identity authz.Identity) ([]models.Expense, error)
	List(ctx context.Context, identity authz.Identity, filter models.ExpenseFilter) ([]models.Expense, *models.Pagination, error)
	Get(ctx context.Context, identity authz.Identity, id string) (*models.Expense, error)
	Update(ctx context.Context, identity authz.Identity, id string, req models.UpdateExpenseRequest, reqCtx models.RequestContext) (*models.Expense, error)
	Delete(ctx context.Context, identity authz.Identity, id string, reqCtx models.RequestContext) error
	Review(ctx context.Context, identity authz.Identity, id string, req models.UpdateExpenseStatusRequest, reqCtx models.RequestContext) (*models.Expense, error)
	Stats(ctx context.Context, identity authz.Identity) (*models.ExpenseStats, error)
	ReceiptURL(ctx context.Context, identity authz.Identity, id string) (string, error)
	OpenReceipt(ctx context.Context, id, sig string) (io.ReadCloser, string, error)
	Export(ctx context.Context, identity authz.Identity, format string) ([]byte, string, error)
}

// ExpenseHandler wires HTTP endpoints to the expense service.
type ExpenseHandler struct {
	service expenseService
}

// NewExpenseHandler creates a new handler.
func NewExpenseHandler(svc expenseService) *ExpenseHandler {
	return &ExpenseHandler{service: svc}
}

// Submit godoc
// @Summary Submit expense
// @Description File a new expense claim with an optional receipt upload
// @Tags Expenses
// @Accept mpfd
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /expenses [post]
func (h *ExpenseHandler) Submit(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	amount, err := strconv.ParseFloat(c.PostForm("amount"), 64)
	if err != nil {
		response.Error(c, appErrors.Validation(appErrors.FieldError{Field: "amount", Message: "Amount must be greater than 0"}))
		return
	}
	date, err := time.Parse(time.RFC3339, c.PostForm("date"))
	if err != nil {
		if date, err = time.Parse("2006-01-02", c.PostForm("date")); err != nil {
			response.Error(c, appErrors.Validation(appErrors.FieldError{Field: "date", Message: "Invalid date format"}))
			return
		}
	}

	req := models.CreateExpenseRequest{
		Amount:      amount,
		Description: c.PostForm("description"),
		Category:    models.ExpenseCategory(c.PostForm("category")),
		Date:        date,
	}

	var receipt *service.ReceiptUpload
	if header, err := c.FormFile("receipt"); err == nil && header != nil {
		receipt, err = service.ReceiptFromMultipart(header)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid receipt upload"))
			return
		}
		if closer, ok := receipt.Reader.(io.Closer); ok {
			defer closer.Close() //nolint:errcheck
		}
	}

	expense, err := h.service.Submit(c.Request.Context(), identity, req, receipt, requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, expense)
}

// MyExpenses godoc
// @Summary List own expenses
// @Tags Expenses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /expenses/my [get]
func (h *ExpenseHandler) MyExpenses(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	expenses, err := h.service.MyExpenses(c.Request.Context(), identity)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, expenses, nil)
}

// List godoc
// @Summary List all expenses
// @Description Manager view across every employee
// @Tags Expenses
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /expenses [get]
func (h *ExpenseHandler) List(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ExpenseFilter{
		UserID: c.Query("userId"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.ExpenseStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("category"); raw != "" {
		category := models.ExpenseCategory(raw)
		filter.Category = &category
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	expenses, pagination, err := h.service.List(c.Request.Context(), identity, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, expenses, pagination)
}

// Get godoc
// @Summary Get expense
// @Tags Expenses
// @Produce json
// @Param id path string true "Expense ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /expenses/{id} [get]
func (h *ExpenseHandler) Get(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	expense, err := h.service.Get(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, expense, nil)
}

// Update godoc
// @Summary Update expense
// @Description Edit a pending claim; owner only
// @Tags Expenses
// @Accept json
// @Produce json
// @Param id path string true "Expense ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /expenses/{id} [put]
func (h *ExpenseHandler) Update(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid expense payload"))
		return
	}

	expense, err := h.service.Update(c.Request.Context(), identity, c.Param("id"), req, requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, expense, nil)
}

// Delete godoc
// @Summary Delete expense
// @Tags Expenses
// @Produce json
// @Param id path string true "Expense ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /expenses/{id} [delete]
func (h *ExpenseHandler) Delete(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), identity, c.Param("id"), requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "Expense deleted"}, nil)
}

// Review godoc
// @Summary Approve or reject expense
// @Tags Expenses
// @Accept json
// @Produce json
// @Param id path string true "Expense ID"
// @Param payload body models.UpdateExpenseStatusRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /expenses/{id}/status [patch]
func (h *ExpenseHandler) Review(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateExpenseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	expense, err := h.service.Review(c.Request.Context(), identity, c.Param("id"), req, requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, expense, nil)
}

// Stats godoc
// @Summary Expense statistics
// @Description Caller's approved totals by category and month
// @Tags Expenses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /expenses/stats [get]
func (h *ExpenseHandler) Stats(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), identity)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, stats, nil)
}

// ReceiptLink godoc
// @Summary Signed receipt link
// @Tags Expenses
// @Produce json
// @Param id path string true "Expense ID"
// @Success 200 {object} response.Envelope
// @Router /expenses/{id}/receipt-link [get]
func (h *ExpenseHandler) ReceiptLink(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sig, err := h.service.ReceiptURL(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"sig": sig}, nil)
}

// DownloadReceipt streams the receipt referenced by a signed link. The
// signature is the credential here; no session is required.
func (h *ExpenseHandler) DownloadReceipt(c *gin.Context) {
	file, name, err := h.service.OpenReceipt(c.Request.Context(), c.Param("id"), c.Query("sig"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}

// Export godoc
// @Summary Export expense report
// @Tags Expenses
// @Produce octet-stream
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /expenses/export [get]
func (h *ExpenseHandler) Export(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	payload, contentType, err := h.service.Export(c.Request.Context(), identity, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Data(http.StatusOK, contentType, payload)
}
