package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/expensetrack/expense-api/internal/authz"
	"github.com/expensetrack/expense-api/internal/models"
	"github.com/expensetrack/expense-api/internal/repository"
	appErrors "github.com/expensetrack/expense-api/pkg/errors"
	"github.com/expensetrack/expense-api/pkg/export"
	"github.com/expensetrack/expense-api/pkg/storage"
)

type expenseRepository interface {
	Create(ctx context.Context, expense *models.Expense) error
	FindByID(ctx context.Context, id string) (*models.Expense, error)
	ListByUser(ctx context.Context, userID string) ([]models.Expense, error)
	List(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, int, error)
	Update(ctx context.Context, expense *models.Expense) error
	UpdateStatus(ctx context.Context, id string, status models.ExpenseStatus, reviewerID string, reviewedAt time.Time) error
	Delete(ctx context.Context, id string) error
	StatsByUser(ctx context.Context, userID string) (*models.ExpenseStats, error)
}

// ReceiptUpload carries one uploaded receipt into the service.
type ReceiptUpload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

// ExpenseConfig tunes uploads and stats caching.
type ExpenseConfig struct {
	MaxReceiptBytes int64
	AllowedMIMEs    []string
	StatsCacheTTL   time.Duration
}

// ExpenseService implements the reimbursement workflow on top of the
// authenticated identity produced by the auth core.
type ExpenseService struct {
	repo      expenseRepository
	cache     *repository.CacheRepository
	files     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	audit     *AuditService
	validator *validator.Validate
	logger    *zap.Logger
	config    ExpenseConfig
}

// NewExpenseService constructs an ExpenseService instance.
func NewExpenseService(repo expenseRepository, cache *repository.CacheRepository, files *storage.LocalStorage, signer *storage.SignedURLSigner, audit *AuditService, validate *validator.Validate, logger *zap.Logger, config ExpenseConfig) *ExpenseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.MaxReceiptBytes <= 0 {
		config.MaxReceiptBytes = 5 * 1024 * 1024
	}
	if len(config.AllowedMIMEs) == 0 {
		config.AllowedMIMEs = []string{"image/jpeg", "image/png", "application/pdf"}
	}
	if config.StatsCacheTTL <= 0 {
		config.StatsCacheTTL = 5 * time.Minute
	}
	return &ExpenseService{
		repo:      repo,
		cache:     cache,
		files:     files,
		signer:    signer,
		audit:     audit,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Submit files a new expense claim with an optional receipt attachment.
func (s *ExpenseService) Submit(ctx context.Context, identity authz.Identity, req models.CreateExpenseRequest, receipt *ReceiptUpload, reqCtx models.RequestContext) (*models.Expense, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid expense payload")
	}
	if !req.Category.Valid() {
		return nil, appErrors.Validation(appErrors.FieldError{Field: "category", Message: "Invalid category"})
	}

	expense := &models.Expense{
		ID:          uuid.NewString(),
		UserID:      identity.ID,
		Amount:      req.Amount,
		Description: req.Description,
		Category:    req.Category,
		Date:        req.Date,
		Status:      models.ExpensePending,
	}

	if receipt != nil {
		path, err := s.storeReceipt(expense.ID, receipt)
		if err != nil {
			return nil, err
		}
		expense.ReceiptPath = &path
	}

	if err := s.repo.Create(ctx, expense); err != nil {
		s.audit.Record(ctx, &identity.ID, models.AuditActionExpenseCreate, reqCtx, models.AuditFailure, map[string]interface{}{"reason": err.Error()})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create expense")
	}

	s.audit.Record(ctx, &identity.ID, models.AuditActionExpenseCreate, reqCtx, models.AuditSuccess, map[string]interface{}{
		"expense_id": expense.ID,
		"amount":     expense.Amount,
		"category":   expense.Category,
	})
	s.invalidateStats(ctx, identity.ID)

	return expense, nil
}

// MyExpenses lists the caller's own claims, newest first.
func (s *ExpenseService) MyExpenses(ctx context.Context, identity authz.Identity) ([]models.Expense, error) {
	expenses, err := s.repo.ListByUser(ctx, identity.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expenses")
	}
	return expenses, nil
}

// List returns all claims matching the filter; manager/admin only.
func (s *ExpenseService) List(ctx context.Context, identity authz.Identity, filter models.ExpenseFilter) ([]models.Expense, *models.Pagination, error) {
	if err := authz.RequireRole(identity, models.RoleManager, models.RoleAdmin); err != nil {
		return nil, nil, err
	}
	expenses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expenses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return expenses, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one claim, visible to its owner or a privileged role. An
// absent claim is NotFound; a present claim owned by someone else is
// Forbidden.
func (s *ExpenseService) Get(ctx context.Context, identity authz.Identity, id string) (*models.Expense, error) {
	expense, err := s.findExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.RequireOwnershipOrRole(identity, expense.UserID, models.RoleManager, models.RoleAdmin); err != nil {
		return nil, err
	}
	return expense, nil
}

// Update edits a claim; only the owner may edit, and only while pending.
func (s *ExpenseService) Update(ctx context.Context, identity authz.Identity, id string, req models.UpdateExpenseRequest, reqCtx models.RequestContext) (*models.Expense, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid expense payload")
	}
	if !req.Category.Valid() {
		return nil, appErrors.Validation(appErrors.FieldError{Field: "category", Message: "Invalid category"})
	}

	expense, err := s.findExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.RequireOwnershipOrRole(identity, expense.UserID); err != nil {
		return nil, err
	}
	if expense.Status != models.ExpensePending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only pending expenses can be edited")
	}

	expense.Amount = req.Amount
	expense.Description = req.Description
	expense.Category = req.Category
	expense.Date = req.Date

	if err := s.repo.Update(ctx, expense); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update expense")
	}

	s.audit.Record(ctx, &identity.ID, models.AuditActionExpenseUpdate, reqCtx, models.AuditSuccess, map[string]interface{}{"expense_id": expense.ID})
	s.invalidateStats(ctx, expense.UserID)

	return expense, nil
}

// Delete removes a pending claim; the owner or an admin may delete it.
func (s *ExpenseService) Delete(ctx context.Context, identity authz.Identity, id string, reqCtx models.RequestContext) error {
	expense, err := s.findExpense(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.RequireOwnershipOrRole(identity, expense.UserID, models.RoleAdmin); err != nil {
		return err
	}
	if expense.Status != models.ExpensePending {
		return appErrors.Clone(appErrors.ErrConflict, "only pending expenses can be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete expense")
	}
	if expense.ReceiptPath != nil && s.files != nil {
		if err := s.files.Delete(*expense.ReceiptPath); err != nil {
			s.logger.Warn("failed to delete receipt file", zap.Error(err))
		}
	}

	s.audit.Record(ctx, &identity.ID, models.AuditActionExpenseDelete, reqCtx, models.AuditSuccess, map[string]interface{}{"expense_id": id})
	s.invalidateStats(ctx, expense.UserID)

	return nil
}

// Review approves or rejects a pending claim; manager/admin only.
func (s *ExpenseService) Review(ctx context.Context, identity authz.Identity, id string, req models.UpdateExpenseStatusRequest, reqCtx models.RequestContext) (*models.Expense, error) {
	if err := authz.RequireRole(identity, models.RoleManager, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	expense, err := s.findExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if expense.Status != models.ExpensePending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "expense has already been reviewed")
	}

	reviewedAt := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, req.Status, identity.ID, reviewedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update expense status")
	}

	action := models.AuditActionExpenseApprove
	if req.Status == models.ExpenseRejected {
		action = models.AuditActionExpenseReject
	}
	s.audit.Record(ctx, &identity.ID, action, reqCtx, models.AuditSuccess, map[string]interface{}{"expense_id": id})
	s.invalidateStats(ctx, expense.UserID)

	expense.Status = req.Status
	expense.ReviewedBy = &identity.ID
	expense.ReviewedAt = &reviewedAt
	return expense, nil
}

// Stats aggregates the caller's approved spend, served from cache when warm.
func (s *ExpenseService) Stats(ctx context.Context, identity authz.Identity) (*models.ExpenseStats, error) {
	key := statsCacheKey(identity.ID)

	var cached models.ExpenseStats
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		}
	}

	stats, err := s.repo.StatsByUser(ctx, identity.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate stats")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.config.StatsCacheTTL); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}

	return stats, nil
}

// ReceiptURL issues a short-lived signed download token for the receipt of
// a claim the identity may see.
func (s *ExpenseService) ReceiptURL(ctx context.Context, identity authz.Identity, id string) (string, error) {
	expense, err := s.Get(ctx, identity, id)
	if err != nil {
		return "", err
	}
	if expense.ReceiptPath == nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "expense has no receipt")
	}
	token, _, err := s.signer.Generate(expense.ID, *expense.ReceiptPath)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign receipt url")
	}
	return token, nil
}

// OpenReceipt resolves a signed token back to the stored file.
func (s *ExpenseService) OpenReceipt(ctx context.Context, id, sig string) (io.ReadCloser, string, error) {
	expenseID, relPath, _, err := s.signer.Parse(sig)
	if err != nil || expenseID != id {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired receipt link")
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "receipt file not found")
	}
	return file, filepath.Base(relPath), nil
}

// Export renders all claims as CSV or PDF; manager/admin only.
func (s *ExpenseService) Export(ctx context.Context, identity authz.Identity, format string) ([]byte, string, error) {
	if err := authz.RequireRole(identity, models.RoleManager, models.RoleAdmin); err != nil {
		return nil, "", err
	}

	expenses, _, err := s.repo.List(ctx, models.ExpenseFilter{PageSize: 100})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expenses")
	}

	report := export.Report{
		Title:   "Expense Report",
		Headers: []string{"ID", "User", "Amount", "Category", "Date", "Status"},
	}
	var total float64
	for _, e := range expenses {
		total += e.Amount
		report.Rows = append(report.Rows, map[string]string{
			"ID":       e.ID,
			"User":     e.UserID,
			"Amount":   fmt.Sprintf("%.2f", e.Amount),
			"Category": string(e.Category),
			"Date":     e.Date.Format("2006-01-02"),
			"Status":   string(e.Status),
		})
	}
	report.Summary = []string{
		fmt.Sprintf("%d claims, %.2f total", len(report.Rows), total),
	}

	switch format {
	case "pdf":
		payload, err := export.NewPDFExporter().Render(report)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := export.NewCSVExporter().Render(report)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Validation(appErrors.FieldError{Field: "format", Message: "format must be csv or pdf"})
	}
}

func (s *ExpenseService) findExpense(ctx context.Context, id string) (*models.Expense, error) {
	expense, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load expense")
	}
	return expense, nil
}

func (s *ExpenseService) storeReceipt(expenseID string, receipt *ReceiptUpload) (string, error) {
	if receipt.Size > s.config.MaxReceiptBytes {
		return "", appErrors.Validation(appErrors.FieldError{Field: "receipt", Message: "Receipt exceeds the maximum file size"})
	}
	allowed := false
	for _, mime := range s.config.AllowedMIMEs {
		if receipt.ContentType == mime {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", appErrors.Validation(appErrors.FieldError{Field: "receipt", Message: "Invalid file type. Only JPEG, PNG and PDF are allowed."})
	}

	relPath := filepath.Join("receipts", expenseID+filepath.Ext(receipt.Filename))
	if _, err := s.files.SaveStream(relPath, receipt.Reader); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store receipt")
	}
	return relPath, nil
}

func (s *ExpenseService) invalidateStats(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey(userID)); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func statsCacheKey(userID string) string {
	return "expense_stats:" + userID
}

// ReceiptFromMultipart adapts a multipart file header into a ReceiptUpload.
func ReceiptFromMultipart(header *multipart.FileHeader) (*ReceiptUpload, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded receipt: %w", err)
	}
	return &ReceiptUpload{
		Reader:      file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}, nil
}
