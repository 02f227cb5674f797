package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/expensetrack/expense-api/internal/models"
)

const expenseColumns = `id, user_id, amount, description, category, date, receipt_path, status, reviewed_by, reviewed_at, created_at, updated_at`

// ExpenseRepository provides database access for expense claims.
type ExpenseRepository struct {
	db *sqlx.DB
}

// NewExpenseRepository creates a new instance of ExpenseRepository.
func NewExpenseRepository(db *sqlx.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

// Create inserts a new expense claim.
func (r *ExpenseRepository) Create(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now

	const query = `INSERT INTO expenses (id, user_id, amount, description, category, date, receipt_path, status, created_at, updated_at) VALUES (:id, :user_id, :amount, :description, :category, :date, :receipt_path, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, expense); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

// FindByID returns an expense by identifier.
func (r *ExpenseRepository) FindByID(ctx context.Context, id string) (*models.Expense, error) {
	query := fmt.Sprintf(`SELECT %s FROM expenses WHERE id = $1 LIMIT 1`, expenseColumns)
	var expense models.Expense
	if err := r.db.GetContext(ctx, &expense, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find expense by id: %w", err)
	}
	return &expense, nil
}

// ListByUser returns one user's expenses, newest first.
func (r *ExpenseRepository) ListByUser(ctx context.Context, userID string) ([]models.Expense, error) {
	query := fmt.Sprintf(`SELECT %s FROM expenses WHERE user_id = $1 ORDER BY date DESC`, expenseColumns)
	var expenses []models.Expense
	if err := r.db.SelectContext(ctx, &expenses, query, userID); err != nil {
		return nil, fmt.Errorf("list expenses by user: %w", err)
	}
	return expenses, nil
}

// List returns expenses matching the filter with total count.
func (r *ExpenseRepository) List(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, int, error) {
	baseQuery := `FROM expenses WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, *filter.Category)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY date DESC LIMIT %d OFFSET %d", expenseColumns, baseQuery, pageSize, offset)

	var expenses []models.Expense
	if err := r.db.SelectContext(ctx, &expenses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	return expenses, total, nil
}

// Update rewrites the editable fields of a pending expense.
func (r *ExpenseRepository) Update(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().UTC()
	const query = `UPDATE expenses SET amount = :amount, description = :description, category = :category, date = :date, receipt_path = :receipt_path, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, expense); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return nil
}

// UpdateStatus records the review decision.
func (r *ExpenseRepository) UpdateStatus(ctx context.Context, id string, status models.ExpenseStatus, reviewerID string, reviewedAt time.Time) error {
	const query = `UPDATE expenses SET status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, reviewerID, reviewedAt); err != nil {
		return fmt.Errorf("update expense status: %w", err)
	}
	return nil
}

// Delete removes an expense claim.
func (r *ExpenseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM expenses WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

// StatsByUser aggregates the user's approved expenses per category and per
// calendar month.
func (r *ExpenseRepository) StatsByUser(ctx context.Context, userID string) (*models.ExpenseStats, error) {
	const categoryQuery = `SELECT category, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count FROM expenses WHERE user_id = $1 AND status = 'Approved' GROUP BY category ORDER BY total DESC`
	var byCategory []models.CategoryTotal
	if err := r.db.SelectContext(ctx, &byCategory, categoryQuery, userID); err != nil {
		return nil, fmt.Errorf("expense category stats: %w", err)
	}

	const monthlyQuery = `SELECT TO_CHAR(date, 'YYYY-MM') AS month, COALESCE(SUM(amount), 0) AS total FROM expenses WHERE user_id = $1 AND status = 'Approved' GROUP BY month ORDER BY month`
	var monthly []models.MonthlyTotal
	if err := r.db.SelectContext(ctx, &monthly, monthlyQuery, userID); err != nil {
		return nil, fmt.Errorf("expense monthly stats: %w", err)
	}

	stats := &models.ExpenseStats{
		ByCategory:  byCategory,
		Monthly:     monthly,
		GeneratedAt: time.Now().UTC(),
	}
	for _, c := range byCategory {
		stats.TotalApproved += c.Total
	}
	return stats, nil
}
