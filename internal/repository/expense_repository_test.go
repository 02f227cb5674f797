package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expensetrack/expense-api/internal/models"
)

func expenseRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "amount", "description", "category", "date", "receipt_path", "status", "reviewed_by", "reviewed_at", "created_at", "updated_at"}).
		AddRow("e1", "u1", 42.5, "Taxi from the airport", string(models.CategoryTravel), now, nil, string(models.ExpensePending), nil, nil, now, now)
}

func TestExpenseCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	mock.ExpectExec("INSERT INTO expenses").WillReturnResult(sqlmock.NewResult(1, 1))

	expense := &models.Expense{
		UserID:      "u1",
		Amount:      42.5,
		Description: "Taxi from the airport",
		Category:    models.CategoryTravel,
		Date:        time.Now(),
		Status:      models.ExpensePending,
	}
	err := repo.Create(context.Background(), expense)
	require.NoError(t, err)
	assert.NotEmpty(t, expense.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, amount, description, category, date, receipt_path, status, reviewed_by, reviewed_at, created_at, updated_at FROM expenses WHERE id = $1 LIMIT 1")).
		WithArgs("e1").
		WillReturnRows(expenseRows(now))

	expense, err := repo.FindByID(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "u1", expense.UserID)
	assert.Equal(t, models.ExpensePending, expense.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	mock.ExpectQuery("SELECT .* FROM expenses WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseListByUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, amount, description, category, date, receipt_path, status, reviewed_by, reviewed_at, created_at, updated_at FROM expenses WHERE user_id = $1 ORDER BY date DESC")).
		WithArgs("u1").
		WillReturnRows(expenseRows(now))

	expenses, err := repo.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseListFiltered(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	now := time.Now()
	status := models.ExpensePending
	mock.ExpectQuery("SELECT .* FROM expenses WHERE 1=1 AND status = .* ORDER BY date DESC LIMIT 20 OFFSET 0").
		WithArgs(string(status)).
		WillReturnRows(expenseRows(now))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM expenses WHERE 1=1 AND status = .*`).
		WithArgs(string(status)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	expenses, total, err := repo.List(context.Background(), models.ExpenseFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseUpdateStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	reviewedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE expenses SET status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4 WHERE id = $1")).
		WithArgs("e1", string(models.ExpenseApproved), "mgr-1", reviewedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "e1", models.ExpenseApproved, "mgr-1", reviewedAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM expenses WHERE id = $1")).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "e1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStatsByUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	mock.ExpectQuery("SELECT category, COALESCE").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"category", "total", "count"}).
			AddRow(string(models.CategoryTravel), 100.0, 2).
			AddRow(string(models.CategoryMeals), 40.0, 1))
	mock.ExpectQuery("SELECT TO_CHAR").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"month", "total"}).
			AddRow("2025-02", 60.0).
			AddRow("2025-03", 80.0))

	stats, err := repo.StatsByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 140.0, stats.TotalApproved)
	assert.Len(t, stats.ByCategory, 2)
	assert.Len(t, stats.Monthly, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
