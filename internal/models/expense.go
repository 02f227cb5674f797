package models

import "time"

// ExpenseCategory is the closed set of reimbursable categories.
type ExpenseCategory string

const (
	CategoryTravel         ExpenseCategory = "Travel"
	CategoryMeals          ExpenseCategory = "Meals"
	CategoryAccommodation  ExpenseCategory = "Accommodation"
	CategoryOfficeSupplies ExpenseCategory = "Office Supplies"
	CategoryOther          ExpenseCategory = "Other"
)

// Valid reports whether the category belongs to the closed set.
func (c ExpenseCategory) Valid() bool {
	switch c {
	case CategoryTravel, CategoryMeals, CategoryAccommodation, CategoryOfficeSupplies, CategoryOther:
		return true
	}
	return false
}

// ExpenseStatus tracks the approval workflow state.
type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "Pending"
	ExpenseApproved ExpenseStatus = "Approved"
	ExpenseRejected ExpenseStatus = "Rejected"
)

// Expense represents a reimbursement claim stored in the expenses table.
type Expense struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	Amount      float64         `db:"amount" json:"amount"`
	Description string          `db:"description" json:"description"`
	Category    ExpenseCategory `db:"category" json:"category"`
	Date        time.Time       `db:"date" json:"date"`
	ReceiptPath *string         `db:"receipt_path" json:"receipt_path,omitempty"`
	Status      ExpenseStatus   `db:"status" json:"status"`
	ReviewedBy  *string         `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time      `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// CreateExpenseRequest is the submission payload.
type CreateExpenseRequest struct {
	Amount      float64         `json:"amount" validate:"required,gt=0"`
	Description string          `json:"description" validate:"required,min=5,max=500"`
	Category    ExpenseCategory `json:"category" validate:"required"`
	Date        time.Time       `json:"date" validate:"required"`
}

// UpdateExpenseRequest edits a pending expense.
type UpdateExpenseRequest struct {
	Amount      float64         `json:"amount" validate:"required,gt=0"`
	Description string          `json:"description" validate:"required,min=5,max=500"`
	Category    ExpenseCategory `json:"category" validate:"required"`
	Date        time.Time       `json:"date" validate:"required"`
}

// UpdateExpenseStatusRequest approves or rejects a pending expense.
type UpdateExpenseStatusRequest struct {
	Status ExpenseStatus `json:"status" validate:"required,oneof=Approved Rejected"`
}

// ExpenseFilter captures listing criteria for managers.
type ExpenseFilter struct {
	UserID   string
	Status   *ExpenseStatus
	Category *ExpenseCategory
	Page     int
	PageSize int
}

// CategoryTotal aggregates approved spend per category.
type CategoryTotal struct {
	Category ExpenseCategory `db:"category" json:"category"`
	Total    float64         `db:"total" json:"total"`
	Count    int             `db:"count" json:"count"`
}

// MonthlyTotal aggregates approved spend per calendar month.
type MonthlyTotal struct {
	Month string  `db:"month" json:"month"`
	Total float64 `db:"total" json:"total"`
}

// ExpenseStats is the aggregate view backing the dashboard charts.
type ExpenseStats struct {
	TotalApproved float64         `json:"total_approved"`
	ByCategory    []CategoryTotal `json:"by_category"`
	Monthly       []MonthlyTotal  `json:"monthly"`
	GeneratedAt   time.Time       `json:"generated_at"`
}
