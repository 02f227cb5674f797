package models

import "time"

// AuditAction constants represent the security-relevant actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionLoginFailed    = "LOGIN_FAILED"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionExpenseCreate  = "EXPENSE_CREATE"
	AuditActionExpenseUpdate  = "EXPENSE_UPDATE"
	AuditActionExpenseDelete  = "EXPENSE_DELETE"
	AuditActionExpenseApprove = "EXPENSE_APPROVE"
	AuditActionExpenseReject  = "EXPENSE_REJECT"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionRoleChange     = "ROLE_CHANGE"
)

// AuditStatus marks the outcome of the audited action.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "SUCCESS"
	AuditFailure AuditStatus = "FAILURE"
)

// AuditLog represents one append-only audit trail record. UserID is nil for
// events with no resolvable actor, e.g. a failed login against an unknown
// email. Records are never updated or deleted by the application.
type AuditLog struct {
	ID        string      `db:"id" json:"id"`
	UserID    *string     `db:"user_id" json:"user_id,omitempty"`
	Action    string      `db:"action" json:"action"`
	IPAddress string      `db:"ip_address" json:"ip_address"`
	UserAgent string      `db:"user_agent" json:"user_agent"`
	Status    AuditStatus `db:"status" json:"status"`
	Details   []byte      `db:"details" json:"details,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
