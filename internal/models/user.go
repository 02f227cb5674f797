package models

import "time"

// Role represents the closed set of roles understood by the RBAC system.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID                 string    `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Email              string    `db:"email" json:"email"`
	PasswordHash       string    `db:"password_hash" json:"-"`
	Role               Role      `db:"role" json:"role"`
	Department         string    `db:"department" json:"department"`
	Active             bool      `db:"active" json:"active"`
	LastPasswordChange time.Time `db:"last_password_change" json:"last_password_change"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	Department string `json:"department"`
	Active     bool   `json:"active"`
}

// Info projects the public view of a user.
func (u *User) Info() UserInfo {
	return UserInfo{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
		Active:     u.Active,
	}
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role       *Role
	Active     *bool
	Department string
	Search     string
	Page       int
	PageSize   int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
