package models

// RegisterRequest holds the payload for creating an account.
type RegisterRequest struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
	Department      string `json:"department" validate:"required"`
	Role            Role   `json:"role,omitempty"`
	IP              string `json:"-"`
	UserAgent       string `json:"-"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// AuthResponse returns the issued session token and user info.
type AuthResponse struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

// ChangePasswordRequest payload for updating the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
	IP              string `json:"-"`
	UserAgent       string `json:"-"`
}

// RequestContext carries per-request client metadata into the auth core.
type RequestContext struct {
	IP        string
	UserAgent string
}
