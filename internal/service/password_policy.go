package service

import (
	"strings"
	"unicode"

	appErrors "github.com/expensetrack/expense-api/pkg/errors"
)

// passwordSymbols is the fixed set of accepted special characters.
const passwordSymbols = "@$!%*?&"

const passwordMinLength = 8

// PasswordPolicy enforces composition and contextual rules on new passwords.
// It is applied at registration and password change, before any persistence.
type PasswordPolicy struct{}

// NewPasswordPolicy constructs the validator.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{}
}

// Validate checks the candidate password against every rule and returns the
// full set of violations, never stopping at the first one.
func (p *PasswordPolicy) Validate(name, email, password, confirm string) []appErrors.FieldError {
	var violations []appErrors.FieldError

	if len(password) < passwordMinLength {
		violations = append(violations, appErrors.FieldError{
			Field:   "password",
			Message: "Password must be at least 8 characters long",
		})
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	if !hasLower || !hasUpper || !hasDigit || !hasSymbol {
		violations = append(violations, appErrors.FieldError{
			Field:   "password",
			Message: "Password must contain at least one uppercase letter, one lowercase letter, one number, and one special character",
		})
	}

	lowered := strings.ToLower(password)
	for _, part := range strings.Fields(strings.ToLower(name)) {
		if strings.Contains(lowered, part) {
			violations = append(violations, appErrors.FieldError{
				Field:   "password",
				Message: "Password cannot contain your name",
			})
			break
		}
	}
	if email != "" {
		local := strings.ToLower(strings.SplitN(email, "@", 2)[0])
		if local != "" && strings.Contains(lowered, local) {
			violations = append(violations, appErrors.FieldError{
				Field:   "password",
				Message: "Password cannot contain your email username",
			})
		}
	}

	if confirm != password {
		violations = append(violations, appErrors.FieldError{
			Field:   "confirmPassword",
			Message: "Passwords do not match",
		})
	}

	return violations
}
