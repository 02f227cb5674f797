// Package authz holds the pure access-control decisions. Functions here have
// no side effects; callers decide what to log.
package authz

import (
	"github.com/expensetrack/expense-api/internal/models"
	appErrors "github.com/expensetrack/expense-api/pkg/errors"
)

// Identity is the authenticated principal injected into request context for
// downstream handlers.
type Identity struct {
	ID         string      `json:"id"`
	Role       models.Role `json:"role"`
	Department string      `json:"department"`
}

// IdentityOf projects a user into its request-scoped identity.
func IdentityOf(u *models.User) Identity {
	return Identity{ID: u.ID, Role: u.Role, Department: u.Department}
}

// RequireRole allows the identity only when its role is in the allow-list.
func RequireRole(id Identity, allowed ...models.Role) error {
	for _, role := range allowed {
		if id.Role == role {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

// RequireOwnershipOrRole allows the identity when it holds a privileged role
// or owns the resource. The caller resolves the resource first and maps an
// absent resource to NotFound before consulting the gate, so "absent" and
// "present but not owned" stay distinct.
func RequireOwnershipOrRole(id Identity, resourceOwnerID string, privileged ...models.Role) error {
	if RequireRole(id, privileged...) == nil {
		return nil
	}
	if id.ID == resourceOwnerID {
		return nil
	}
	return appErrors.ErrForbidden
}
