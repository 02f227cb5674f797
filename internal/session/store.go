// Package session owns the process-wide session table. No other component
// creates, mutates, or deletes entries; everything else goes through Store.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/expensetrack/expense-api/internal/models"
)

// ErrNotFound is returned when a token has no entry in the table.
var ErrNotFound = errors.New("session not found")

// Store tracks live sessions keyed by token. Implementations must serialize
// concurrent mutations touching the same token; cross-user operations may
// proceed in parallel.
type Store interface {
	// Put inserts or replaces the entry for the session's token.
	Put(ctx context.Context, s *models.Session) error
	// Get returns the entry for the token, or ErrNotFound.
	Get(ctx context.Context, token string) (*models.Session, error)
	// Touch refreshes the last-activity timestamp for the token.
	Touch(ctx context.Context, token string, at time.Time) error
	// Delete removes the entry if present and reports whether one was
	// removed. Removing an absent token is not an error.
	Delete(ctx context.Context, token string) (bool, error)
	// ListByUser returns every live session owned by the user.
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	// DeleteByUser removes every session owned by the user and reports how
	// many entries were evicted.
	DeleteByUser(ctx context.Context, userID string) (int, error)
}
