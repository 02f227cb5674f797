package repository

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expensetrack/expense-api/internal/models"
)

func TestAuditCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	userID := "u1"
	entry := &models.AuditLog{
		UserID:    &userID,
		Action:    models.AuditActionLogin,
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
		Status:    models.AuditSuccess,
	}
	err := repo.Create(context.Background(), entry)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditCreateWithoutActor(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AuditLog{
		Action:    models.AuditActionLoginFailed,
		IPAddress: "10.0.0.1",
		Status:    models.AuditFailure,
		Details:   []byte(`{"reason":"User not found"}`),
	}
	err := repo.Create(context.Background(), entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditCreatePropagatesSinkError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("disk full"))

	userID := "u1"
	err := repo.Create(context.Background(), &models.AuditLog{UserID: &userID, Action: models.AuditActionLogout, Status: models.AuditSuccess})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
