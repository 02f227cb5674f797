package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expensetrack/expense-api/internal/models"
	appErrors "github.com/expensetrack/expense-api/pkg/errors"
)

type mockUserAdminRepo struct {
	users       map[string]*models.User
	listResult  []models.User
	listTotal   int
	roleChanges map[string]models.Role
	deactivated []string
}

func newMockUserAdminRepo() *mockUserAdminRepo {
	return &mockUserAdminRepo{
		users:       make(map[string]*models.User),
		roleChanges: make(map[string]models.Role),
	}
}

func (m *mockUserAdminRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *user
	return &cp, nil
}

func (m *mockUserAdminRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return m.listResult, m.listTotal, nil
}

func (m *mockUserAdminRepo) Update(ctx context.Context, user *models.User) error {
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserAdminRepo) UpdateRole(ctx context.Context, id string, role models.Role) error {
	m.roleChanges[id] = role
	m.users[id].Role = role
	return nil
}

func (m *mockUserAdminRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	m.users[id].Active = false
	return nil
}

type mockRevoker struct {
	revoked []string
}

func (m *mockRevoker) EndAllUserSessions(ctx context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func newUserFixture(t *testing.T) (*UserService, *mockUserAdminRepo, *mockRevoker, *mockAuditSink) {
	t.Helper()
	repo := newMockUserAdminRepo()
	revoker := &mockRevoker{}
	sink := &mockAuditSink{}
	svc := NewUserService(repo, revoker, NewAuditService(sink, nil, nil), nil, nil)
	return svc, repo, revoker, sink
}

func seedUser(repo *mockUserAdminRepo, id string, role models.Role) {
	repo.users[id] = &models.User{ID: id, Name: "Seed User", Email: id + "@example.com", Role: role, Active: true}
}

func TestUserListAdminOnly(t *testing.T) {
	svc, repo, _, _ := newUserFixture(t)
	repo.listResult = []models.User{{ID: "u1", Active: true}}
	repo.listTotal = 1

	_, _, err := svc.List(context.Background(), manager("m1"), models.UserFilter{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	users, pagination, err := svc.List(context.Background(), admin("a1"), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestUserChangeRole(t *testing.T) {
	svc, repo, _, sink := newUserFixture(t)
	seedUser(repo, "u1", models.RoleEmployee)

	_, err := svc.ChangeRole(context.Background(), employee("e1"), "u1", UpdateRoleRequest{Role: models.RoleManager}, models.RequestContext{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	info, err := svc.ChangeRole(context.Background(), admin("a1"), "u1", UpdateRoleRequest{Role: models.RoleManager}, models.RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, info.Role)
	assert.Equal(t, models.RoleManager, repo.roleChanges["u1"])
	assert.Equal(t, models.AuditActionRoleChange, sink.last().Action)
}

func TestUserChangeRoleRejectsUnknownRole(t *testing.T) {
	svc, repo, _, _ := newUserFixture(t)
	seedUser(repo, "u1", models.RoleEmployee)

	_, err := svc.ChangeRole(context.Background(), admin("a1"), "u1", UpdateRoleRequest{Role: "superuser"}, models.RequestContext{})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Status)
}

func TestUserDeactivateEndsSessions(t *testing.T) {
	svc, repo, revoker, sink := newUserFixture(t)
	seedUser(repo, "u1", models.RoleEmployee)

	err := svc.Deactivate(context.Background(), admin("a1"), "u1", models.RequestContext{})
	require.NoError(t, err)

	assert.Equal(t, []string{"u1"}, repo.deactivated)
	assert.Equal(t, []string{"u1"}, revoker.revoked)
	assert.Equal(t, models.AuditActionUserDelete, sink.last().Action)
}

func TestUserDeactivateMissing(t *testing.T) {
	svc, _, _, _ := newUserFixture(t)

	err := svc.Deactivate(context.Background(), admin("a1"), "ghost", models.RequestContext{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
