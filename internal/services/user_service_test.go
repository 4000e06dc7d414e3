package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/formdesk/internal/models"
	apperrors "github.com/charlesng35/formdesk/pkg/errors"
)

func TestUserServiceCreateAndGet(t *testing.T) {
	db := openServiceTestDB(t)
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc, err := NewUserService(db, audit)
	require.NoError(t, err)

	ctx := context.Background()
	user, err := svc.Create(ctx, CreateUserInput{
		Name:     "Alice",
		Email:    "Alice@Example.com ",
		Password: "correct-horse",
		Role:     models.RoleAdmin,
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)
	require.NotEqual(t, "correct-horse", user.Password)
	require.Equal(t, models.RoleAdmin, user.RoleName())

	fetched, err := svc.GetByID(ctx, user.ID, false)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, fetched.RoleName())

	_, err = svc.Create(ctx, CreateUserInput{Name: "Dup", Email: "alice@example.com", Password: "correct-horse"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "failed on unique", appErr.Fields["email"])

	_, err = svc.Create(ctx, CreateUserInput{Name: "Bad", Email: "bad@example.com", Password: "correct-horse", Role: "root"})
	require.ErrorIs(t, err, ErrUnknownRole)

	_, err = svc.Create(ctx, CreateUserInput{Email: "short@example.com", Password: "short"})
	require.ErrorAs(t, err, &appErr)
	require.Contains(t, appErr.Fields, "name")
	require.Contains(t, appErr.Fields, "password")

	var logs int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", "user.create").Count(&logs).Error)
	require.Equal(t, int64(1), logs)
}

func TestUserServiceUpdate(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewUserService(db, nil)
	require.NoError(t, err)
	user := createTestUser(t, db, "bob@example.com", models.RoleUser)

	name := "Robert"
	role := models.RoleSuperAdmin
	empty := ""
	updated, err := svc.Update(context.Background(), user.ID, UpdateUserInput{Name: &name, Role: &role, Password: &empty})
	require.NoError(t, err)
	require.Equal(t, "Robert", updated.Name)
	require.Equal(t, models.RoleSuperAdmin, updated.RoleName())
	require.Equal(t, user.Password, updated.Password)

	password := "new-password-1"
	_, err = svc.Update(context.Background(), user.ID, UpdateUserInput{Password: &password})
	require.NoError(t, err)
	_, err = svc.Authenticate(context.Background(), "bob@example.com", password, "127.0.0.1")
	require.NoError(t, err)
}

func TestUserServiceDeactivateRestoreAndForceDelete(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewUserService(db, nil)
	require.NoError(t, err)
	admin := createTestUser(t, db, "root@example.com", models.RoleSuperAdmin)
	user := createTestUser(t, db, "carol@example.com", models.RoleUser)
	ctx := context.Background()

	require.ErrorIs(t, svc.Deactivate(ctx, admin.ID, admin.ID), ErrUserSelfAction)
	require.NoError(t, svc.Deactivate(ctx, user.ID, admin.ID))

	_, err = svc.GetByID(ctx, user.ID, false)
	require.ErrorIs(t, err, ErrUserNotFound)
	trashed, err := svc.GetByID(ctx, user.ID, true)
	require.NoError(t, err)
	require.False(t, trashed.IsActive())

	active, total, err := svc.List(ctx, ListUsersOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, admin.ID, active[0].ID)

	deleted, total, err := svc.List(ctx, ListUsersOptions{Status: UserStatusDeleted})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, user.ID, deleted[0].ID)

	_, total, err = svc.List(ctx, ListUsersOptions{Status: UserStatusAll, Search: "CAROL"})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	_, total, err = svc.List(ctx, ListUsersOptions{Status: UserStatusAll, Role: models.RoleSuperAdmin})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	restored, err := svc.Restore(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, restored.IsActive())
	_, err = svc.Restore(ctx, user.ID)
	require.ErrorIs(t, err, ErrUserNotFound)

	sub := insertSubmission(t, db, "wf-1", "", "rpr1", `{"a":1}`, baseTime)
	reads, err := NewReadService(db)
	require.NoError(t, err)
	require.NoError(t, reads.MarkRead(ctx, sub.ID, user.ID))

	require.ErrorIs(t, svc.ForceDelete(ctx, admin.ID, admin.ID), ErrUserSelfAction)
	require.NoError(t, svc.ForceDelete(ctx, user.ID, admin.ID))
	_, err = svc.GetByID(ctx, user.ID, true)
	require.ErrorIs(t, err, ErrUserNotFound)

	var readCount int64
	require.NoError(t, db.Model(&models.ContactRead{}).Count(&readCount).Error)
	require.Zero(t, readCount)
}

func TestUserServiceSetStatusByEmail(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewUserService(db, nil)
	require.NoError(t, err)
	createTestUser(t, db, "dave@example.com", models.RoleUser)
	ctx := context.Background()

	_, changed, err := svc.SetStatusByEmail(ctx, "dave@example.com", true)
	require.NoError(t, err)
	require.False(t, changed)

	user, changed, err := svc.SetStatusByEmail(ctx, "DAVE@example.com", false)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "dave@example.com", user.Email)

	_, changed, err = svc.SetStatusByEmail(ctx, "dave@example.com", false)
	require.NoError(t, err)
	require.False(t, changed)

	user, changed, err = svc.SetStatusByEmail(ctx, "dave@example.com", true)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, user.IsActive())

	_, _, err = svc.SetStatusByEmail(ctx, "nobody@example.com", true)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserServiceAuthenticate(t *testing.T) {
	db := openServiceTestDB(t)
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc, err := NewUserService(db, audit)
	require.NoError(t, err)
	user := createTestUser(t, db, "erin@example.com", models.RoleAdmin)
	ctx := context.Background()

	authed, err := svc.Authenticate(ctx, "erin@example.com", "correct-horse", "192.0.2.1")
	require.NoError(t, err)
	require.Equal(t, user.ID, authed.ID)
	require.Equal(t, models.RoleAdmin, authed.RoleName())
	require.NotNil(t, authed.LastLoginAt)

	_, err = svc.Authenticate(ctx, "erin@example.com", "wrong-password", "192.0.2.1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "ghost@example.com", "correct-horse", "192.0.2.1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	require.NoError(t, svc.Deactivate(ctx, user.ID, ""))
	_, err = svc.Authenticate(ctx, "erin@example.com", "correct-horse", "192.0.2.1")
	require.ErrorIs(t, err, apperrors.ErrAccountInactive)

	var failures int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ? AND result = ?", "auth.login", AuditResultFailure).Count(&failures).Error)
	require.Equal(t, int64(2), failures)
}

func TestUserServiceEnsureSuperAdmin(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewUserService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	input := CreateUserInput{Name: "Root", Email: "root@example.com", Password: "bootstrap-pass"}
	user, created, err := svc.EnsureSuperAdmin(ctx, input)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, models.RoleSuperAdmin, user.RoleName())

	_, created, err = svc.EnsureSuperAdmin(ctx, input)
	require.NoError(t, err)
	require.False(t, created)
}
