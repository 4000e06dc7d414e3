package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/formdesk/internal/database/testutil"
	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/services"
)

func newUsers(t *testing.T) *services.UserService {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	users, err := services.NewUserService(db, nil)
	require.NoError(t, err)
	return users
}

func TestCreateThenToggleStatus(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t)
	var out bytes.Buffer

	err := dispatch(ctx, users, []string{"create", "-email", "Editor@Example.com", "-password", "Password123!", "-role", models.RoleAdmin}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "created editor@example.com")
	assert.Contains(t, out.String(), "role admin")

	out.Reset()
	require.NoError(t, dispatch(ctx, users, []string{"status", "editor@example.com", "deactivate"}, &out))
	assert.Equal(t, "editor@example.com is now inactive\n", out.String())

	out.Reset()
	require.NoError(t, dispatch(ctx, users, []string{"status", "editor@example.com", "deactivate"}, &out))
	assert.Equal(t, "editor@example.com is already inactive\n", out.String())

	out.Reset()
	require.NoError(t, dispatch(ctx, users, []string{"status", "EDITOR@example.com", "activate"}, &out))
	assert.Equal(t, "editor@example.com is now active\n", out.String())
}

func TestStatusUnknownUser(t *testing.T) {
	err := dispatch(context.Background(), newUsers(t), []string{"status", "ghost@example.com", "activate"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrUserNotFound))
}

func TestDispatchUsageErrors(t *testing.T) {
	users := newUsers(t)

	cases := [][]string{
		nil,
		{"rename"},
		{"status", "someone@example.com"},
		{"status", "someone@example.com", "suspend"},
		{"create", "-email", "x@example.com"},
	}
	for _, args := range cases {
		err := dispatch(context.Background(), users, args, &bytes.Buffer{})
		assert.ErrorIs(t, err, errUsage, "%v", args)
	}
}
