package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/formdesk/internal/handlers/testutil"
	"github.com/charlesng35/formdesk/internal/models"
)

func TestLoginIssuesBearerToken(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleAdmin, "Password123!")

	result := env.Login(user.Email, "Password123!")
	assert.Equal(t, "Bearer", result.TokenType)
	assert.Equal(t, int(env.Config.Auth.JWT.TTL.Seconds()), result.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, result.User.Role)

	w := env.Request(http.MethodGet, "/api/auth/me", nil, result.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me testutil.UserPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &me)
	assert.Equal(t, user.ID, me.ID)

	var stored models.User
	require.NoError(t, env.DB.Where("id = ?", user.ID).Take(&stored).Error)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleUser, "Password123!")

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    user.Email,
		"password": "wrong-password",
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_CREDENTIALS", resp.Error.Code)
}

func TestLoginRejectsMalformedEmail(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "not-an-email",
		"password": "secret",
	}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDeactivatedUserCannotLoginOrUseToken(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleUser, "Password123!")
	token := env.TokenFor(user)

	require.NoError(t, env.DB.Delete(user).Error)

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    user.Email,
		"password": "Password123!",
	}, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ACCOUNT_INACTIVE", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodGet, "/api/auth/me", nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMeRequiresToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodGet, "/api/auth/me", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
