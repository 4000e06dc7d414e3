package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/api"
	"github.com/charlesng35/formdesk/internal/app"
	iauth "github.com/charlesng35/formdesk/internal/auth"
	sharedtestutil "github.com/charlesng35/formdesk/internal/database/testutil"
	"github.com/charlesng35/formdesk/internal/middleware"
	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/pkg/crypto"
	"github.com/charlesng35/formdesk/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Config *app.Config
}

// NewEnv provisions a fresh handler test environment with migrations and seed
// data applied. Options adjust the configuration before the router is built.
func NewEnv(t *testing.T, opts ...func(*app.Config)) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Server: app.ServerConfig{Port: 8000, Timezone: "UTC"},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Intake: app.IntakeConfig{MaxBodyBytes: 64 << 10},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	router, err := api.NewRouter(db, jwtSvc, cfg, api.Options{RateStore: middleware.NewMemoryRateStore()})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Config: cfg,
	}
}

// CreateUser inserts an active user holding role and returns the record.
func (e *Env) CreateUser(role, password string) *models.User {
	e.T.Helper()

	var r models.Role
	require.NoError(e.T, e.DB.Where("name = ?", role).Take(&r).Error)

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	name := role + "-" + uuid.NewString()[:8]
	user := &models.User{
		Name:     name,
		Email:    name + "@example.com",
		Password: hashed,
		RoleID:   r.ID,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	user.Role = &r
	return user
}

// TokenFor issues an access token for user without going through the login endpoint.
func (e *Env) TokenFor(user *models.User) string {
	e.T.Helper()

	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Role: user.RoleName()})
	require.NoError(e.T, err)
	return token.Token
}

// UserPayload captures the user fields returned from the API.
type UserPayload struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"is_active"`
	DeletedAt *time.Time `json:"deleted_at"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        UserPayload `json:"user"`
}

// Login authenticates with email and password and returns the issued token.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"email":    email,
		"password": password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Greater(e.T, result.ExpiresIn, 0)
	require.Equal(e.T, email, result.User.Email)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader io.Reader = http.NoBody
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return e.do(method, path, reader, contentType, token)
}

// RequestRaw sends body verbatim with the given content type.
func (e *Env) RequestRaw(method, path, contentType, body, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.do(method, path, strings.NewReader(body), contentType, token)
}

func (e *Env) do(method, path string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	req, err := http.NewRequest(method, path, body)
	require.NoError(e.T, err)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Submit posts a contact form for station and returns the new submission id.
// Map keys are sent in encoding/json order; use SubmitJSON when key order matters.
func (e *Env) Submit(station string, payload map[string]any) string {
	e.T.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(e.T, err)
	return e.SubmitJSON(station, string(raw))
}

// SubmitJSON posts body verbatim as a JSON contact form and returns the new submission id.
func (e *Env) SubmitJSON(station, body string) string {
	e.T.Helper()

	w := e.RequestRaw(http.MethodPost, "/contact/"+station, "application/json", body, "")
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Success      bool   `json:"success"`
		SubmissionID string `json:"submission_id"`
	}
	require.NoError(e.T, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(e.T, resp.Success)
	require.NotEmpty(e.T, resp.SubmissionID)
	return resp.SubmissionID
}
