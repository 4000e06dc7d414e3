package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/formdesk/internal/app"
	iauth "github.com/charlesng35/formdesk/internal/auth"
	"github.com/charlesng35/formdesk/internal/database/testutil"
	"github.com/charlesng35/formdesk/internal/middleware"
	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/monitoring"
)

func testConfig() *app.Config {
	return &app.Config{
		Server: app.ServerConfig{Timezone: "UTC"},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Intake: app.IntakeConfig{MaxBodyBytes: 1 << 16},
	}
}

func newTestRouter(t *testing.T, cfg *app.Config, opts Options) (*gin.Engine, *iauth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)

	if opts.RateStore == nil {
		opts.RateStore = middleware.NewMemoryRateStore()
	}
	router, err := NewRouter(db, jwtSvc, cfg, opts)
	require.NoError(t, err)
	return router, jwtSvc
}

func serve(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(nil, nil, nil, Options{})
	assert.Error(t, err)
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	router, _ := newTestRouter(t, testConfig(), Options{})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/ready", "").Code)

	for _, path := range []string{"/api/auth/me", "/api/contact-messages", "/api/dashboard", "/api/users", "/api/preferences"} {
		assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, path, "").Code, path)
	}

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/does-not-exist", "").Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, testConfig(), Options{})

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", "").Code)

	w := serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `formdesk_api_latency_seconds_count{method="GET",path="/health",status="200"}`)
}

func TestRouter_HealthDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Monitoring.Health.Enabled = false
	cfg.Monitoring.Prometheus.Enabled = false
	router, _ := newTestRouter(t, cfg, Options{})

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/health/ready", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/metrics", "").Code)
}

func TestRouter_FailingReadinessReturnsUnavailable(t *testing.T) {
	health := monitoring.NewHealthManager()
	health.RegisterReadiness(monitoring.NewCheck("broken", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Component: "broken", Status: monitoring.StatusDown}
	}))
	router, _ := newTestRouter(t, testConfig(), Options{Health: health})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/health/ready", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/health", "").Code)
}

func TestRouter_IntakeIsRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Intake.RateLimit = app.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute}
	router, _ := newTestRouter(t, cfg, Options{})

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/contact/bigfm", strings.NewReader(`{"fname":"Anna"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, post())
	assert.Equal(t, http.StatusCreated, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
}

func TestRouter_UserAdministrationIsSuperAdminOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)
	router, err := NewRouter(db, jwtSvc, testConfig(), Options{})
	require.NoError(t, err)

	issue := func(u *models.User) string {
		token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: u.ID})
		require.NoError(t, err)
		return token.Token
	}

	admin := testutil.MustCreateUser(t, db, "admin@example.com", models.RoleAdmin)
	root := testutil.MustCreateUser(t, db, "root@example.com", models.RoleSuperAdmin)

	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/api/users", issue(admin)).Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/api/audit", issue(admin)).Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/api/security/audit", issue(admin)).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/security/audit", issue(root)).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/users", issue(root)).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/dashboard", issue(admin)).Code)
}
