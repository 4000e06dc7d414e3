package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/app"
	iauth "github.com/charlesng35/formdesk/internal/auth"
	"github.com/charlesng35/formdesk/internal/handlers"
	"github.com/charlesng35/formdesk/internal/middleware"
	"github.com/charlesng35/formdesk/internal/monitoring"
	"github.com/charlesng35/formdesk/internal/monitoring/checks"
	"github.com/charlesng35/formdesk/internal/security"
	"github.com/charlesng35/formdesk/internal/services"
)

// Options carries optional collaborators of the router.
type Options struct {
	// RateStore backs the intake and login rate limits. Nil selects an
	// in-process store.
	RateStore middleware.RateStore
	// Health evaluates the health endpoints. Nil registers a database probe only.
	Health *monitoring.HealthManager
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, opts Options) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	svc, err := newServiceSet(db, cfg)
	if err != nil {
		return nil, err
	}
	zone, err := cfg.Server.Location()
	if err != nil {
		return nil, fmt.Errorf("server timezone: %w", err)
	}

	rateStore := opts.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}
	health := opts.Health
	if health == nil {
		health = monitoring.NewHealthManager()
		health.RegisterReadiness(checks.Database(db, 2*time.Second))
	}

	metricsPath := ""
	if cfg.Monitoring.Prometheus.Enabled {
		metricsPath = strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(metricsPath))
	r.Use(middleware.SecurityHeaders(cfg.Server.HSTS))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	registerHealthRoutes(r, cfg, health)

	throttle := func(c *gin.Context) { c.Next() }
	if limit := cfg.Intake.RateLimit; limit.Enabled {
		throttle = middleware.RateLimit(rateStore, limit.Requests, limit.Window)
	}

	registerContactRoutes(r, handlers.NewContactHandler(svc.submissions, cfg.Server.Debug, cfg.Intake.MaxBodyBytes), throttle)

	authHandler := handlers.NewAuthHandler(svc.users, jwt)
	r.POST("/api/auth/login", throttle, authHandler.Login)

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt, svc.users))

	api.GET("/auth/me", authHandler.Me)

	registerReviewRoutes(api, reviewHandlers{
		Dashboard: handlers.NewDashboardHandler(svc.dashboard),
		Messages:  handlers.NewContactMessageHandler(svc.submissions, svc.reads, svc.inference, svc.defaults, svc.notifications),
		Forms:     handlers.NewFormHandler(svc.submissions, svc.inference, svc.defaults, svc.notifications, zone),
	})
	registerPreferenceRoutes(api, handlers.NewPreferenceHandler(svc.preferences))
	registerUserRoutes(api, handlers.NewUserHandler(svc.users))
	registerAuditRoutes(api,
		handlers.NewAuditHandler(svc.audit),
		handlers.NewSecurityHandler(security.NewAuditService(db, jwt, cfg)),
	)

	if metricsPath != "" {
		r.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

type serviceSet struct {
	audit         *services.AuditService
	users         *services.UserService
	inference     *services.FieldInferenceService
	notifications *services.FieldNotificationService
	submissions   *services.SubmissionService
	reads         *services.ReadService
	defaults      *services.SmartDefaultsService
	preferences   *services.TablePreferenceService
	dashboard     *services.DashboardService
}

func newServiceSet(db *gorm.DB, cfg *app.Config) (*serviceSet, error) {
	var (
		set serviceSet
		err error
	)
	if set.audit, err = services.NewAuditService(db); err != nil {
		return nil, err
	}
	if set.users, err = services.NewUserService(db, set.audit); err != nil {
		return nil, err
	}
	if set.inference, err = services.NewFieldInferenceService(db, services.DefaultInferenceSample); err != nil {
		return nil, err
	}
	if set.notifications, err = services.NewFieldNotificationService(db, cfg.Notifications.NewFieldTTL); err != nil {
		return nil, err
	}
	if set.submissions, err = services.NewSubmissionService(db, set.audit, set.inference, set.notifications); err != nil {
		return nil, err
	}
	if set.reads, err = services.NewReadService(db); err != nil {
		return nil, err
	}
	if set.defaults, err = services.NewSmartDefaultsService(db, cfg.FormDefaults); err != nil {
		return nil, err
	}
	if set.preferences, err = services.NewTablePreferenceService(db, set.audit); err != nil {
		return nil, err
	}
	if set.dashboard, err = services.NewDashboardService(db); err != nil {
		return nil, err
	}
	return &set, nil
}
