package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/api"
	"github.com/charlesng35/formdesk/internal/app"
	"github.com/charlesng35/formdesk/internal/app/maintenance"
	iauth "github.com/charlesng35/formdesk/internal/auth"
	"github.com/charlesng35/formdesk/internal/cache"
	"github.com/charlesng35/formdesk/internal/database"
	"github.com/charlesng35/formdesk/internal/middleware"
	"github.com/charlesng35/formdesk/internal/monitoring"
	"github.com/charlesng35/formdesk/internal/monitoring/checks"
	"github.com/charlesng35/formdesk/internal/security"
	"github.com/charlesng35/formdesk/internal/services"
	"github.com/charlesng35/formdesk/pkg/logger"
)

const (
	probeTimeout         = 2 * time.Second
	maintenanceStaleness = 25 * time.Hour
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisStore
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Health    *monitoring.HealthManager
	Router    *gin.Engine
}

// bootstrapRuntime opens the database, connects the counter store, starts the
// maintenance jobs and builds the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" && !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := ensureBootstrapUser(ctx, stack.DB, cfg, log); err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	if cfg.Cache.Redis.Enabled {
		redisCfg, cfgErr := cfg.Cache.RedisClientConfig()
		if cfgErr == nil {
			stack.Redis, cfgErr = cache.NewRedisStore(ctx, redisCfg)
		}
		if cfgErr != nil {
			log.Warn("redis unavailable; falling back to database counters", zap.Error(cfgErr))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", redisCfg.Address))
		}
	}
	if stack.Redis != nil {
		stack.RateStore = middleware.NewSharedRateStore(stack.Redis)
	} else {
		stack.RateStore = middleware.NewSharedRateStore(dbStore)
	}

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}
	notifications, err := services.NewFieldNotificationService(stack.DB, cfg.Notifications.NewFieldTTL)
	if err != nil {
		return nil, fmt.Errorf("initialise field notifications: %w", err)
	}

	tracker := monitoring.NewJobTracker()
	stack.Health = monitoring.NewHealthManager()
	stack.Health.RegisterReadiness(checks.Database(stack.DB, probeTimeout))
	// A typed nil store must not reach the pinger interface.
	var pinger checks.RedisPinger
	if stack.Redis != nil {
		pinger = stack.Redis
	}
	stack.Health.RegisterReadiness(checks.Redis(pinger, cfg.Cache.Redis.Enabled, probeTimeout))

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(notifications, auditSvc,
			maintenance.WithTracker(tracker),
			maintenance.WithCacheStore(dbStore),
			maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
			maintenance.WithSchedules(
				cfg.Maintenance.NotificationSchedule,
				cfg.Maintenance.CacheSchedule,
				cfg.Maintenance.AuditSchedule,
			),
		)
		if err := stack.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("initial maintenance run failed", zap.Error(err))
		}
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
		stack.Health.RegisterLiveness(checks.Maintenance(tracker, maintenanceStaleness))
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	logSecurityPosture(ctx, security.NewAuditService(stack.DB, jwtSvc, cfg), log)

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, api.Options{
		RateStore: stack.RateStore,
		Health:    stack.Health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var errs error
	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	if s.Redis != nil {
		errs = multierr.Append(errs, s.Redis.Close())
	}

	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
	}
	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

// ensureBootstrapUser creates the configured superadmin when the database has
// none yet.
func ensureBootstrapUser(ctx context.Context, db *gorm.DB, cfg *app.Config, log *zap.Logger) error {
	input, ok := cfg.Auth.BootstrapUser()
	if !ok {
		return nil
	}

	users, err := services.NewUserService(db, nil)
	if err != nil {
		return fmt.Errorf("initialise user service: %w", err)
	}
	user, created, err := users.EnsureSuperAdmin(ctx, input)
	if err != nil {
		return fmt.Errorf("bootstrap superadmin: %w", err)
	}
	if created {
		log.Info("bootstrap superadmin created", zap.String("email", user.Email))
	}
	return nil
}

func logSecurityPosture(ctx context.Context, audit *security.AuditService, log *zap.Logger) {
	for _, check := range audit.Run(ctx).Checks {
		switch check.Status {
		case security.StatusFail:
			log.Error("security check failed", zap.String("check", check.ID), zap.String("message", check.Message), zap.String("remediation", check.Remediation))
		case security.StatusWarn:
			log.Warn("security check warning", zap.String("check", check.ID), zap.String("message", check.Message), zap.String("remediation", check.Remediation))
		}
	}
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql handle: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
