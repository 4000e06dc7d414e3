package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/app"
	iauth "github.com/charlesng35/formdesk/internal/auth"
	"github.com/charlesng35/formdesk/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

const maxRecommendedTokenTTL = 24 * time.Hour

// AuditService evaluates the security posture of a running deployment.
type AuditService struct {
	db  *gorm.DB
	jwt *iauth.JWTService
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. All dependencies are optional; missing
// inputs degrade specific checks to warnings.
func NewAuditService(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) *AuditService {
	return &AuditService{
		db:  db,
		jwt: jwt,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkSuperAdmin(ctx),
		s.checkJWTSecret(),
		s.checkTokenTTL(),
		s.checkIntakeRateLimit(),
		s.checkCORSOrigins(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkSuperAdmin(ctx context.Context) Check {
	if s.db == nil {
		return Check{
			ID:          "superadmin_present",
			Status:      StatusWarn,
			Message:     "Database unavailable, unable to confirm superadmin presence.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Joins("JOIN roles ON roles.id = users.role_id").
		Where("roles.name = ?", models.RoleSuperAdmin).
		Count(&count).Error; err != nil {
		return Check{
			ID:          "superadmin_present",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not verify superadmins: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          "superadmin_present",
			Status:      StatusFail,
			Message:     "No active superadmin found.",
			Remediation: "Set FORMDESK_AUTH_BOOTSTRAP_EMAIL and FORMDESK_AUTH_BOOTSTRAP_PASSWORD or run userctl create -role superadmin.",
		}
	}

	return Check{
		ID:      "superadmin_present",
		Status:  StatusPass,
		Message: "Superadmin present.",
		Details: map[string]any{"count": count},
	}
}

func (s *AuditService) checkJWTSecret() Check {
	if s.jwt == nil {
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusWarn,
			Message:     "JWT service not initialised, unable to assess signing secret strength.",
			Remediation: "Initialise JWT service with a strong secret.",
		}
	}

	length := s.jwt.SecretLength()
	switch {
	case length < 32:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
			Details:     map[string]any{"length": length},
		}
	case length < 48:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider increasing to 48+ bytes.", length),
			Remediation: "Increase the length of FORMDESK_AUTH_JWT_SECRET to at least 48 bytes.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      "jwt_secret_strength",
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkTokenTTL() Check {
	if s.jwt == nil {
		return Check{
			ID:          "access_token_ttl",
			Status:      StatusWarn,
			Message:     "JWT service not initialised, unable to evaluate token lifetime.",
			Remediation: "Initialise JWT service before running the security audit.",
		}
	}

	ttl := s.jwt.TTL()
	if ttl > maxRecommendedTokenTTL {
		return Check{
			ID:          "access_token_ttl",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Access token TTL (%s) exceeds recommended maximum (%s).", ttl, maxRecommendedTokenTTL),
			Remediation: "Reduce FORMDESK_AUTH_JWT_ACCESS_TOKEN_TTL to limit exposure of leaked tokens.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}

	return Check{
		ID:      "access_token_ttl",
		Status:  StatusPass,
		Message: fmt.Sprintf("Access token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func (s *AuditService) checkIntakeRateLimit() Check {
	if s.cfg == nil {
		return Check{
			ID:          "intake_rate_limit",
			Status:      StatusWarn,
			Message:     "Configuration not loaded, unable to verify intake throttling.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	limit := s.cfg.Intake.RateLimit
	if !limit.Enabled || limit.Requests <= 0 || limit.Window <= 0 {
		return Check{
			ID:          "intake_rate_limit",
			Status:      StatusWarn,
			Message:     "Public contact intake and login are not rate limited.",
			Remediation: "Enable intake.rate_limit to throttle form spam and password guessing.",
		}
	}

	return Check{
		ID:      "intake_rate_limit",
		Status:  StatusPass,
		Message: fmt.Sprintf("Intake limited to %d requests per %s.", limit.Requests, limit.Window),
		Details: map[string]any{"requests": limit.Requests, "window": limit.Window.String()},
	}
}

func (s *AuditService) checkCORSOrigins() Check {
	if s.cfg == nil {
		return Check{
			ID:          "cors_origins",
			Status:      StatusWarn,
			Message:     "Configuration not loaded, unable to verify CORS origins.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	for _, origin := range s.cfg.Server.CORSOrigins {
		if strings.TrimSpace(origin) == "*" {
			return Check{
				ID:          "cors_origins",
				Status:      StatusWarn,
				Message:     "CORS allows every origin.",
				Remediation: "List the review frontend origins in server.cors_origins.",
			}
		}
	}

	return Check{
		ID:      "cors_origins",
		Status:  StatusPass,
		Message: "CORS origins are restricted.",
		Details: map[string]any{"origins": s.cfg.Server.CORSOrigins},
	}
}
