package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/formdesk/internal/auditctx"
	iauth "github.com/charlesng35/formdesk/internal/auth"
	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/logger"
	"github.com/charlesng35/formdesk/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxUserKey   = "authUser"
	CtxRoleKey   = "userRole"
)

// UserLookup loads the account behind a token.
type UserLookup interface {
	GetByID(ctx context.Context, id string, withTrashed bool) (*models.User, error)
}

// Auth enforces JWT authentication. Tokens of deactivated or deleted accounts
// are rejected even before they expire.
func Auth(jwt *iauth.JWTService, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID, true)
		if err != nil {
			logger.WithModule("auth").Debug("token user lookup failed",
				zap.String("user_id", claims.UserID),
				zap.Error(err))
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !user.IsActive() {
			response.Error(c, errors.ErrAccountInactive)
			c.Abort()
			return
		}

		role := user.RoleName()
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, user.ID)
		c.Set(CtxUserKey, user)
		c.Set(CtxRoleKey, role)

		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			UserID:    user.ID,
			Email:     user.Email,
			Role:      role,
			IPAddress: c.ClientIP(),
		}))

		c.Next()
	}
}

// RequireRole lets the request through only when the authenticated user holds
// one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := c.Get(CtxUserIDKey); !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[c.GetString(CtxRoleKey)]; !ok {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
