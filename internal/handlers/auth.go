package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/formdesk/internal/auth"
	"github.com/charlesng35/formdesk/internal/services"
	"github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/logger"
	"github.com/charlesng35/formdesk/pkg/response"
)

// AuthHandler issues access tokens and describes the current user.
type AuthHandler struct {
	users *services.UserService
	jwt   *iauth.JWTService
}

func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	ExpiresIn   int64   `json:"expires_in"`
	User        userDTO `json:"user"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Email, req.Password, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Role: user.RoleName()})
	if err != nil {
		logger.WithModule("auth").Error("issue access token", zap.String("user_id", user.ID), zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{
		AccessToken: token.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.jwt.TTL().Seconds()),
		User:        toUser(user),
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, toUser(user))
}
