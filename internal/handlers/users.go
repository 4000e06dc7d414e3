package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/services"
	"github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/response"
)

// UserHandler manages staff accounts. Every route is superadmin only.
type UserHandler struct {
	service *services.UserService
}

type createUserRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=superadmin admin user"`
}

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Password *string `json:"password" validate:"omitempty,min=8"`
	Role     *string `json:"role" validate:"omitempty,oneof=superadmin admin user"`
}

func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	status := strings.ToLower(c.DefaultQuery("status", services.UserStatusAll))
	switch status {
	case services.UserStatusAll, services.UserStatusActive, services.UserStatusDeleted:
	default:
		response.Error(c, errors.NewValidation(map[string]string{"status": "must be all, active or deleted"}))
		return
	}

	page := parseIntQuery(c, "page", 1)
	if page <= 0 {
		page = 1
	}
	users, total, err := h.service.List(requestContext(c), services.ListUsersOptions{
		Page:   page,
		Search: c.Query("search"),
		Role:   c.Query("role"),
		Status: status,
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, toUsers(users), response.NewMeta(page, services.UsersPerPage, total))
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.GetByID(requestContext(c), c.Param("id"), true)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toUser(user))
}

// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.service.Create(requestContext(c), services.CreateUserInput{
		Name:     strings.TrimSpace(body.Name),
		Email:    strings.ToLower(strings.TrimSpace(body.Email)),
		Password: body.Password,
		Role:     body.Role,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, toUser(user))
}

// PUT /api/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	var body updateUserRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.service.Update(requestContext(c), c.Param("id"), services.UpdateUserInput{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
		Role:     body.Role,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toUser(user))
}

// DELETE /api/users/:id
//
// Deactivates the account; it can be restored later.
func (h *UserHandler) Deactivate(c *gin.Context) {
	if err := h.service.Deactivate(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "User deactivated"})
}

// POST /api/users/:id/restore
func (h *UserHandler) Restore(c *gin.Context) {
	user, err := h.service.Restore(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toUser(user))
}

// DELETE /api/users/:id/force
func (h *UserHandler) ForceDelete(c *gin.Context) {
	if err := h.service.ForceDelete(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "User permanently deleted"})
}
