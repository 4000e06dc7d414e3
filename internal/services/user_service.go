package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/pkg/crypto"
	apperrors "github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/metrics"
)

// User listing status filters.
const (
	UserStatusActive  = "active"
	UserStatusDeleted = "deleted"
	UserStatusAll     = "all"
)

// UsersPerPage is the page size of the user listing.
const UsersPerPage = 15

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrUserSelfAction prevents users from deactivating or deleting their own account.
	ErrUserSelfAction = apperrors.New("USER_SELF_ACTION", "You cannot delete your own account", http.StatusBadRequest)
	// ErrUnknownRole indicates the requested role is not a system role.
	ErrUnknownRole = apperrors.NewValidation(map[string]string{"role": "failed on oneof"})
)

// CreateUserInput describes the fields accepted when creating a user.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// UpdateUserInput enumerates mutable user attributes. An empty password keeps
// the current one.
type UpdateUserInput struct {
	Name     *string
	Email    *string
	Password *string
	Role     *string
}

// ListUsersOptions controls filtering and pagination for user listing.
type ListUsersOptions struct {
	Page   int
	Search string
	Role   string
	Status string
}

// UserService manages staff accounts, their activation state and logins.
type UserService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, auditService *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{
		db:           db,
		auditService: auditService,
	}, nil
}

// Create provisions a new user with a hashed password and a role.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	problems := map[string]string{}
	if name == "" {
		problems["name"] = "failed on required"
	}
	if email == "" {
		problems["email"] = "failed on required"
	}
	if len(input.Password) < crypto.MinPasswordLength {
		problems["password"] = fmt.Sprintf("failed on min=%d", crypto.MinPasswordLength)
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidation(problems)
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Name:     name,
		Email:    email,
		Password: hashed,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := findRole(tx, input.Role)
		if err != nil {
			return err
		}
		user.RoleID = role.ID
		user.Role = role

		if err := tx.Omit("Role").Create(user).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewValidation(map[string]string{"email": "failed on unique"})
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:     "user.create",
		Resource:   "user",
		ResourceID: user.ID,
		Result:     AuditResultSuccess,
		Metadata:   map[string]any{"email": user.Email, "role": user.RoleName()},
	})

	return user, nil
}

// GetByID retrieves a user by ID, including deactivated users when withTrashed is set.
func (s *UserService) GetByID(ctx context.Context, id string, withTrashed bool) (*models.User, error) {
	ctx = ensureContext(ctx)

	tx := s.db.WithContext(ctx)
	if withTrashed {
		tx = tx.Unscoped()
	}

	var user models.User
	err := tx.Preload("Role").Where("id = ?", strings.TrimSpace(id)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// List returns users ordered by creation time descending.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	switch opts.Status {
	case UserStatusDeleted:
		query = query.Unscoped().Where("users.deleted_at IS NOT NULL")
	case UserStatusAll:
		query = query.Unscoped()
	}

	if term := strings.ToLower(strings.TrimSpace(opts.Search)); term != "" {
		like := "%" + term + "%"
		query = query.Where("(LOWER(users.name) LIKE ? OR LOWER(users.email) LIKE ?)", like, like)
	}
	if role := strings.TrimSpace(opts.Role); role != "" {
		query = query.Where("users.role_id IN (?)", s.db.Model(&models.Role{}).Select("id").Where("name = ?", role))
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	users := make([]models.User, 0)
	if err := query.Session(&gorm.Session{}).
		Preload("Role").
		Order("users.created_at DESC").
		Offset((page - 1) * UsersPerPage).
		Limit(UsersPerPage).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}

// Update modifies profile fields, password and role of an active user.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	problems := map[string]string{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			problems["name"] = "failed on required"
		}
		updates["name"] = name
	}
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if email == "" {
			problems["email"] = "failed on required"
		}
		updates["email"] = email
	}
	if input.Password != nil && *input.Password != "" {
		if len(*input.Password) < crypto.MinPasswordLength {
			problems["password"] = fmt.Sprintf("failed on min=%d", crypto.MinPasswordLength)
		} else {
			hashed, err := crypto.HashPassword(*input.Password)
			if err != nil {
				return nil, fmt.Errorf("user service: hash password: %w", err)
			}
			updates["password"] = hashed
		}
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidation(problems)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.Role != nil {
			role, err := findRole(tx, *input.Role)
			if err != nil {
				return err
			}
			updates["role_id"] = role.ID
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewValidation(map[string]string{"email": "failed on unique"})
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:     "user.update",
		Resource:   "user",
		ResourceID: user.ID,
		Result:     AuditResultSuccess,
	})

	return s.GetByID(ctx, user.ID, false)
}

// Deactivate soft deletes a user. actorID may not deactivate itself.
func (s *UserService) Deactivate(ctx context.Context, id, actorID string) error {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id, false)
	if err != nil {
		return err
	}
	if user.ID == actorID {
		return ErrUserSelfAction
	}

	if err := s.db.WithContext(ctx).Delete(user).Error; err != nil {
		return fmt.Errorf("user service: deactivate user: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:     "user.deactivate",
		Resource:   "user",
		ResourceID: user.ID,
		Result:     AuditResultSuccess,
	})
	return nil
}

// Restore reactivates a soft deleted user.
func (s *UserService) Restore(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Unscoped().
		Model(&models.User{}).
		Where("id = ? AND deleted_at IS NOT NULL", strings.TrimSpace(id)).
		Update("deleted_at", nil)
	if result.Error != nil {
		return nil, fmt.Errorf("user service: restore user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:     "user.restore",
		Resource:   "user",
		ResourceID: id,
		Result:     AuditResultSuccess,
	})
	return s.GetByID(ctx, id, false)
}

// ForceDelete permanently removes a user with its read marks and preferences.
func (s *UserService) ForceDelete(ctx context.Context, id, actorID string) error {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id, true)
	if err != nil {
		return err
	}
	if user.ID == actorID {
		return ErrUserSelfAction
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.ContactRead{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.TablePreference{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.User{}, "id = ?", user.ID).Error
	})
	if err != nil {
		return fmt.Errorf("user service: force delete user: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:     "user.force_delete",
		Resource:   "user",
		ResourceID: user.ID,
		Result:     AuditResultSuccess,
		Metadata:   map[string]any{"email": user.Email},
	})
	return nil
}

// SetStatusByEmail activates or deactivates the user with email. changed is
// false when the user already had the requested status.
func (s *UserService) SetStatusByEmail(ctx context.Context, email string, active bool) (user *models.User, changed bool, err error) {
	ctx = ensureContext(ctx)

	var found models.User
	err = s.db.WithContext(ctx).Unscoped().
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Take(&found).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, ErrUserNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("user service: find user: %w", err)
	}

	if found.IsActive() == active {
		return &found, false, nil
	}

	if active {
		restored, err := s.Restore(ctx, found.ID)
		if err != nil {
			return nil, false, err
		}
		return restored, true, nil
	}

	if err := s.db.WithContext(ctx).Delete(&found).Error; err != nil {
		return nil, false, fmt.Errorf("user service: deactivate user: %w", err)
	}
	recordAudit(s.auditService, ctx, AuditEntry{
		Action:     "user.deactivate",
		Resource:   "user",
		ResourceID: found.ID,
		Result:     AuditResultSuccess,
	})
	return &found, true, nil
}

// EnsureSuperAdmin creates a superadmin from input when no superadmin exists yet.
func (s *UserService) EnsureSuperAdmin(ctx context.Context, input CreateUserInput) (*models.User, bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).Unscoped().
		Model(&models.User{}).
		Joins("JOIN roles ON roles.id = users.role_id").
		Where("roles.name = ?", models.RoleSuperAdmin).
		Count(&count).Error; err != nil {
		return nil, false, fmt.Errorf("user service: count superadmins: %w", err)
	}
	if count > 0 {
		return nil, false, nil
	}

	input.Role = models.RoleSuperAdmin
	user, err := s.Create(ctx, input)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Authenticate verifies credentials and records the login. Deactivated users
// with valid credentials receive ErrAccountInactive.
func (s *UserService) Authenticate(ctx context.Context, email, password, ipAddress string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Unscoped().
		Preload("Role").
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Take(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user service: find user: %w", err)
	}

	if err != nil || !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		recordAudit(s.auditService, ctx, AuditEntry{
			Action:    "auth.login",
			Resource:  "user",
			Result:    AuditResultFailure,
			IPAddress: ipAddress,
			Metadata:  map[string]any{"email": strings.ToLower(strings.TrimSpace(email))},
		})
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive() {
		metrics.AuthAttempts.WithLabelValues("inactive").Inc()
		recordAudit(s.auditService, ctx, AuditEntry{
			UserID:    &user.ID,
			Action:    "auth.login",
			Resource:  "user",
			Result:    AuditResultDenied,
			IPAddress: ipAddress,
		})
		return nil, apperrors.ErrAccountInactive
	}

	now := utcNow()
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{"last_login_at": now, "last_login_ip": ipAddress}).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}
	user.LastLoginAt = &now
	user.LastLoginIP = ipAddress

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:    &user.ID,
		Action:    "auth.login",
		Resource:  "user",
		Result:    AuditResultSuccess,
		IPAddress: ipAddress,
	})
	return &user, nil
}

func findRole(tx *gorm.DB, name string) (*models.Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = models.RoleUser
	}
	if !models.ValidRole(name) {
		return nil, ErrUnknownRole
	}
	var role models.Role
	err := tx.Where("name = ?", name).Take(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownRole
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}
