package app

import (
	"strings"

	"github.com/charlesng35/formdesk/internal/auth"
	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/services"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// BootstrapUser returns the superadmin to create on start, or false when
// bootstrapping is not configured.
func (c AuthConfig) BootstrapUser() (services.CreateUserInput, bool) {
	email := strings.TrimSpace(c.Bootstrap.Email)
	if email == "" || c.Bootstrap.Password == "" {
		return services.CreateUserInput{}, false
	}
	name := strings.TrimSpace(c.Bootstrap.Name)
	if name == "" {
		name = "Administrator"
	}
	return services.CreateUserInput{
		Name:     name,
		Email:    strings.ToLower(email),
		Password: c.Bootstrap.Password,
		Role:     models.RoleSuperAdmin,
	}, true
}
