package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve without system zoneinfo

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/charlesng35/formdesk/internal/services"
)

// EnvPrefix prefixes every environment variable that overrides a config key.
const EnvPrefix = "FORMDESK"

// Config represents the runtime configuration of the formdesk service.
type Config struct {
	Server        ServerConfig                `mapstructure:"server"`
	Database      DatabaseConfig              `mapstructure:"database"`
	Cache         CacheConfig                 `mapstructure:"cache"`
	Monitoring    MonitoringConfig            `mapstructure:"monitoring"`
	Auth          AuthConfig                  `mapstructure:"auth"`
	Intake        IntakeConfig                `mapstructure:"intake"`
	Notifications NotificationConfig          `mapstructure:"notifications"`
	Maintenance   MaintenanceConfig           `mapstructure:"maintenance"`
	FormDefaults  services.FormDefaultsConfig `mapstructure:"form_defaults"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Debug           bool          `mapstructure:"debug"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	HSTS            bool          `mapstructure:"hsts"`
	Timezone        string        `mapstructure:"timezone"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	PostgresDriver  string        `mapstructure:"postgres_driver"`
	Postgres        DBAuthConfig  `mapstructure:"postgres"`
	MySQL           DBAuthConfig  `mapstructure:"mysql"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Database string            `mapstructure:"database"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures authentication settings.
type AuthConfig struct {
	JWT       JWTSettings       `mapstructure:"jwt"`
	Bootstrap BootstrapSettings `mapstructure:"bootstrap"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// BootstrapSettings describes the superadmin created on first start. An empty
// email disables bootstrapping.
type BootstrapSettings struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// IntakeConfig controls the public contact endpoint.
type IntakeConfig struct {
	MaxBodyBytes int64           `mapstructure:"max_body_bytes"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles requests per client IP and route.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// NotificationConfig configures new-field notifications.
type NotificationConfig struct {
	NewFieldTTL time.Duration `mapstructure:"new_field_ttl"`
}

// MaintenanceConfig schedules the background cleanup jobs.
type MaintenanceConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	NotificationSchedule string `mapstructure:"notification_schedule"`
	CacheSchedule        string `mapstructure:"cache_schedule"`
	AuditSchedule        string `mapstructure:"audit_schedule"`
	AuditRetentionDays   int    `mapstructure:"audit_retention_days"`
}

// LoadConfig reads config.yaml from ./config and the supplied paths, a .env
// file when present, and FORMDESK_* environment variables, in increasing
// order of precedence.
func LoadConfig(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Intake.RateLimit.Enabled && (c.Intake.RateLimit.Requests <= 0 || c.Intake.RateLimit.Window <= 0) {
		return errors.New("config: intake rate limit needs positive requests and window")
	}
	if _, err := c.Server.Location(); err != nil {
		return fmt.Errorf("config: server timezone: %w", err)
	}
	return nil
}

// Location returns the zone used to render timestamps in exports.
func (s ServerConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(s.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.hsts", false)
	v.SetDefault("server.timezone", "UTC")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/formdesk.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.postgres_driver", "pgx")
	v.SetDefault("database.postgres.host", "127.0.0.1")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.username", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.mysql.host", "127.0.0.1")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.database", "")
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "0s")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "formdesk")
	v.SetDefault("auth.jwt.access_token_ttl", "8h")
	v.SetDefault("auth.bootstrap.name", "Administrator")
	v.SetDefault("auth.bootstrap.email", "")
	v.SetDefault("auth.bootstrap.password", "")

	v.SetDefault("intake.max_body_bytes", 1<<20)
	v.SetDefault("intake.rate_limit.enabled", true)
	v.SetDefault("intake.rate_limit.requests", 30)
	v.SetDefault("intake.rate_limit.window", "1m")

	v.SetDefault("notifications.new_field_ttl", "24h")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.notification_schedule", "@hourly")
	v.SetDefault("maintenance.cache_schedule", "@every 10m")
	v.SetDefault("maintenance.audit_schedule", "@daily")
	v.SetDefault("maintenance.audit_retention_days", 180)

	v.SetDefault("form_defaults.fallback.list", services.FallbackDefaults)
	v.SetDefault("form_defaults.fallback.detail", []string{})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
