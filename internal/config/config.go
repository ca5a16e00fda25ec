package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvProduction = "production"

type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"development" validate:"required"`
	Port        string `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true" validate:"required"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true" validate:"required,min=16"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h" validate:"gt=0"`

	SessionStore string `envconfig:"SESSION_STORE" default:"postgres" validate:"oneof=postgres redis"`
	RedisURL     string `envconfig:"REDIS_URL" validate:"required_if=SessionStore redis"`

	// EnforceSingleDevice overrides the environment default when set.
	EnforceSingleDevice *bool `envconfig:"ENFORCE_SINGLE_DEVICE"`

	// SubscriptionFailOpen lets requests through when the subscription lookup
	// fails. Whether production should fail closed instead is still open.
	SubscriptionFailOpen      bool          `envconfig:"SUBSCRIPTION_FAIL_OPEN" default:"true"`
	SubscriptionLookupTimeout time.Duration `envconfig:"SUBSCRIPTION_LOOKUP_TIMEOUT" default:"2s" validate:"gt=0"`

	QuotaTimezone   string        `envconfig:"QUOTA_TIMEZONE" default:"UTC" validate:"required"`
	CatalogCacheTTL time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"1m" validate:"gte=0"`

	DataServiceURL     string   `envconfig:"DATA_SERVICE_URL" default:"http://localhost:3000" validate:"required,url"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	DailyResetInterval  time.Duration `envconfig:"DAILY_RESET_INTERVAL" default:"1h" validate:"gt=0"`
	ExpirySweepInterval time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"15m" validate:"gt=0"`

	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	HTTPIdleTimeout  time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(cfg.QuotaTimezone); err != nil {
		return nil, fmt.Errorf("invalid QUOTA_TIMEZONE %q: %w", cfg.QuotaTimezone, err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// SessionEnforced decides whether single-device checks run. Outside production
// they are off unless explicitly enabled; in production they are on unless
// explicitly disabled.
func (c *Config) SessionEnforced() bool {
	if c.EnforceSingleDevice != nil {
		return *c.EnforceSingleDevice
	}
	return c.IsProduction()
}

// QuotaLocation returns the calendar used to key daily usage buckets.
func (c *Config) QuotaLocation() *time.Location {
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
