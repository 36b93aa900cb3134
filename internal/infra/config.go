package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/caregrid/sentinel/internal/domain"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"sentinel"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"sentinel"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"sentinel"`
	PGMaxConns  int    `env:"PG_MAX_CONNS" envDefault:"20"`
	PGMinConns  int    `env:"PG_MIN_CONNS" envDefault:"2"`

	// JWT
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"8h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3200"`

	// Migrations
	MigrationsDir string `env:"MIGRATIONS_DIR"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// Fingerprinting
	FingerprintMode string `env:"FINGERPRINT_MODE" envDefault:"strict"`
	FingerprintKey  string `env:"FINGERPRINT_KEY"`

	// Login throttle
	MaxLoginAttempts int           `env:"MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	MaxBanAttempts   int           `env:"MAX_BAN_ATTEMPTS" envDefault:"10"`
	LockoutDuration  time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
	BanDuration      time.Duration `env:"BAN_DURATION" envDefault:"30m"`

	// Session integrity
	MaxSessionLifetime       time.Duration `env:"MAX_SESSION_LIFETIME" envDefault:"8h"`
	SessionRotationInterval  time.Duration `env:"SESSION_ROTATION_INTERVAL" envDefault:"30m"`
	PropagationBlockDuration time.Duration `env:"PROPAGATION_BLOCK_DURATION" envDefault:"24h"`

	// Access control
	MaxPrivilegeAttempts int `env:"MAX_PRIVILEGE_ATTEMPTS" envDefault:"3"`

	// Retention archive
	ArchiveDir string `env:"ARCHIVE_DIR" envDefault:"/var/lib/sentinel/archive"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure or inconsistent configuration that must not
// run in production. Set ALLOW_INSECURE_DEFAULTS=true to bypass the secret
// checks (local dev only).
func (c *Config) Validate() error {
	switch domain.FingerprintMode(c.FingerprintMode) {
	case domain.FingerprintStrict, domain.FingerprintModerate, domain.FingerprintRelaxed:
	default:
		return fmt.Errorf("FINGERPRINT_MODE must be strict, moderate or relaxed, got %q", c.FingerprintMode)
	}
	if c.MaxBanAttempts <= c.MaxLoginAttempts {
		return fmt.Errorf("MAX_BAN_ATTEMPTS (%d) must exceed MAX_LOGIN_ATTEMPTS (%d)", c.MaxBanAttempts, c.MaxLoginAttempts)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
