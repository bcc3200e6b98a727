package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is loaded once at startup and passed by value or pointer into
// constructors. Nothing mutates it afterwards.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Reset    ResetConfig
	MFA      MFAConfig
	Email    EmailConfig
	Redis    RedisConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port             string
	Env              string
	LogLevel         string
	BasePath         string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	CookieDomain     string
	CookieSecure     bool
	AuthRequestLimit int // per IP per minute on public auth endpoints
}

type AuthConfig struct {
	AccessSecret         string
	RefreshSecret        string
	Issuer               string
	AccessTokenExpiry    time.Duration
	RefreshTokenExpiry   time.Duration
	SessionTTL           time.Duration
	EmailVerificationTTL time.Duration
	StoreTimeout         time.Duration
	CleanupInterval      time.Duration
	PasswordPolicy       bool // enforce pkg/auth strength rules on new passwords
}

// ResetConfig governs the forgot-password throttle and code lifetime
type ResetConfig struct {
	Window      time.Duration
	MaxAttempts int
	CodeTTL     time.Duration
}

type MFAConfig struct {
	Issuer        string
	MaxAttempts   int
	LockoutWindow time.Duration
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	AppOrigin   string
	SendTimeout time.Duration
}

// RedisConfig is optional; an empty Addr disables the MFA lockout
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "warden"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			Env:              env,
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			BasePath:         strings.TrimSuffix(getEnv("BASE_PATH", ""), "/"),
			ReadTimeout:      getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:     getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:      getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			CookieDomain:     getEnv("COOKIE_DOMAIN", ""),
			CookieSecure:     getEnvAsBool("COOKIE_SECURE", env == "production"),
			AuthRequestLimit: getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 10),
		},
		Auth: AuthConfig{
			AccessSecret:         getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret:        getEnv("JWT_REFRESH_SECRET", ""),
			Issuer:               getEnv("JWT_ISSUER", "warden"),
			AccessTokenExpiry:    getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:   getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 30*24*time.Hour),
			SessionTTL:           getEnvAsDuration("SESSION_TTL", 30*24*time.Hour),
			EmailVerificationTTL: getEnvAsDuration("EMAIL_VERIFICATION_TTL", 45*time.Minute),
			StoreTimeout:         getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
			CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			PasswordPolicy:       getEnvAsBool("PASSWORD_POLICY_ENFORCED", false),
		},
		Reset: ResetConfig{
			Window:      getEnvAsDuration("RESET_RATE_WINDOW", 3*time.Minute),
			MaxAttempts: getEnvAsInt("RESET_RATE_MAX", 2),
			CodeTTL:     getEnvAsDuration("RESET_CODE_TTL", 1*time.Hour),
		},
		MFA: MFAConfig{
			Issuer:        getEnv("MFA_ISSUER", "Warden"),
			MaxAttempts:   getEnvAsInt("MFA_MAX_ATTEMPTS", 5),
			LockoutWindow: getEnvAsDuration("MFA_LOCKOUT_WINDOW", 15*time.Minute),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@localhost"),
			AppOrigin:   strings.TrimSuffix(getEnv("APP_ORIGIN", "http://localhost:3000"), "/"),
			SendTimeout: getEnvAsDuration("MAILER_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the service cannot run safely with
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret("JWT_ACCESS_SECRET", c.Auth.AccessSecret, c.Server.Env); err != nil {
		return err
	}
	if err := validateJWTSecret("JWT_REFRESH_SECRET", c.Auth.RefreshSecret, c.Server.Env); err != nil {
		return err
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if c.Auth.AccessTokenExpiry <= 0 || c.Auth.RefreshTokenExpiry <= 0 || c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("token and session lifetimes must be positive")
	}
	if c.Reset.MaxAttempts < 1 || c.Reset.Window <= 0 {
		return fmt.Errorf("RESET_RATE_MAX must be >= 1 and RESET_RATE_WINDOW positive")
	}
	if c.MFA.MaxAttempts < 1 {
		return fmt.Errorf("MFA_MAX_ATTEMPTS must be >= 1")
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for a signing secret
func validateJWTSecret(name, secret, env string) error {
	if secret == "" {
		return fmt.Errorf("%s is required", name)
	}

	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
