package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string

	// BaseURL is the externally reachable address of the service,
	// embedded in password-reset links.
	BaseURL string

	SessionCookieName string
	SessionMaxAge     time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPUseTLS   bool
	SMTPTimeout  time.Duration

	ResetTokenTTL time.Duration
}

func Load() *Config {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		host := getEnv("PSQL_HOST", "localhost")
		port := getEnv("PSQL_PORT", "5432")
		user := getEnv("PSQL_USER", "postgres")
		password := getEnv("PSQL_PASSWORD", "postgres")
		dbName := getEnv("PSQL_DB_NAME", "authsvc")

		u := &url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(user, password),
			Host:   host + ":" + port,
			Path:   dbName,
		}
		q := u.Query()
		q.Set("sslmode", "disable")
		u.RawQuery = q.Encode()
		databaseURL = u.String()
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DatabaseURL: databaseURL,

		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "session"),
		SessionMaxAge:     getDurationSeconds("SESSION_MAX_AGE_SECONDS", time.Hour),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),
		SMTPUseTLS:   getEnv("SMTP_USE_TLS", "false") == "true",
		SMTPTimeout:  getDurationSeconds("SMTP_TIMEOUT_SECONDS", 10*time.Second),

		ResetTokenTTL: getDurationSeconds("RESET_TOKEN_TTL_SECONDS", 30*time.Minute),
	}
}

// Validate reports missing settings the service cannot run without.
// Called once at startup; a misconfigured process must not come up.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}
	if c.SMTPHost == "" || c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_HOST and SMTP_FROM are required for password-reset mail")
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE_SECONDS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDurationSeconds(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return time.Duration(n) * time.Second
}
