// Package config collects the auth service settings from the environment.
// Storage and logger settings live next to their packages (pkg/database,
// pkg/utilities) and are read there.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/resilience"
)

type Config struct {
	HTTPAddr string
	// BaseURL prefixes password-reset links. Empty means derive from the request.
	BaseURL string
	// StoreDriver selects the credential/reset-token backend: mongo or postgres.
	StoreDriver string
	// RedisURL enables the token revocation list when set.
	RedisURL string

	JWT        JWTConfig
	BcryptCost int

	UserServiceURL           string
	NotificationServiceURL   string
	NotificationServiceToken string
	Breaker                  resilience.Settings

	Mail MailConfig
}

type JWTConfig struct {
	Secret         string
	AllowEphemeral bool
	Issuer         string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
}

type MailConfig struct {
	Provider       string
	From           string
	FailureIsFatal bool
	MailgunDomain  string
	MailgunAPIKey  string
	SendGridAPIKey string
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
}

// ConfigFromEnv reads service config from environment variables, falling back
// to local-development defaults.
func ConfigFromEnv() Config {
	br := resilience.DefaultSettings()
	br.WindowSize = uint32(envInt("BREAKER_WINDOW_SIZE", int(br.WindowSize)))
	br.MinRequests = uint32(envInt("BREAKER_MIN_REQUESTS", int(br.MinRequests)))
	br.FailureRatio = envFloat("BREAKER_FAILURE_RATIO", br.FailureRatio)
	br.OpenTimeout = envDuration("BREAKER_OPEN_TIMEOUT", br.OpenTimeout)
	br.HalfOpenRequests = uint32(envInt("BREAKER_HALF_OPEN_REQUESTS", int(br.HalfOpenRequests)))
	br.CallTimeout = envDuration("REMOTE_TIMEOUT", br.CallTimeout)

	return Config{
		HTTPAddr:    env("HTTP_ADDR", "0.0.0.0:8431"),
		BaseURL:     strings.TrimRight(os.Getenv("APP_BASE_URL"), "/"),
		StoreDriver: strings.ToLower(env("STORE_DRIVER", "mongo")),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AllowEphemeral: os.Getenv("JWT_ALLOW_EPHEMERAL") == "1",
			Issuer:         env("JWT_ISSUER", "savings-group-auth"),
			AccessTTL:      envDuration("JWT_ACCESS_TTL", 24*time.Hour),
			RefreshTTL:     envDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		BcryptCost:               envInt("BCRYPT_COST", 12),
		UserServiceURL:           strings.TrimRight(os.Getenv("USER_SERVICE_URL"), "/"),
		NotificationServiceURL:   strings.TrimRight(os.Getenv("NOTIFICATION_SERVICE_URL"), "/"),
		NotificationServiceToken: os.Getenv("NOTIFICATION_SERVICE_TOKEN"),
		Breaker:                  br,
		Mail: MailConfig{
			Provider:       strings.ToLower(env("MAIL_PROVIDER", "log")),
			From:           env("MAIL_FROM", "no-reply@savingsgroup.local"),
			FailureIsFatal: env("MAIL_FAILURE_FATAL", "true") != "false",
			MailgunDomain:  os.Getenv("MAILGUN_DOMAIN"),
			MailgunAPIKey:  os.Getenv("MAILGUN_API_KEY"),
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			SMTPHost:       os.Getenv("SMTP_HOST"),
			SMTPPort:       env("SMTP_PORT", "587"),
			SMTPUsername:   os.Getenv("SMTP_USERNAME"),
			SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
		},
	}
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return v
}

// envDuration accepts Go durations ("15m") or plain seconds ("900").
func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
