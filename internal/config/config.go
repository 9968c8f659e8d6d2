package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	CORSOrigins []string
	LogLevel    string
	LogFormat   string

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	OTP  OTPConfig
	SMTP SMTPConfig
	S3   S3Config
}

// OTPConfig controls the one-time code handed out during registration.
type OTPConfig struct {
	Code             string
	TTL              time.Duration
	ExposeInResponse bool
}

// SMTPConfig holds outbound mail transport settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// S3Config holds the image-host bucket and credentials.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	PublicBaseURL   string
}

// Load reads configuration from the environment. Every required key that is
// missing is reported in a single joined error.
func Load() (Config, error) {
	cfg := Config{
		Env:         fallback(os.Getenv("APP_ENV"), "development"),
		Port:        fallback(os.Getenv("PORT"), "8080"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CORSOrigins: parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), "*")),
		LogLevel:    fallback(os.Getenv("LOG_LEVEL"), "info"),
		LogFormat:   fallback(os.Getenv("LOG_FORMAT"), "console"),
		JWTSecret:   strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:   fallback(os.Getenv("JWT_ISSUER"), "onboard-backend"),
		JWTTTL:      minutes(os.Getenv("JWT_TTL_MINUTES"), 24*time.Hour),
		OTP: OTPConfig{
			Code:             strings.TrimSpace(os.Getenv("OTP_CODE")),
			TTL:              minutes(os.Getenv("OTP_TTL_MINUTES"), 10*time.Minute),
			ExposeInResponse: boolean(os.Getenv("OTP_EXPOSE_IN_RESPONSE"), true),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
			Port:     strings.TrimSpace(os.Getenv("SMTP_PORT")),
			Username: strings.TrimSpace(os.Getenv("SMTP_USERNAME")),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		S3: S3Config{
			Bucket:          strings.TrimSpace(os.Getenv("S3_BUCKET")),
			Region:          strings.TrimSpace(os.Getenv("S3_REGION")),
			AccessKeyID:     strings.TrimSpace(os.Getenv("S3_ACCESS_KEY_ID")),
			SecretAccessKey: strings.TrimSpace(os.Getenv("S3_SECRET_ACCESS_KEY")),
			Endpoint:        strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			PublicBaseURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("S3_PUBLIC_BASE_URL")), "/"),
		},
	}
	cfg.SMTP.From = fallback(os.Getenv("SMTP_FROM"), cfg.SMTP.Username)

	required := []struct {
		key   string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"JWT_SECRET", cfg.JWTSecret},
		{"OTP_CODE", cfg.OTP.Code},
		{"SMTP_HOST", cfg.SMTP.Host},
		{"SMTP_PORT", cfg.SMTP.Port},
		{"SMTP_USERNAME", cfg.SMTP.Username},
		{"SMTP_PASSWORD", cfg.SMTP.Password},
		{"S3_BUCKET", cfg.S3.Bucket},
		{"S3_REGION", cfg.S3.Region},
		{"S3_ACCESS_KEY_ID", cfg.S3.AccessKeyID},
		{"S3_SECRET_ACCESS_KEY", cfg.S3.SecretAccessKey},
	}
	var errs []error
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Address returns the host:port pair of the mail relay.
func (c SMTPConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func minutes(value string, def time.Duration) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Minute
}

func boolean(value string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return b
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
