// Package config loads the client's configuration once at startup. The
// resulting Config is immutable; nothing re-reads the environment later.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultBaseURL = "https://loan-platform.onrender.com/api"

// Config holds everything the client needs. BaseURL may still be superseded
// by a stored override, resolved once by the caller before construction of
// the API client.
type Config struct {
	BaseURL           string
	PaystackPublicKey string
	Currency          string
	StorePath         string
	StorePassphrase   string
	UploadTimeout     time.Duration
	LogLevel          string
	LogFormat         string
}

// Load reads configuration from a .env file (if present) and the
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		BaseURL:           strings.TrimSpace(getEnv("PESAFLOW_API_URL", defaultBaseURL)),
		PaystackPublicKey: getEnv("PESAFLOW_PAYSTACK_PUBLIC_KEY", ""),
		Currency:          getEnv("PESAFLOW_CURRENCY", "KES"),
		StorePath:         getEnv("PESAFLOW_STORE_PATH", "pesaflow.db"),
		StorePassphrase:   getEnv("PESAFLOW_STORE_KEY", ""),
		LogLevel:          getEnv("PESAFLOW_LOG_LEVEL", "info"),
		LogFormat:         getEnv("PESAFLOW_LOG_FORMAT", "text"),
	}

	uploadSecs, _ := strconv.Atoi(getEnv("PESAFLOW_UPLOAD_TIMEOUT_SECONDS", "60"))
	if uploadSecs <= 0 {
		uploadSecs = 60
	}
	cfg.UploadTimeout = time.Duration(uploadSecs) * time.Second

	if err := validateBaseURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid PESAFLOW_API_URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid PESAFLOW_API_URL %q: must be an http(s) URL", raw)
	}
	return nil
}

// ValidateBaseURL checks a base-URL override before it is stored or used.
func ValidateBaseURL(raw string) error {
	return validateBaseURL(strings.TrimSpace(raw))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
