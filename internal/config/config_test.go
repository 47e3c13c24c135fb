package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL == "" {
		t.Error("base URL empty")
	}
	if cfg.Currency != "KES" {
		t.Errorf("currency = %q, want KES", cfg.Currency)
	}
	if cfg.UploadTimeout != 60*time.Second {
		t.Errorf("upload timeout = %v, want 60s", cfg.UploadTimeout)
	}
}

func TestLoadRespectsEnv(t *testing.T) {
	t.Setenv("PESAFLOW_API_URL", "http://localhost:8000/api")
	t.Setenv("PESAFLOW_CURRENCY", "NGN")
	t.Setenv("PESAFLOW_UPLOAD_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://localhost:8000/api" {
		t.Errorf("base URL = %q", cfg.BaseURL)
	}
	if cfg.Currency != "NGN" {
		t.Errorf("currency = %q", cfg.Currency)
	}
	if cfg.UploadTimeout != 5*time.Second {
		t.Errorf("upload timeout = %v", cfg.UploadTimeout)
	}
}

func TestLoadRejectsBadBaseURL(t *testing.T) {
	t.Setenv("PESAFLOW_API_URL", "not a url")
	if _, err := Load(); err == nil {
		t.Error("expected error for malformed base URL")
	}

	t.Setenv("PESAFLOW_API_URL", "ftp://example.com")
	if _, err := Load(); err == nil {
		t.Error("expected error for non-http scheme")
	}
}

func TestValidateBaseURL(t *testing.T) {
	if err := ValidateBaseURL("https://api.example.com"); err != nil {
		t.Errorf("valid URL rejected: %v", err)
	}
	if err := ValidateBaseURL("nonsense"); err == nil {
		t.Error("expected error for nonsense URL")
	}
}
