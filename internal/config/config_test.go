package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.ProxyMode != "no-proxy" {
		t.Errorf("ProxyMode = %q, want %q", cfg.ProxyMode, "no-proxy")
	}
	if cfg.UploadConcurrency != 4 {
		t.Errorf("UploadConcurrency = %d, want 4", cfg.UploadConcurrency)
	}
	if !cfg.DesktopNotifications {
		t.Error("DesktopNotifications should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.ini"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.SearchURL != NewConfig().SearchURL {
		t.Errorf("SearchURL = %q, want default", cfg.SearchURL)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")

	cfg := NewConfig()
	cfg.AuthURL = "https://auth.example.com"
	cfg.SearchURL = "https://search.example.com"
	cfg.ProxyMode = "basic"
	cfg.ProxyHost = "proxy.local"
	cfg.ProxyPort = 3128
	cfg.ProxyPassword = "secret"
	cfg.RetryWaitMax = 45 * time.Second
	cfg.RequestsPerSecond = 2.5
	cfg.UploadConcurrency = 8
	cfg.DesktopNotifications = false
	cfg.S3Endpoint = "http://minio:9000"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("config permissions = %04o, want owner only", perm)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if loaded.AuthURL != cfg.AuthURL {
		t.Errorf("AuthURL = %q, want %q", loaded.AuthURL, cfg.AuthURL)
	}
	if loaded.ProxyHost != "proxy.local" || loaded.ProxyPort != 3128 {
		t.Errorf("proxy = %s:%d, want proxy.local:3128", loaded.ProxyHost, loaded.ProxyPort)
	}
	if loaded.ProxyPassword != "" {
		t.Error("proxy password must not be persisted")
	}
	if loaded.RetryWaitMax != 45*time.Second {
		t.Errorf("RetryWaitMax = %v, want 45s", loaded.RetryWaitMax)
	}
	if loaded.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond = %v, want 2.5", loaded.RequestsPerSecond)
	}
	if loaded.UploadConcurrency != 8 {
		t.Errorf("UploadConcurrency = %d, want 8", loaded.UploadConcurrency)
	}
	if loaded.DesktopNotifications {
		t.Error("DesktopNotifications should be false after reload")
	}
	if loaded.S3Endpoint != "http://minio:9000" {
		t.Errorf("S3Endpoint = %q", loaded.S3Endpoint)
	}
}

func TestApplyOverridesPriority(t *testing.T) {
	t.Setenv("DRIVE_SEARCH_URL", "http://env-search:1")
	t.Setenv("DRIVE_AUTH_URL", "http://env-auth:1")

	cfg := NewConfig()
	cfg.ApplyOverrides(Overrides{
		AuthURL:  "http://flag-auth:2",
		NoNotify: true,
	})

	if cfg.AuthURL != "http://flag-auth:2" {
		t.Errorf("flag should win over env, AuthURL = %q", cfg.AuthURL)
	}
	if cfg.SearchURL != "http://env-search:1" {
		t.Errorf("env should win over file, SearchURL = %q", cfg.SearchURL)
	}
	if cfg.DesktopNotifications {
		t.Error("NoNotify should disable desktop notifications")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"empty url", func(c *Config) { c.FileURL = "" }, ErrMissingServiceURL},
		{"relative url", func(c *Config) { c.PaymentURL = "/checkout" }, ErrInvalidURL},
		{"ftp url", func(c *Config) { c.AuthURL = "ftp://auth" }, ErrInvalidURL},
		{"bad proxy", func(c *Config) { c.ProxyMode = "socks" }, ErrInvalidProxyMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateClampsConcurrency(t *testing.T) {
	cfg := NewConfig()
	cfg.UploadConcurrency = 0
	_ = cfg.Validate()
	if cfg.UploadConcurrency != 1 {
		t.Errorf("UploadConcurrency = %d, want 1", cfg.UploadConcurrency)
	}

	cfg.UploadConcurrency = 1000
	_ = cfg.Validate()
	if cfg.UploadConcurrency != 16 {
		t.Errorf("UploadConcurrency = %d, want 16", cfg.UploadConcurrency)
	}
}

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")

	if err := WriteTokenFile(path, "  abc.def.ghi \n"); err != nil {
		t.Fatalf("WriteTokenFile() error = %v", err)
	}
	got, err := ReadTokenFile(path)
	if err != nil {
		t.Fatalf("ReadTokenFile() error = %v", err)
	}
	if got != "abc.def.ghi" {
		t.Errorf("token = %q, want %q", got, "abc.def.ghi")
	}

	if err := WriteTokenFile(path, "   "); err == nil {
		t.Error("writing an empty token should fail")
	}

	if err := RemoveFile(path); err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}
	if err := RemoveFile(path); err != nil {
		t.Errorf("removing a missing file should succeed, got %v", err)
	}
	if _, err := ReadTokenFile(path); err == nil {
		t.Error("reading a removed token should fail")
	}
}

func TestReadTokenFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTokenFile(path); !errors.Is(err, ErrTokenFileEmpty) {
		t.Errorf("ReadTokenFile() = %v, want ErrTokenFileEmpty", err)
	}
}
