// Package config provides configuration management for drivectl.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/rescale/drivectl/internal/constants"
)

// Config holds every setting the client needs to reach the Drive services.
//
// INI format:
//
//	[services]
//	auth_url = http://localhost:8080
//	search_url = http://localhost:8085
//	file_url = http://localhost:8084
//	process_url = http://localhost:8083
//	payment_url = http://localhost:8086
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	no_proxy =
//	warmup = false
//
//	[http]
//	max_retries = 5
//	retry_wait_min = 1s
//	retry_wait_max = 30s
//	requests_per_second = 10
//	request_burst = 20
//
//	[upload]
//	concurrency = 4
//
//	[notify]
//	desktop = true
//
//	[log]
//	file =
//
//	[sink]
//	s3_region = us-east-1
//	s3_endpoint =
//	azure_account_url =
//	azure_sas_token =
type Config struct {
	// Service base URLs
	AuthURL    string
	SearchURL  string
	FileURL    string
	ProcessURL string
	PaymentURL string

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string // never written to disk
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	// HTTP behaviour
	MaxRetries        int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64
	RequestBurst      int

	// Upload settings
	UploadConcurrency int

	// Desktop notifications (the event bus always receives notifications)
	DesktopNotifications bool

	// LogFile enables a rotating log file when non-empty
	LogFile string

	// Archive sinks
	S3Region        string
	S3Endpoint      string
	AzureAccountURL string
	AzureSASToken   string

	// Session storage
	TokenFile   string
	ProfileFile string
}

// Validation errors
var (
	ErrMissingServiceURL = errors.New("service URL is required")
	ErrInvalidProxyMode  = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrInvalidURL        = errors.New("service URL must be absolute http(s)")
)

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		AuthURL:              "http://localhost:8080",
		SearchURL:            "http://localhost:8085",
		FileURL:              "http://localhost:8084",
		ProcessURL:           "http://localhost:8083",
		PaymentURL:           "http://localhost:8086",
		ProxyMode:            "no-proxy",
		ProxyPort:            8080,
		MaxRetries:           constants.MaxRetries,
		RetryWaitMin:         1 * time.Second,
		RetryWaitMax:         30 * time.Second,
		RequestsPerSecond:    constants.DefaultRequestsPerSecond,
		RequestBurst:         constants.DefaultRequestBurst,
		UploadConcurrency:    constants.DefaultUploadConcurrency,
		DesktopNotifications: true,
		S3Region:             "us-east-1",
		TokenFile:            GetDefaultTokenPath(),
		ProfileFile:          GetDefaultProfilePath(),
	}
}

// LoadConfig loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	services := iniFile.Section("services")
	cfg.AuthURL = services.Key("auth_url").MustString(cfg.AuthURL)
	cfg.SearchURL = services.Key("search_url").MustString(cfg.SearchURL)
	cfg.FileURL = services.Key("file_url").MustString(cfg.FileURL)
	cfg.ProcessURL = services.Key("process_url").MustString(cfg.ProcessURL)
	cfg.PaymentURL = services.Key("payment_url").MustString(cfg.PaymentURL)

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(cfg.ProxyPort)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()
	cfg.ProxyWarmup = proxy.Key("warmup").MustBool(false)

	httpSection := iniFile.Section("http")
	cfg.MaxRetries = httpSection.Key("max_retries").MustInt(cfg.MaxRetries)
	cfg.RetryWaitMin = httpSection.Key("retry_wait_min").MustDuration(cfg.RetryWaitMin)
	cfg.RetryWaitMax = httpSection.Key("retry_wait_max").MustDuration(cfg.RetryWaitMax)
	cfg.RequestsPerSecond = httpSection.Key("requests_per_second").MustFloat64(cfg.RequestsPerSecond)
	cfg.RequestBurst = httpSection.Key("request_burst").MustInt(cfg.RequestBurst)

	cfg.UploadConcurrency = iniFile.Section("upload").Key("concurrency").MustInt(cfg.UploadConcurrency)
	cfg.DesktopNotifications = iniFile.Section("notify").Key("desktop").MustBool(cfg.DesktopNotifications)
	cfg.LogFile = iniFile.Section("log").Key("file").String()

	sink := iniFile.Section("sink")
	cfg.S3Region = sink.Key("s3_region").MustString(cfg.S3Region)
	cfg.S3Endpoint = sink.Key("s3_endpoint").String()
	cfg.AzureAccountURL = sink.Key("azure_account_url").String()
	cfg.AzureSASToken = sink.Key("azure_sas_token").String()

	return cfg, nil
}

// SaveConfig saves configuration to an INI file.
// The proxy password is deliberately left out.
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = GetDefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	sections := []struct {
		name   string
		values [][2]string
	}{
		{"services", [][2]string{
			{"auth_url", cfg.AuthURL},
			{"search_url", cfg.SearchURL},
			{"file_url", cfg.FileURL},
			{"process_url", cfg.ProcessURL},
			{"payment_url", cfg.PaymentURL},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.ProxyMode},
			{"host", cfg.ProxyHost},
			{"port", strconv.Itoa(cfg.ProxyPort)},
			{"user", cfg.ProxyUser},
			{"no_proxy", cfg.NoProxy},
			{"warmup", strconv.FormatBool(cfg.ProxyWarmup)},
		}},
		{"http", [][2]string{
			{"max_retries", strconv.Itoa(cfg.MaxRetries)},
			{"retry_wait_min", cfg.RetryWaitMin.String()},
			{"retry_wait_max", cfg.RetryWaitMax.String()},
			{"requests_per_second", strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)},
			{"request_burst", strconv.Itoa(cfg.RequestBurst)},
		}},
		{"upload", [][2]string{
			{"concurrency", strconv.Itoa(cfg.UploadConcurrency)},
		}},
		{"notify", [][2]string{
			{"desktop", strconv.FormatBool(cfg.DesktopNotifications)},
		}},
		{"log", [][2]string{
			{"file", cfg.LogFile},
		}},
		{"sink", [][2]string{
			{"s3_region", cfg.S3Region},
			{"s3_endpoint", cfg.S3Endpoint},
			{"azure_account_url", cfg.AzureAccountURL},
			{"azure_sas_token", cfg.AzureSASToken},
		}},
	}

	for _, s := range sections {
		section, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.values {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// temp file + rename so a crash never leaves a half written config
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Overrides carries values supplied on the command line. Empty fields are ignored.
type Overrides struct {
	AuthURL    string
	SearchURL  string
	FileURL    string
	ProcessURL string
	PaymentURL string
	TokenFile  string
	LogFile    string
	NoNotify   bool
}

// ApplyOverrides merges environment variables and flags into the config.
//
// Priority (highest to lowest):
//  1. Flags (Overrides)
//  2. DRIVE_* environment variables
//  3. Config file
//  4. Defaults
func (c *Config) ApplyOverrides(o Overrides) {
	pick := func(current *string, env, flag string) {
		if v := os.Getenv(env); v != "" {
			*current = v
		}
		if flag != "" {
			*current = flag
		}
	}

	pick(&c.AuthURL, "DRIVE_AUTH_URL", o.AuthURL)
	pick(&c.SearchURL, "DRIVE_SEARCH_URL", o.SearchURL)
	pick(&c.FileURL, "DRIVE_FILE_URL", o.FileURL)
	pick(&c.ProcessURL, "DRIVE_PROCESS_URL", o.ProcessURL)
	pick(&c.PaymentURL, "DRIVE_PAYMENT_URL", o.PaymentURL)
	pick(&c.TokenFile, "DRIVE_TOKEN_FILE", o.TokenFile)
	pick(&c.LogFile, "DRIVE_LOG_FILE", o.LogFile)
	pick(&c.ProxyPassword, "DRIVE_PROXY_PASSWORD", "")
	pick(&c.AzureSASToken, "DRIVE_AZURE_SAS_TOKEN", "")

	if o.NoNotify {
		c.DesktopNotifications = false
	}
}

// Validate checks that the config can be used to build an API client.
func (c *Config) Validate() error {
	urls := map[string]string{
		"auth_url":    c.AuthURL,
		"search_url":  c.SearchURL,
		"file_url":    c.FileURL,
		"process_url": c.ProcessURL,
		"payment_url": c.PaymentURL,
	}
	for name, raw := range urls {
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("%s: %w", name, ErrMissingServiceURL)
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s %q: %w", name, raw, ErrInvalidURL)
		}
	}

	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrInvalidProxyMode
	}

	if c.UploadConcurrency < 1 {
		c.UploadConcurrency = 1
	}
	if c.UploadConcurrency > constants.MaxUploadConcurrency {
		c.UploadConcurrency = constants.MaxUploadConcurrency
	}
	return nil
}
