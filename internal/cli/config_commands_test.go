package cli

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rescale/drivectl/internal/config"
)

// withConfigFile points --config at path for the duration of the test.
func withConfigFile(t *testing.T, path string) {
	t.Helper()
	old := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = old })
}

func TestConfigCommandTree(t *testing.T) {
	cmd := newConfigCmd()
	want := map[string]bool{"init": false, "show": false, "test": false, "path": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
		if sub.Short == "" {
			t.Errorf("%s has no short description", sub.Name())
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("config %s not registered", name)
		}
	}
}

func TestConfigInitDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	withConfigFile(t, path)

	cmd := newConfigInitCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--defaults"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out.String(), "Configuration saved to: "+path) {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AuthURL != config.NewConfig().AuthURL {
		t.Errorf("AuthURL = %q", cfg.AuthURL)
	}
}

func TestConfigInitKeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte("[services]\nauth_url = https://auth.example.com\n"), 0600); err != nil {
		t.Fatal(err)
	}
	withConfigFile(t, path)

	cmd := newConfigInitCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--defaults"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out.String(), "already exists") {
		t.Errorf("existing file not reported:\n%s", out.String())
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "auth.example.com") {
		t.Error("existing file was overwritten without --force")
	}
}

func TestPromptConfig(t *testing.T) {
	input := strings.Join([]string{
		"https://auth.example.com", // auth
		"",                         // search keeps default
		"",                         // file
		"",                         // processing
		"",                         // payment
		"basic",                    // proxy mode
		"proxy.example.com",        // host
		"3128",                     // port
		"alice",                    // user
		"6",                        // concurrency
		"false",                    // notifications
	}, "\n") + "\n"

	cfg := config.NewConfig()
	defaultSearch := cfg.SearchURL
	var out bytes.Buffer
	if err := promptConfig(bufio.NewReader(strings.NewReader(input)), &out, cfg); err != nil {
		t.Fatalf("promptConfig: %v", err)
	}

	if cfg.AuthURL != "https://auth.example.com" || cfg.SearchURL != defaultSearch {
		t.Errorf("urls = %q, %q", cfg.AuthURL, cfg.SearchURL)
	}
	if cfg.ProxyMode != "basic" || cfg.ProxyHost != "proxy.example.com" || cfg.ProxyPort != 3128 || cfg.ProxyUser != "alice" {
		t.Errorf("proxy = %s %s:%d %s", cfg.ProxyMode, cfg.ProxyHost, cfg.ProxyPort, cfg.ProxyUser)
	}
	if cfg.UploadConcurrency != 6 || cfg.DesktopNotifications {
		t.Errorf("concurrency = %d, notifications = %t", cfg.UploadConcurrency, cfg.DesktopNotifications)
	}
}

func TestPromptConfigBadNumber(t *testing.T) {
	input := strings.Repeat("\n", 6) + "many\n"
	if err := promptConfig(bufio.NewReader(strings.NewReader(input)), &bytes.Buffer{}, config.NewConfig()); err == nil {
		t.Fatal("expected an error for a non-numeric concurrency")
	}
}

func TestPrintConfigMasksCredentials(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.TokenFile = filepath.Join(dir, "token")
	cfg.AzureSASToken = "sv=2024&sig=secret"
	if err := os.WriteFile(cfg.TokenFile, []byte("eyJhbGciOi.secret.token"), 0600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	printConfig(&out, cfg, filepath.Join(dir, "missing.ini"))
	s := out.String()

	if strings.Contains(s, "secret") {
		t.Errorf("secret printed:\n%s", s)
	}
	for _, want := range []string{"Token:      <set>", "Azure SAS Token:       <set>", "file does not exist"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestConfigPathCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drive.ini")
	withConfigFile(t, path)

	cmd := newConfigPathCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("path: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "from --config flag") || !strings.Contains(s, path) {
		t.Errorf("unexpected output:\n%s", s)
	}
	if !strings.Contains(s, "File does not exist") {
		t.Errorf("missing file not reported:\n%s", s)
	}
}
