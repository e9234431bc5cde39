package http

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/rescale/drivectl/internal/config"
)

// TestProxyFuncWithBypass_EmptyNoProxy verifies that an empty noProxy always routes through proxy.
func TestProxyFuncWithBypass_EmptyNoProxy(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "")

	req, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected proxy URL, got nil (direct)")
	}
	if result.Host != "proxy.corp:8080" {
		t.Errorf("expected proxy host proxy.corp:8080, got %s", result.Host)
	}
}

// TestProxyFuncWithBypass_WildcardDomain verifies *.example.com bypasses api.example.com.
func TestProxyFuncWithBypass_WildcardDomain(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.example.com")

	// Subdomain should bypass proxy
	req, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for api.example.com, got %v", result)
	}
}

// TestProxyFuncWithBypass_ExactDomain verifies example.com bypasses root and subdomains.
func TestProxyFuncWithBypass_ExactDomain(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "example.com")

	// Root domain should bypass
	req, _ := http.NewRequest("GET", "https://example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for example.com, got %v", result)
	}

	// Subdomain should also bypass (per httpproxy spec, domain without leading dot matches subdomains)
	req2, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result2, err := proxyFunc(req2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result2 != nil {
		t.Errorf("expected nil (bypass) for api.example.com, got %v", result2)
	}
}

// TestProxyFuncWithBypass_CIDR verifies IP/CIDR range matching.
func TestProxyFuncWithBypass_CIDR(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "10.0.0.0/8")

	// IP in range should bypass
	req, _ := http.NewRequest("GET", "http://10.1.2.3:8080/api", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for 10.1.2.3, got %v", result)
	}
}

// TestProxyFuncWithBypass_NonMatchingHost verifies non-matching hosts route through proxy.
func TestProxyFuncWithBypass_NonMatchingHost(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.internal.corp,10.0.0.0/8")

	// External host should use proxy
	req, _ := http.NewRequest("GET", "https://search.drive.io/api/metadata/user/search", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected proxy URL for search.drive.io, got nil (direct)")
	}
	if result.Host != "proxy.corp:8080" {
		t.Errorf("expected proxy host proxy.corp:8080, got %s", result.Host)
	}
}

// TestProxyFuncWithBypass_MultiplePatterns verifies comma-separated patterns work.
func TestProxyFuncWithBypass_MultiplePatterns(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.example.com, 192.168.0.0/16, internal.corp")

	tests := []struct {
		name       string
		url        string
		wantBypass bool
	}{
		{"wildcard match", "https://api.example.com/data", true},
		{"cidr match", "http://192.168.1.100/api", true},
		{"exact domain match", "https://internal.corp/status", true},
		{"non-match", "https://search.drive.io/api/metadata/user/search", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", tt.url, nil)
			result, err := proxyFunc(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantBypass && result != nil {
				t.Errorf("expected bypass (nil) for %s, got %v", tt.url, result)
			}
			if !tt.wantBypass && result == nil {
				t.Errorf("expected proxy for %s, got nil (bypass)", tt.url)
			}
		})
	}
}

func TestConfigureHTTPClient_Modes(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		host      string
		wantErr   bool
		wantProxy bool
	}{
		{"no proxy", "no-proxy", "", false, false},
		{"empty mode", "", "", false, false},
		{"basic", "basic", "proxy.corp", false, true},
		{"basic without host", "basic", "", false, false},
		{"ntlm without host", "ntlm", "", false, false},
		{"unknown", "socks5", "proxy.corp", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.ProxyMode = tt.mode
			cfg.ProxyHost = tt.host

			client, err := ConfigureHTTPClient(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ConfigureHTTPClient() error = %v", err)
			}

			tr, ok := client.Transport.(*http.Transport)
			if !ok {
				t.Fatalf("transport = %T, want *http.Transport", client.Transport)
			}
			if got := tr.Proxy != nil; got != tt.wantProxy {
				t.Errorf("proxy configured = %v, want %v", got, tt.wantProxy)
			}
		})
	}
}

func TestConfigureHTTPClient_NTLMWrapsTransport(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ProxyMode = "ntlm"
	cfg.ProxyHost = "proxy.corp"

	client, err := ConfigureHTTPClient(cfg)
	if err != nil {
		t.Fatalf("ConfigureHTTPClient() error = %v", err)
	}
	if _, ok := client.Transport.(*http.Transport); ok {
		t.Error("ntlm mode should wrap the transport in a negotiator")
	}
}

func TestBuildProxyURL(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ProxyHost = "proxy.corp"
	cfg.ProxyPort = 0
	cfg.ProxyUser = "alice"

	u := buildProxyURL(cfg)
	if u.Host != "proxy.corp:8080" {
		t.Errorf("host = %s, want default port 8080", u.Host)
	}
	if u.User != nil {
		t.Error("credentials must not be embedded without a password")
	}

	cfg.ProxyPassword = "pw"
	u = buildProxyURL(cfg)
	if u.User == nil || u.User.Username() != "alice" {
		t.Errorf("user = %v, want alice", u.User)
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	cfg := config.NewConfig()
	if NeedsProxyPassword(cfg) {
		t.Error("no-proxy mode never needs a password")
	}

	cfg.ProxyMode = "basic"
	cfg.ProxyUser = "alice"
	if !NeedsProxyPassword(cfg) {
		t.Error("basic mode with user and no password should need one")
	}

	cfg.ProxyPassword = "pw"
	if NeedsProxyPassword(cfg) {
		t.Error("password already set")
	}
}
