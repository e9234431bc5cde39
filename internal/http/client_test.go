package http

import (
	nethttp "net/http"
	"testing"

	"github.com/rescale/drivectl/internal/config"
)

func TestCreateOptimizedClient_NoTimeoutAndWidePool(t *testing.T) {
	client, err := CreateOptimizedClient(config.NewConfig())
	if err != nil {
		t.Fatalf("CreateOptimizedClient() error = %v", err)
	}
	if client.Timeout != 0 {
		t.Errorf("Timeout = %v, transfers are bounded by context", client.Timeout)
	}
	tr := client.Transport.(*nethttp.Transport)
	if tr.MaxIdleConns != 512 {
		t.Errorf("MaxIdleConns = %d, want 512", tr.MaxIdleConns)
	}
	if !tr.DisableCompression {
		t.Error("compression should be disabled for transfers")
	}
}

func TestCreateOptimizedClient_ProxyDisablesHTTP2(t *testing.T) {
	t.Setenv("FORCE_HTTP2", "")
	cfg := config.NewConfig()
	cfg.ProxyMode = "basic"
	cfg.ProxyHost = "proxy.corp"

	client, err := CreateOptimizedClient(cfg)
	if err != nil {
		t.Fatalf("CreateOptimizedClient() error = %v", err)
	}
	tr := client.Transport.(*nethttp.Transport)
	if tr.ForceAttemptHTTP2 {
		t.Error("HTTP/2 should be off behind a proxy")
	}
	if tr.TLSNextProto == nil || len(tr.TLSNextProto) != 0 {
		t.Error("TLSNextProto should be an empty map to force HTTP/1.1")
	}
}

func TestProxyActive(t *testing.T) {
	t.Setenv("HTTP_PROXY", "")
	t.Setenv("HTTPS_PROXY", "")
	t.Setenv("http_proxy", "")
	t.Setenv("https_proxy", "")

	cfg := config.NewConfig()
	if proxyActive(cfg) {
		t.Error("no-proxy mode is never active")
	}

	cfg.ProxyMode = "system"
	if proxyActive(cfg) {
		t.Error("system mode without env proxy should be inactive")
	}

	t.Setenv("HTTPS_PROXY", "http://proxy.corp:3128")
	if !proxyActive(cfg) {
		t.Error("system mode with HTTPS_PROXY should be active")
	}
}
