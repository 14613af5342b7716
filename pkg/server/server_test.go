package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"routecodex-hq/routecodex/pkg/config"
)

func testConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddress: freeAddr(t),
		},
		Providers: map[string]config.ProviderConfig{
			"upstream": {
				ProviderProtocol:     "openai-chat",
				ProviderID:           "upstream",
				CompatibilityProfile: "openai",
				BaseURL:              upstreamURL,
				Auth:                 config.AuthConfig{Type: "apikey", APIKey: "sk-test"},
				Timeout:              5 * time.Second,
				Retry:                config.RetryConfig{Policy: "retry-immediate", MaxAttempts: 1, Delay: time.Millisecond},
			},
		},
		Routes: []config.RouteConfig{{
			ID:      "default",
			Default: true,
			Modules: []config.ModuleSpec{
				{Type: "provider", Config: map[string]any{"provider": "upstream"}},
				{Type: "llmswitch", Config: map[string]any{"name": "switch"}},
			},
		}},
		Audit: config.AuditConfig{Enabled: true, Backend: "memory"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().String()
}

func TestServerServesAndShutsDown(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"cmpl-1","choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer upstream.Close()

	srv, err := New(testConfig(t, upstream.URL+"/v1"))
	if err != nil {
		t.Fatal(err)
	}
	if !srv.Ready() {
		t.Error("server not ready after preload")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	base := "http://" + srv.httpServer.Addr
	waitForHealth(t, base)

	resp, err := http.Post(base+"/v1/chat/completions", "application/json",
		strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("no request id header")
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["id"] != "cmpl-1" {
		t.Errorf("body = %v", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown timed out")
	}
}

func TestNewRejectsUnknownProviderReference(t *testing.T) {
	cfg := testConfig(t, "https://api.example.com/v1")
	cfg.Routes[0].Modules[0].Config["provider"] = "missing"
	if _, err := New(cfg); err == nil {
		t.Error("preload accepted a route bound to an unknown provider")
	}
}

func waitForHealth(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(fmt.Errorf("server at %s never became healthy", base))
}
