package profile

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"routecodex-hq/routecodex/pkg/config"
	"routecodex-hq/routecodex/pkg/kernel"
)

func draft() *Draft {
	return &Draft{
		Endpoint: "https://api.example.com/v1/chat/completions",
		Headers:  map[string]string{},
		Body:     []byte(`{"model":"m"}`),
	}
}

func runtimeFor(provider string) *Runtime {
	return &Runtime{ProviderKey: provider, RequestID: "req-1"}
}

func TestIFlowUserAgentPrecedence(t *testing.T) {
	p := newIFlowProfile("")
	d := draft()
	d.Headers["User-Agent"] = "curl/8.7.1"

	p.ApplyHeaderPolicy(d, runtimeFor("iflow-1"))

	if d.Headers["User-Agent"] != "iFlow-Cli" {
		t.Errorf("User-Agent = %q, want iFlow-Cli", d.Headers["User-Agent"])
	}
}

func TestIFlowWebSearchEndpointOverride(t *testing.T) {
	p := newIFlowProfile("")
	d := draft()
	rt := runtimeFor("iflow-1")
	rt.RouteHint = RouteHintWebSearch

	if err := p.ApplyRequestPolicy(d, rt); err != nil {
		t.Fatal(err)
	}
	if d.Endpoint != "https://api.example.com/v1/chat/retrieve" {
		t.Errorf("endpoint = %q", d.Endpoint)
	}
}

func TestIFlowBusinessErrorClassification(t *testing.T) {
	p := newIFlowProfile("")
	rt := runtimeFor("iflow-1")

	err := p.ApplyResponsePolicy(http.StatusOK, []byte(`{"status":439,"msg":"token expired"}`), rt)
	var ke *kernel.Error
	if !errors.As(err, &ke) {
		t.Fatalf("error type = %T", err)
	}
	if ke.Code != kernel.CodeTokenExpired || ke.UpstreamCode != 439 {
		t.Errorf("error = %+v", ke)
	}

	err = p.ApplyResponsePolicy(http.StatusOK, []byte(`{"error_code":1001,"msg":"bad request"}`), rt)
	if !errors.As(err, &ke) {
		t.Fatalf("error type = %T", err)
	}
	if ke.Code != "HTTP_400" || ke.StatusCode != http.StatusBadRequest {
		t.Errorf("error = %+v", ke)
	}

	if err := p.ApplyResponsePolicy(http.StatusOK, []byte(`{"choices":[]}`), rt); err != nil {
		t.Errorf("genuine success classified as error: %v", err)
	}
}

func TestIFlowSigning(t *testing.T) {
	p := newIFlowProfile("secret")
	d := draft()
	rt := runtimeFor("iflow-1")
	rt.SessionID = "s-1"
	rt.ConversationID = "c-1"

	p.ApplyHeaderPolicy(d, rt)
	if err := p.ApplySigningPolicy(d, rt); err != nil {
		t.Fatal(err)
	}
	sig := d.Headers["x-iflow-signature"]
	if len(sig) != 64 {
		t.Errorf("signature = %q, want 64 hex chars", sig)
	}

	// Same inputs sign identically.
	d2 := draft()
	p.ApplyHeaderPolicy(d2, rt)
	_ = p.ApplySigningPolicy(d2, rt)
	if d2.Headers["x-iflow-signature"] != sig {
		t.Error("signature not deterministic")
	}
}

func TestAntigravityStripsSessionHeaders(t *testing.T) {
	p := newAntigravityProfile()
	d := draft()
	d.Headers["session_id"] = "s"
	d.Headers["conversation_id"] = "c"
	d.Headers["X-Other"] = "keep"

	p.ApplyHeaderPolicy(d, runtimeFor("anti-1"))

	if _, ok := d.Headers["session_id"]; ok {
		t.Error("session_id not stripped")
	}
	if _, ok := d.Headers["conversation_id"]; ok {
		t.Error("conversation_id not stripped")
	}
	if d.Headers["X-Other"] != "keep" {
		t.Error("unrelated header stripped")
	}
}

func TestGLMMaxTokensRename(t *testing.T) {
	p := newGLMProfile()
	d := draft()
	d.Body = []byte(`{"model":"glm-4.7","max_output_tokens":100}`)

	if err := p.ApplyRequestPolicy(d, runtimeFor("glm-1")); err != nil {
		t.Fatal(err)
	}
	body := string(d.Body)
	if strings.Contains(body, "max_output_tokens") {
		t.Errorf("max_output_tokens survived: %s", body)
	}
	if !strings.Contains(body, `"max_tokens":100`) {
		t.Errorf("max_tokens missing: %s", body)
	}
}

func TestGeminiHeaderInjection(t *testing.T) {
	for _, p := range []Profile{newGeminiProfile(), newGeminiCLIProfile()} {
		d := draft()
		p.ApplyHeaderPolicy(d, runtimeFor("g-1"))
		if d.Headers["X-Goog-Api-Client"] == "" {
			t.Errorf("%s: X-Goog-Api-Client missing", p.ID())
		}
		if d.Headers["Client-Metadata"] == "" {
			t.Errorf("%s: Client-Metadata missing", p.ID())
		}
	}
}

func TestRegistryResolution(t *testing.T) {
	providers := map[string]config.ProviderConfig{
		"glm-main": {
			ProviderProtocol:     "openai-chat",
			ProviderID:           "glm-main",
			CompatibilityProfile: "glm",
		},
		"gem": {
			ProviderProtocol:     "gemini-chat",
			ProviderID:           "gem",
			CompatibilityProfile: "gemini",
		},
	}

	r, err := NewRegistry(providers)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	b, err := r.Resolve("glm-main", "openai-chat")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if b.Family != FamilyGLM || b.Profile.ID() != "glm-default" {
		t.Errorf("binding = %+v", b)
	}

	if _, err := r.Resolve("glm-main", "gemini-chat"); err == nil {
		t.Error("protocol mismatch accepted")
	}
	if _, err := r.Resolve("nope", ""); err == nil {
		t.Error("unknown provider accepted")
	}
}

func TestRegistryRejectsBadBindings(t *testing.T) {
	tests := []struct {
		name     string
		provider config.ProviderConfig
	}{
		{"unknown family", config.ProviderConfig{ProviderProtocol: "openai-chat", ProviderID: "p", CompatibilityProfile: "mystery"}},
		{"protocol not allowed", config.ProviderConfig{ProviderProtocol: "gemini-chat", ProviderID: "p", CompatibilityProfile: "anthropic"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(map[string]config.ProviderConfig{"p": tt.provider})
			if err == nil {
				t.Error("invalid binding accepted")
			}
		})
	}
}
