package modules

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"routecodex-hq/routecodex/pkg/bridge"
	"routecodex-hq/routecodex/pkg/config"
	"routecodex-hq/routecodex/pkg/kernel"
	"routecodex-hq/routecodex/pkg/pipeline"
	"routecodex-hq/routecodex/pkg/profile"
	"routecodex-hq/routecodex/pkg/resources"
)

func providerConfig(family, proto, baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		ProviderProtocol:     proto,
		ProviderID:           "test-provider",
		CompatibilityProfile: family,
		BaseURL:              baseURL,
		Auth:                 config.AuthConfig{Type: "apikey", APIKey: "sk-test"},
		Timeout:              5 * time.Second,
		Retry:                config.RetryConfig{Policy: "retry-immediate", MaxAttempts: 1, Delay: time.Millisecond},
	}
}

func buildProviderModule(t *testing.T, family, proto, baseURL string) *providerModule {
	t.Helper()
	pc := providerConfig(family, proto, baseURL)
	reg, err := profile.NewRegistry(map[string]config.ProviderConfig{"test-provider": pc})
	if err != nil {
		t.Fatal(err)
	}
	binding, err := reg.Resolve("test-provider", proto)
	if err != nil {
		t.Fatal(err)
	}
	m, err := newProvider("test-provider", pc, binding, nil, "", config.BreakerConfig{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func chatPayload(model string) *Payload {
	return &Payload{
		RequestID:    "req-1",
		ClientFormat: FormatOpenAIChat,
		Chat: &bridge.ChatRequest{
			Model:    model,
			Messages: []bridge.ChatMessage{{Role: "user", Content: "hi"}},
		},
	}
}

func TestProviderPassThrough(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(bridge.ChatResponse{
			ID:      "resp-1",
			Choices: []bridge.ChatChoice{{Message: bridge.ChatMessage{Role: "assistant", Content: "hello"}}},
		})
	}))
	defer srv.Close()

	m := buildProviderModule(t, "glm", "openai-chat", srv.URL+"/paas/v4")
	p := chatPayload("glm-4.7")

	if err := m.ProcessIncoming(context.Background(), p); err != nil {
		t.Fatalf("ProcessIncoming() error = %v", err)
	}
	if gotPath != "/paas/v4/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "glm-4.7" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if p.Result == nil || p.Result.Choices[0].Message.Content != "hello" {
		t.Errorf("result = %+v", p.Result)
	}
	if p.ProviderKey != "test-provider" {
		t.Errorf("provider key = %q", p.ProviderKey)
	}
}

func TestProviderIFlowUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_ = json.NewEncoder(w).Encode(bridge.ChatResponse{
			Choices: []bridge.ChatChoice{{Message: bridge.ChatMessage{Role: "assistant", Content: "ok"}}},
		})
	}))
	defer srv.Close()

	m := buildProviderModule(t, "iflow", "openai-chat", srv.URL+"/v1")
	p := chatPayload("tstars-2")
	p.ClientHeaders = map[string]string{"User-Agent": "curl/8.7.1"}

	if err := m.ProcessIncoming(context.Background(), p); err != nil {
		t.Fatalf("ProcessIncoming() error = %v", err)
	}
	if gotUA != "iFlow-Cli" {
		t.Errorf("upstream User-Agent = %q, want iFlow-Cli", gotUA)
	}
}

func TestProviderIFlowBusinessError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":439,"msg":"token expired"}`))
	}))
	defer srv.Close()

	m := buildProviderModule(t, "iflow", "openai-chat", srv.URL+"/v1")
	err := m.ProcessIncoming(context.Background(), chatPayload("tstars-2"))

	var ke *kernel.Error
	if !errors.As(err, &ke) {
		t.Fatalf("error = %v, want kernel.Error", err)
	}
	if ke.Code != kernel.CodeTokenExpired || ke.UpstreamCode != 439 {
		t.Errorf("error = %+v", ke)
	}
}

func TestProviderGeminiAuthHeader(t *testing.T) {
	var gotAuth, gotAPIKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	m := buildProviderModule(t, "gemini", "gemini-chat", srv.URL)
	p := chatPayload("gemini-2.0-flash")
	if err := m.ProcessIncoming(context.Background(), p); err != nil {
		t.Fatalf("ProcessIncoming() error = %v", err)
	}

	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
	if gotAPIKey != "sk-test" {
		t.Errorf("x-goog-api-key = %q, want %q", gotAPIKey, "sk-test")
	}
	if gotPath != "/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestProviderBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	pc := providerConfig("openai", "openai-chat", srv.URL+"/v1")
	reg, err := profile.NewRegistry(map[string]config.ProviderConfig{"test-provider": pc})
	if err != nil {
		t.Fatal(err)
	}
	binding, err := reg.Resolve("test-provider", "openai-chat")
	if err != nil {
		t.Fatal(err)
	}
	m, err := newProvider("test-provider", pc, binding, nil, "",
		config.BreakerConfig{FailureThreshold: 2, ResetWindow: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	for i := 0; i < 2; i++ {
		if err := m.ProcessIncoming(context.Background(), chatPayload("m")); err == nil {
			t.Fatal("expected upstream failure")
		}
	}
	before := calls.Load()

	err = m.ProcessIncoming(context.Background(), chatPayload("m"))
	var open *resources.OpenError
	if !errors.As(err, &open) {
		t.Fatalf("error = %v, want OpenError", err)
	}
	if calls.Load() != before {
		t.Error("upstream called while breaker open")
	}
}

func TestCompatibilityShaping(t *testing.T) {
	mc := map[string]any{
		"name":               "glm",
		"model_aliases":      map[string]any{"glm-latest": "glm-4.7"},
		"drop_fields":        []any{"temperature"},
		"max_tokens_cap":     1000.0,
		"default_max_tokens": 512.0,
	}
	m, err := newCompatibility(mc)
	if err != nil {
		t.Fatal(err)
	}

	temp := 0.9
	big := 4000
	p := chatPayload("glm-latest")
	p.Chat.Temperature = &temp
	p.Chat.MaxTokens = &big

	if err := m.ProcessIncoming(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if p.Chat.Model != "glm-4.7" {
		t.Errorf("model = %q", p.Chat.Model)
	}
	if p.Chat.Temperature != nil {
		t.Error("temperature not dropped")
	}
	if *p.Chat.MaxTokens != 1000 {
		t.Errorf("max_tokens = %d, want capped 1000", *p.Chat.MaxTokens)
	}

	p2 := chatPayload("other")
	if err := m.ProcessIncoming(context.Background(), p2); err != nil {
		t.Fatal(err)
	}
	if p2.Chat.MaxTokens == nil || *p2.Chat.MaxTokens != 512 {
		t.Errorf("default max_tokens = %v, want 512", p2.Chat.MaxTokens)
	}
}

func TestCompatibilityRejectsUnknownDropField(t *testing.T) {
	_, err := newCompatibility(map[string]any{"drop_fields": []any{"tool_calls"}})
	if err == nil {
		t.Error("tool_calls drop accepted; tool structure belongs to llmswitch")
	}
}

func TestLLMSwitchNormalizesResponsesPayload(t *testing.T) {
	sw, err := newLLMSwitch(config.BridgeConfig{}, map[string]any{"name": "t"})
	if err != nil {
		t.Fatal(err)
	}

	responsesBody := `{
		"model": "m",
		"input": [
			{"type":"function_call","call_id":"call_1","name":"shell","arguments":"{\"command\":\"ls | wc -l\"}"}
		],
		"tools": [
			{"type":"function","name":"shell","parameters":{"type":"object","properties":{"command":{"type":"array","items":{"type":"string"}}}}}
		]
	}`
	p := &Payload{
		RequestID:    "r",
		ClientFormat: FormatOpenAIResponses,
		ClientBody:   []byte(responsesBody),
	}

	if err := sw.ProcessIncoming(context.Background(), p); err != nil {
		t.Fatalf("ProcessIncoming() error = %v", err)
	}

	call := p.Chat.Messages[0].ToolCalls[0]
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		t.Fatalf("arguments not JSON: %v", err)
	}
	cmd, ok := args["command"].([]any)
	if !ok {
		t.Fatalf("command = %v", args["command"])
	}
	want := []any{"bash", "-lc", "ls | wc -l"}
	for i := range want {
		if cmd[i] != want[i] {
			t.Fatalf("command = %v, want %v", cmd, want)
		}
	}
}

func TestLLMSwitchEmptyInputFails(t *testing.T) {
	sw, _ := newLLMSwitch(config.BridgeConfig{}, nil)
	p := &Payload{
		ClientFormat: FormatOpenAIResponses,
		ClientBody:   []byte(`{"model":"m","input":[]}`),
	}
	err := sw.ProcessIncoming(context.Background(), p)
	var nme *NoMessagesError
	if !errors.As(err, &nme) {
		t.Fatalf("error = %v, want NoMessagesError", err)
	}
}

func TestLLMSwitchOutgoingRewritesDottedName(t *testing.T) {
	sw, _ := newLLMSwitch(config.BridgeConfig{}, nil)
	p := &Payload{
		ClientFormat: FormatOpenAIChat,
		Chat:         &bridge.ChatRequest{Model: "m"},
		Result: &bridge.ChatResponse{
			Choices: []bridge.ChatChoice{{Message: bridge.ChatMessage{
				Role: "assistant",
				ToolCalls: []bridge.ToolCall{{
					ID:       "call_1",
					Type:     "function",
					Function: bridge.FunctionCall{Name: "my.fn", Arguments: `{}`},
				}},
			}}},
		},
	}

	if err := sw.ProcessOutgoing(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	var out bridge.ChatResponse
	if err := json.Unmarshal(p.ClientResult, &out); err != nil {
		t.Fatal(err)
	}
	if got := out.Choices[0].Message.ToolCalls[0].Function.Name; got != "fn" {
		t.Errorf("name = %q, want fn", got)
	}
}

func TestLLMSwitchMCPInjection(t *testing.T) {
	sw, _ := newLLMSwitch(config.BridgeConfig{MCP: config.MCPConfig{Enabled: true, Servers: []string{"files"}}}, nil)
	p := &Payload{
		ClientFormat: FormatOpenAIChat,
		ClientBody:   []byte(`{"model":"m","messages":[{"role":"user","content":"hi"}]}`),
	}
	if err := sw.ProcessIncoming(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	names := map[string]bool{}
	for _, tool := range p.Chat.Tools {
		names[tool.Function.Name] = true
	}
	if !names["list_mcp_resources"] || !names["read_mcp_resource"] {
		t.Errorf("tools = %v", names)
	}
}

func TestFactoryBuildsAllTypes(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"test-provider": providerConfig("openai", "openai-chat", "https://api.example.com/v1"),
		},
	}
	reg, err := profile.NewRegistry(cfg.Providers)
	if err != nil {
		t.Fatal(err)
	}
	f := NewFactory(cfg, reg, nil)

	tests := []struct {
		moduleType string
		mc         map[string]any
	}{
		{pipeline.TypeProvider, map[string]any{"provider": "test-provider"}},
		{pipeline.TypeCompatibility, map[string]any{"name": "x"}},
		{pipeline.TypeLLMSwitch, map[string]any{"name": "x"}},
	}
	for _, tt := range tests {
		mod, err := f.New(tt.moduleType, tt.mc)
		if err != nil {
			t.Fatalf("New(%s) error = %v", tt.moduleType, err)
		}
		if mod.Type() != tt.moduleType {
			t.Errorf("Type() = %q, want %q", mod.Type(), tt.moduleType)
		}
	}

	if _, err := f.New("mystery", nil); err == nil {
		t.Error("unknown module type accepted")
	}
	if _, err := f.New(pipeline.TypeProvider, map[string]any{"provider": "nope"}); err == nil {
		t.Error("unknown provider accepted")
	}
}
