package profile

import (
	"encoding/json"
	"net/http"

	"routecodex-hq/routecodex/pkg/kernel"
)

// The OpenAI and Anthropic families carry no brand policy beyond what their
// protocol adapters already express.

type openAIProfile struct{ Base }

func newOpenAIProfile() *openAIProfile {
	return &openAIProfile{Base{ProfileID: "openai-default", FamilyName: FamilyOpenAI}}
}

type anthropicProfile struct{ Base }

func newAnthropicProfile() *anthropicProfile {
	return &anthropicProfile{Base{ProfileID: "anthropic-default", FamilyName: FamilyAnthropic}}
}

// qwenProfile serves DashScope's OpenAI-compatible surface.
type qwenProfile struct{ Base }

func newQwenProfile() *qwenProfile {
	return &qwenProfile{Base{ProfileID: "qwen-default", FamilyName: FamilyQwen}}
}

// glmProfile serves Zhipu's OpenAI-compatible surface. GLM insists on
// max_tokens naming, so a stray max_output_tokens is renamed here rather
// than in the adapter.
type glmProfile struct{ Base }

func newGLMProfile() *glmProfile {
	return &glmProfile{Base{ProfileID: "glm-default", FamilyName: FamilyGLM}}
}

func (p *glmProfile) ApplyRequestPolicy(d *Draft, rt *Runtime) error {
	var body map[string]any
	if err := json.Unmarshal(d.Body, &body); err != nil {
		return nil
	}
	v, ok := body["max_output_tokens"]
	if !ok {
		return nil
	}
	delete(body, "max_output_tokens")
	if _, exists := body["max_tokens"]; !exists {
		body["max_tokens"] = v
	}
	out, err := json.Marshal(body)
	if err != nil {
		return err
	}
	d.Body = out
	return nil
}

// antigravityProfile strips session correlation headers on the way out and
// classifies the family's in-band error items.
type antigravityProfile struct{ Base }

func newAntigravityProfile() *antigravityProfile {
	return &antigravityProfile{Base{ProfileID: "antigravity-default", FamilyName: FamilyAntigravity}}
}

func (p *antigravityProfile) ApplyHeaderPolicy(d *Draft, rt *Runtime) {
	delete(d.Headers, "session_id")
	delete(d.Headers, "conversation_id")
}

func (p *antigravityProfile) ApplyResponsePolicy(status int, body []byte, rt *Runtime) error {
	if status != http.StatusOK {
		return nil
	}
	var envelope struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return nil
	}
	return upstreamError(http.StatusBadGateway, kernel.CodeUpstream, envelope.Error.Code, body, rt)
}

// Gemini profiles inject the brand client headers on top of the adapter's
// x-goog-api-key standardization.

type geminiProfile struct {
	Base
	apiClient string
	metadata  string
}

func newGeminiProfile() *geminiProfile {
	return &geminiProfile{
		Base:      Base{ProfileID: "gemini-default", FamilyName: FamilyGemini},
		apiClient: "genai-go/1.0",
		metadata:  `{"ideType":"unknown","platform":"unknown"}`,
	}
}

func newGeminiCLIProfile() *geminiProfile {
	return &geminiProfile{
		Base:      Base{ProfileID: "gemini-cli-default", FamilyName: FamilyGeminiCLI},
		apiClient: "gemini-cli/0.1",
		metadata:  `{"ideType":"cli","platform":"terminal"}`,
	}
}

func (p *geminiProfile) ApplyHeaderPolicy(d *Draft, rt *Runtime) {
	d.Headers["X-Goog-Api-Client"] = p.apiClient
	d.Headers["Client-Metadata"] = p.metadata
}
