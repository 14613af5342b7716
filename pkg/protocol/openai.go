package protocol

import (
	"encoding/json"
	"fmt"

	"routecodex-hq/routecodex/pkg/bridge"
)

// openAIChatAdapter speaks the OpenAI Chat Completions wire format, which
// is also the canonical form, so building and parsing are plain encoding.
type openAIChatAdapter struct{}

func (a *openAIChatAdapter) Protocol() string { return OpenAIChat }

func (a *openAIChatAdapter) ResolveEndpoint(in *Input) string {
	return joinURL(in.BaseURL, "/chat/completions")
}

func (a *openAIChatAdapter) BuildBody(in *Input) ([]byte, error) {
	body, err := json.Marshal(in.Request)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	return body, nil
}

func (a *openAIChatAdapter) ParseResponse(raw []byte, in *Input) (*bridge.ChatResponse, error) {
	var resp bridge.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return &resp, nil
}

// openAIResponsesAdapter speaks the OpenAI Responses wire format.
type openAIResponsesAdapter struct{}

func (a *openAIResponsesAdapter) Protocol() string { return OpenAIResponses }

func (a *openAIResponsesAdapter) ResolveEndpoint(in *Input) string {
	return joinURL(in.BaseURL, "/responses")
}

func (a *openAIResponsesAdapter) BuildBody(in *Input) ([]byte, error) {
	req := bridge.ChatToResponsesRequest(in.Request, in.ToolCallIDStyle)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode responses request: %w", err)
	}
	return body, nil
}

func (a *openAIResponsesAdapter) ParseResponse(raw []byte, in *Input) (*bridge.ChatResponse, error) {
	var resp bridge.ResponsesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode responses response: %w", err)
	}
	return bridge.ResponsesToChatResponse(&resp), nil
}
