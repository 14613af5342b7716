package protocol

import (
	"encoding/json"
	"fmt"

	"routecodex-hq/routecodex/pkg/bridge"
)

// anthropicAdapter speaks the Anthropic Messages wire format.
type anthropicAdapter struct{}

func (a *anthropicAdapter) Protocol() string { return AnthropicMessages }

func (a *anthropicAdapter) ResolveEndpoint(in *Input) string {
	return joinURL(in.BaseURL, "/messages")
}

func (a *anthropicAdapter) BuildBody(in *Input) ([]byte, error) {
	req := bridge.ChatToAnthropicRequest(in.Request)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode messages request: %w", err)
	}
	return body, nil
}

func (a *anthropicAdapter) ParseResponse(raw []byte, in *Input) (*bridge.ChatResponse, error) {
	var resp bridge.AnthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}
	return bridge.AnthropicToChatResponse(&resp), nil
}

// AuthHeader is empty: anthropic-messages keeps the credential in
// Authorization, so the kernel performs no rename.
func (a *anthropicAdapter) AuthHeader() string { return "" }

// ShapeHeaders pins the protocol version header the Messages API requires.
func (a *anthropicAdapter) ShapeHeaders(headers map[string]string) {
	if _, ok := headers["anthropic-version"]; !ok {
		headers["anthropic-version"] = "2023-06-01"
	}
}
