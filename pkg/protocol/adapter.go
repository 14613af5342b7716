// Package protocol contains the four wire-protocol adapters of the
// transport layer middle: openai-chat, openai-responses, anthropic-messages,
// and gemini-chat. An adapter owns wire-contract fields only: endpoint path,
// body structure, and response parsing. It never branches on a provider id
// or family; everything brand-specific belongs to the family profiles.
package protocol

import (
	"fmt"
	"strings"

	"routecodex-hq/routecodex/pkg/bridge"
)

// Protocol names. These are the only values the adapter registry accepts.
const (
	OpenAIChat        = "openai-chat"
	OpenAIResponses   = "openai-responses"
	AnthropicMessages = "anthropic-messages"
	GeminiChat        = "gemini-chat"
)

// Input carries everything an adapter needs to build an upstream exchange.
type Input struct {
	Request *bridge.ChatRequest
	BaseURL string
	Stream  bool

	// ToolCallIDStyle is the provider's responses.toolCallIdStyle setting;
	// only the openai-responses adapter reads it.
	ToolCallIDStyle string
}

// Adapter converts between the canonical chat form and one wire protocol.
type Adapter interface {
	Protocol() string
	ResolveEndpoint(in *Input) string
	BuildBody(in *Input) ([]byte, error)
	ParseResponse(raw []byte, in *Input) (*bridge.ChatResponse, error)
}

// HeaderShaper is implemented by adapters whose protocol dictates header
// conventions, such as gemini-chat moving bearer auth to x-goog-api-key.
// ShapeHeaders rewrites headers already drafted by the profile layer.
// AuthHeader names the header the kernel must land its credential in; the
// kernel applies credentials per attempt, after drafted headers, so the
// rename cannot happen in ShapeHeaders alone.
type HeaderShaper interface {
	ShapeHeaders(headers map[string]string)
	AuthHeader() string
}

// UnknownProtocolError is returned for a protocol name outside the four
// supported ones. Unknown protocols fail fast; there is no fallback.
type UnknownProtocolError struct {
	Protocol string
}

func (e *UnknownProtocolError) Error() string {
	return fmt.Sprintf("unknown provider protocol %q", e.Protocol)
}

// ForProtocol returns the adapter for a protocol name.
func ForProtocol(name string) (Adapter, error) {
	switch name {
	case OpenAIChat:
		return &openAIChatAdapter{}, nil
	case OpenAIResponses:
		return &openAIResponsesAdapter{}, nil
	case AnthropicMessages:
		return &anthropicAdapter{}, nil
	case GeminiChat:
		return &geminiAdapter{}, nil
	default:
		return nil, &UnknownProtocolError{Protocol: name}
	}
}

// joinURL appends a path to a base URL without doubling slashes.
func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}
