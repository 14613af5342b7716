package modules

import (
	"context"
	"encoding/json"
	"fmt"

	"routecodex-hq/routecodex/pkg/bridge"
	"routecodex-hq/routecodex/pkg/config"
	"routecodex-hq/routecodex/pkg/pipeline"
	"routecodex-hq/routecodex/pkg/protocol"
)

// Client formats the llmswitch accepts on entry.
const (
	FormatOpenAIChat        = protocol.OpenAIChat
	FormatOpenAIResponses   = protocol.OpenAIResponses
	FormatAnthropicMessages = protocol.AnthropicMessages
)

// NoMessagesError reports a request that normalized to an empty
// conversation.
type NoMessagesError struct{}

func (e *NoMessagesError) Error() string {
	return "no_messages: request contains no conversation content"
}

// llmSwitchModule wraps the bridge as a pipeline module. It is the sole
// owner of tool-call structure: entry normalization converts the client
// payload to canonical form and normalizes tool-call arguments, exit
// denormalization converts the canonical result back to the client's wire
// format and validates every tool call it emits.
type llmSwitchModule struct {
	id  string
	mcp config.MCPConfig
}

func newLLMSwitch(bridgeCfg config.BridgeConfig, mc map[string]any) (*llmSwitchModule, error) {
	return &llmSwitchModule{
		id:  "llmswitch:" + stringOption(mc, "name", "default"),
		mcp: bridgeCfg.MCP,
	}, nil
}

func (m *llmSwitchModule) ID() string   { return m.id }
func (m *llmSwitchModule) Type() string { return pipeline.TypeLLMSwitch }

// ProcessIncoming normalizes the client payload into the canonical chat
// form and settles tool-call structure for the rest of the chain.
func (m *llmSwitchModule) ProcessIncoming(ctx context.Context, p *Payload) error {
	if p.Chat == nil {
		chat, servers, err := m.normalize(p)
		if err != nil {
			return err
		}
		p.Chat = chat
		p.Servers = servers
	}

	if len(p.Chat.Messages) == 0 {
		return &NoMessagesError{}
	}

	// Assistant tool calls arriving from the client get the same id, name,
	// and argument treatment as upstream responses.
	for i := range p.Chat.Messages {
		msg := &p.Chat.Messages[i]
		if len(msg.ToolCalls) == 0 {
			continue
		}
		if err := bridge.ValidateToolCalls(msg.ToolCalls, p.Chat.Tools); err != nil {
			return err
		}
	}

	if m.mcp.Enabled {
		servers := append([]string{}, m.mcp.Servers...)
		servers = append(servers, p.Servers...)
		bridge.InjectMCPTools(p.Chat, servers)
	}
	return nil
}

func (m *llmSwitchModule) normalize(p *Payload) (*bridge.ChatRequest, []string, error) {
	switch p.ClientFormat {
	case FormatOpenAIChat, "":
		var req bridge.ChatRequest
		if err := json.Unmarshal(p.ClientBody, &req); err != nil {
			return nil, nil, fmt.Errorf("decode chat payload: %w", err)
		}
		return &req, nil, nil
	case FormatOpenAIResponses:
		var req bridge.ResponsesRequest
		if err := json.Unmarshal(p.ClientBody, &req); err != nil {
			return nil, nil, fmt.Errorf("decode responses payload: %w", err)
		}
		chat, state := bridge.ResponsesToChat(&req)
		return chat, state.Servers(), nil
	case FormatAnthropicMessages:
		var req bridge.AnthropicRequest
		if err := json.Unmarshal(p.ClientBody, &req); err != nil {
			return nil, nil, fmt.Errorf("decode messages payload: %w", err)
		}
		chat, state := bridge.AnthropicToChat(&req)
		return chat, state.Servers(), nil
	default:
		return nil, nil, fmt.Errorf("unknown client format %q", p.ClientFormat)
	}
}

// ProcessOutgoing validates the canonical result's tool calls and converts
// it back to the client's wire format. Streaming responses pass through;
// the ingress layer forwards their frames.
func (m *llmSwitchModule) ProcessOutgoing(ctx context.Context, p *Payload) error {
	if p.Stream {
		return nil
	}
	if p.Result == nil {
		return fmt.Errorf("llmswitch: no result to denormalize")
	}

	for i := range p.Result.Choices {
		msg := &p.Result.Choices[i].Message
		if len(msg.ToolCalls) == 0 {
			continue
		}
		if err := bridge.ValidateToolCalls(msg.ToolCalls, p.Chat.Tools); err != nil {
			return err
		}
	}

	var out any
	switch p.ClientFormat {
	case FormatOpenAIResponses:
		out = bridge.ChatToResponses(p.Result, p.Chat.Tools)
	case FormatAnthropicMessages:
		out = bridge.ChatToAnthropic(p.Result, p.Chat.Tools)
	default:
		out = p.Result
	}

	body, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode client response: %w", err)
	}
	p.ClientResult = body
	return nil
}
