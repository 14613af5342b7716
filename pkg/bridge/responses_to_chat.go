package bridge

import (
	"sort"
	"strings"
)

// ConversionState accumulates facts discovered while converting a request:
// tool call ids seen on assistant turns (for orphan result resolution) and
// MCP server names peeled off dotted tool names.
type ConversionState struct {
	lastCallID string
	callNames  map[string]string
	servers    map[string]bool
	repairs    map[string]repairNote
}

func newConversionState() *ConversionState {
	return &ConversionState{
		callNames: make(map[string]string),
		servers:   make(map[string]bool),
		repairs:   make(map[string]repairNote),
	}
}

// Servers returns the discovered MCP server names in sorted order.
func (s *ConversionState) Servers() []string {
	out := make([]string, 0, len(s.servers))
	for name := range s.servers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// recordName strips the server prefix from a dotted tool name, remembers
// the server, and returns the bare name.
func (s *ConversionState) recordName(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 || idx == len(name)-1 {
		return name
	}
	s.servers[name[:idx]] = true
	return name[idx+1:]
}

// ResponsesToChat converts an OpenAI Responses request into the canonical
// chat form. Instructions become a leading system message, function_call
// items become assistant tool calls, and every tool output becomes a
// tool-role message carrying the canonical result envelope.
func ResponsesToChat(req *ResponsesRequest) (*ChatRequest, *ConversionState) {
	state := newConversionState()

	out := &ChatRequest{
		Model:       req.Model,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	if req.Instructions != "" {
		out.Messages = append(out.Messages, ChatMessage{Role: "system", Content: req.Instructions})
	}

	// Tools convert first so call-failure detection sees the declared set.
	for _, t := range req.Tools {
		if t.Type != "function" && t.Type != "" {
			continue
		}
		out.Tools = append(out.Tools, Tool{
			Type: "function",
			Function: FunctionDef{
				Name:        state.recordName(t.Name),
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	for _, item := range req.Input {
		switch item.Type {
		case "message", "":
			if msg, ok := messageFromItem(item); ok {
				out.Messages = append(out.Messages, msg)
			}
		case "function_call", "tool_call":
			out.Messages = append(out.Messages, assistantCallMessage(item, state, out.Tools))
		case "function_call_output", "tool_result", "tool_message":
			out.Messages = append(out.Messages, toolResultMessage(item, state, out.Tools))
		case "reasoning":
			// Upstream reasoning items carry no conversational content the
			// canonical form needs on the way in.
		}
	}

	return out, state
}

// messageFromItem flattens typed text blocks into a plain content string.
func messageFromItem(item ResponsesItem) (ChatMessage, bool) {
	role := item.Role
	if role == "" {
		role = "user"
	}
	var parts []string
	for _, block := range item.Content {
		switch block.Type {
		case "input_text", "output_text", "text", "commentary":
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return ChatMessage{}, false
	}
	return ChatMessage{Role: role, Content: strings.Join(parts, "\n")}, true
}

func assistantCallMessage(item ResponsesItem, state *ConversionState, tools []Tool) ChatMessage {
	id := item.CallID
	if id == "" {
		id = item.ID
	}
	name := state.recordName(item.Name)
	state.lastCallID = id
	state.callNames[id] = name
	if note, bad := detectCallFailure(name, item.Arguments, tools); bad {
		state.repairs[id] = note
	}

	return ChatMessage{
		Role: "assistant",
		ToolCalls: []ToolCall{{
			ID:       id,
			Type:     "function",
			Function: FunctionCall{Name: name, Arguments: item.Arguments},
		}},
	}
}

// toolResultMessage wraps a tool output in the canonical result envelope.
// The call id resolves in a fixed order so mismatched client shapes still
// pair with the right assistant call. A failure noted on that call replaces
// the envelope's stderr with a repair hint and forces success false; the
// original output stays in result.output.
func toolResultMessage(item ResponsesItem, state *ConversionState, tools []Tool) ChatMessage {
	id := item.ToolCallID
	if id == "" {
		id = item.CallID
	}
	if id == "" {
		id = item.ToolUseID
	}
	if id == "" {
		id = item.ID
	}
	if id == "" {
		id = state.lastCallID
	}

	name := item.Name
	if name == "" {
		name = state.callNames[id]
	}

	env := NewResultEnvelope(name, id, item.Output)
	if note, ok := state.repairs[id]; ok {
		ApplySelfRepair(env, note.reason, note.detail, tools)
	}
	return ChatMessage{
		Role:       "tool",
		ToolCallID: id,
		Name:       name,
		Content:    env.Encode(),
	}
}
