package bridge

import (
	"encoding/json"
	"strings"
)

// AnthropicToChat converts an Anthropic Messages request into the canonical
// chat form. Content blocks flatten per role: text blocks concatenate,
// tool_use blocks become assistant tool calls, and tool_result blocks become
// tool-role messages carrying the canonical result envelope.
func AnthropicToChat(req *AnthropicRequest) (*ChatRequest, *ConversionState) {
	state := newConversionState()

	out := &ChatRequest{
		Model:  req.Model,
		Stream: req.Stream,
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		out.MaxTokens = &mt
	}
	if req.System != "" {
		out.Messages = append(out.Messages, ChatMessage{Role: "system", Content: req.System})
	}

	// Tools convert first so call-failure detection sees the declared set.
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{
			Type: "function",
			Function: FunctionDef{
				Name:        state.recordName(t.Name),
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	for _, msg := range req.Messages {
		var texts []string
		var calls []ToolCall

		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				texts = append(texts, block.Text)
			case "tool_use":
				name := state.recordName(block.Name)
				state.lastCallID = block.ID
				state.callNames[block.ID] = name
				if note, bad := detectCallFailure(name, string(block.Input), out.Tools); bad {
					state.repairs[block.ID] = note
				}
				calls = append(calls, ToolCall{
					ID:       block.ID,
					Type:     "function",
					Function: FunctionCall{Name: name, Arguments: string(block.Input)},
				})
			case "tool_result":
				id := block.ToolUseID
				if id == "" {
					id = state.lastCallID
				}
				env := NewResultEnvelope(state.callNames[id], id, block.Content)
				if block.IsError {
					env.Result.Success = false
				}
				if note, ok := state.repairs[id]; ok {
					ApplySelfRepair(env, note.reason, note.detail, out.Tools)
				}
				out.Messages = append(out.Messages, ChatMessage{
					Role:       "tool",
					ToolCallID: id,
					Name:       state.callNames[id],
					Content:    env.Encode(),
				})
			}
		}

		if len(texts) > 0 || len(calls) > 0 {
			out.Messages = append(out.Messages, ChatMessage{
				Role:      msg.Role,
				Content:   strings.Join(texts, "\n"),
				ToolCalls: calls,
			})
		}
	}

	return out, state
}

// ChatToAnthropic converts a canonical chat response into Anthropic
// Messages form.
func ChatToAnthropic(resp *ChatResponse, tools []Tool) *AnthropicResponse {
	out := &AnthropicResponse{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
	}
	if resp.Usage != nil {
		out.Usage = &AnthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	if len(resp.Choices) == 0 {
		out.StopReason = "end_turn"
		return out
	}
	msg := resp.Choices[0].Message

	if strings.TrimSpace(msg.Content) != "" {
		out.Content = append(out.Content, AnthropicBlock{Type: "text", Text: msg.Content})
	}

	for i := range msg.ToolCalls {
		call := msg.ToolCalls[i]
		args, _ := NormalizeArguments(call.Function.Name, call.Function.Arguments, schemaFor(tools, call.Function.Name))
		out.Content = append(out.Content, AnthropicBlock{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: json.RawMessage(args),
		})
	}

	if len(msg.ToolCalls) > 0 {
		out.StopReason = "tool_use"
	} else {
		out.StopReason = "end_turn"
	}
	return out
}
