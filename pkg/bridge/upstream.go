package bridge

import (
	"encoding/json"
	"strings"
)

// Upstream-direction conversions: canonical chat form out to providers that
// speak the Responses or Anthropic Messages protocols, and their responses
// back to canonical form. The client-direction conversions live in
// responses_to_chat.go and anthropic.go.

// ChatToResponsesRequest converts a canonical request into Responses form
// for an upstream Responses endpoint. idStyle is the provider's
// responses.toolCallIdStyle setting and is applied to every call id.
func ChatToResponsesRequest(req *ChatRequest, idStyle string) *ResponsesRequest {
	out := &ResponsesRequest{
		Model:       req.Model,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	for _, msg := range req.Messages {
		switch {
		case msg.Role == "system" && out.Instructions == "" && len(out.Input) == 0:
			out.Instructions = msg.Content
		case msg.Role == "tool":
			out.Input = append(out.Input, ResponsesItem{
				Type:   "function_call_output",
				CallID: MapToolCallID(idStyle, msg.ToolCallID),
				Output: json.RawMessage(encodeJSONString(msg.Content)),
			})
		case len(msg.ToolCalls) > 0:
			for _, call := range msg.ToolCalls {
				out.Input = append(out.Input, ResponsesItem{
					Type:      "function_call",
					CallID:    MapToolCallID(idStyle, call.ID),
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				})
			}
		default:
			blockType := "input_text"
			if msg.Role == "assistant" {
				blockType = "output_text"
			}
			out.Input = append(out.Input, ResponsesItem{
				Type:    "message",
				Role:    msg.Role,
				Content: []ResponsesContent{{Type: blockType, Text: msg.Content}},
			})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, ResponsesTool{
			Type:        "function",
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return out
}

// ResponsesToChatResponse folds a Responses output array into the canonical
// single-choice chat response.
func ResponsesToChatResponse(resp *ResponsesResponse) *ChatResponse {
	msg := ChatMessage{Role: "assistant"}
	var texts []string

	for _, item := range resp.Output {
		switch item.Type {
		case "reasoning":
			var parts []string
			for _, s := range item.Summary {
				parts = append(parts, s.Text)
			}
			msg.ReasoningContent = strings.Join(parts, "\n")
		case "message":
			for _, block := range item.Content {
				if block.Type == "output_text" || block.Type == "text" {
					texts = append(texts, block.Text)
				}
			}
		case "function_call":
			id := item.CallID
			if id == "" {
				id = item.ID
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:       id,
				Type:     "function",
				Function: FunctionCall{Name: item.Name, Arguments: item.Arguments},
			})
		}
	}
	msg.Content = strings.Join(texts, "\n")

	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	return &ChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Model:   resp.Model,
		Choices: []ChatChoice{{Message: msg, FinishReason: finish}},
		Usage:   resp.Usage,
	}
}

// ChatToAnthropicRequest converts a canonical request into Anthropic
// Messages form for an upstream Anthropic endpoint.
func ChatToAnthropicRequest(req *ChatRequest) *AnthropicRequest {
	out := &AnthropicRequest{
		Model:  req.Model,
		Stream: req.Stream,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	} else {
		out.MaxTokens = 4096
	}

	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "tool":
			out.Messages = append(out.Messages, AnthropicMessage{
				Role: "user",
				Content: []AnthropicBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   json.RawMessage(encodeJSONString(msg.Content)),
				}},
			})
		case "assistant":
			var blocks []AnthropicBlock
			if msg.Content != "" {
				blocks = append(blocks, AnthropicBlock{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, AnthropicBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Function.Name,
					Input: json.RawMessage(call.Function.Arguments),
				})
			}
			if len(blocks) > 0 {
				out.Messages = append(out.Messages, AnthropicMessage{Role: "assistant", Content: blocks})
			}
		default:
			out.Messages = append(out.Messages, AnthropicMessage{
				Role:    msg.Role,
				Content: []AnthropicBlock{{Type: "text", Text: msg.Content}},
			})
		}
	}
	out.System = strings.Join(system, "\n")

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, AnthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	return out
}

// AnthropicToChatResponse converts an upstream Anthropic response to the
// canonical single-choice chat response.
func AnthropicToChatResponse(resp *AnthropicResponse) *ChatResponse {
	msg := ChatMessage{Role: "assistant"}
	var texts []string

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			texts = append(texts, block.Text)
		case "thinking":
			msg.ReasoningContent = block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:       block.ID,
				Type:     "function",
				Function: FunctionCall{Name: block.Name, Arguments: string(block.Input)},
			})
		}
	}
	msg.Content = strings.Join(texts, "\n")

	out := &ChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Model:   resp.Model,
		Choices: []ChatChoice{{Message: msg, FinishReason: mapStopReason(resp.StopReason)}},
	}
	if resp.Usage != nil {
		out.Usage = &Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return out
}

func mapStopReason(reason string) string {
	switch reason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

func encodeJSONString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}
