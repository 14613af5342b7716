package bridge

import "strings"

// ChatToResponses converts a canonical chat response back into OpenAI
// Responses form. Reasoning content becomes a reasoning item, text becomes a
// message item, and each tool call becomes a function_call item marked
// in_progress so Responses clients continue the turn.
func ChatToResponses(resp *ChatResponse, tools []Tool) *ResponsesResponse {
	out := &ResponsesResponse{
		ID:     resp.ID,
		Object: "response",
		Model:  resp.Model,
		Usage:  resp.Usage,
	}

	if len(resp.Choices) == 0 {
		out.Status = "completed"
		return out
	}
	msg := resp.Choices[0].Message

	if strings.TrimSpace(msg.ReasoningContent) != "" {
		out.Output = append(out.Output, ResponsesItem{
			Type:    "reasoning",
			Summary: []ResponsesContent{{Type: "summary_text", Text: msg.ReasoningContent}},
		})
	}

	hasText := strings.TrimSpace(msg.Content) != ""
	if hasText {
		out.Output = append(out.Output, ResponsesItem{
			Type:    "message",
			Role:    "assistant",
			Status:  "completed",
			Content: []ResponsesContent{{Type: "output_text", Text: msg.Content}},
		})
	}

	for i := range msg.ToolCalls {
		call := msg.ToolCalls[i]
		args, _ := NormalizeArguments(call.Function.Name, call.Function.Arguments, schemaFor(tools, call.Function.Name))
		out.Output = append(out.Output, ResponsesItem{
			Type:      "function_call",
			ID:        call.ID,
			CallID:    call.ID,
			Name:      call.Function.Name,
			Arguments: args,
			Status:    "in_progress",
		})
	}

	if len(msg.ToolCalls) > 0 && !hasText {
		out.Status = "in_progress"
	} else {
		out.Status = "completed"
	}
	return out
}

func schemaFor(tools []Tool, name string) map[string]any {
	for _, t := range tools {
		if t.Function.Name == name {
			return t.Function.Parameters
		}
	}
	return nil
}

// MapToolCallID rewrites a tool call id for providers whose Responses
// endpoint requires fc-prefixed ids. The preserve style passes ids through
// untouched; the fc style keeps existing fc_ and fc- prefixes and converts
// anything else.
func MapToolCallID(style, id string) string {
	if style != "fc" || id == "" {
		return id
	}
	if strings.HasPrefix(id, "fc_") || strings.HasPrefix(id, "fc-") {
		return id
	}
	if rest, ok := strings.CutPrefix(id, "call_"); ok {
		return "fc_" + rest
	}
	return "fc_" + id
}
