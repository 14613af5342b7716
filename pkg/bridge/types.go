package bridge

import "encoding/json"

// Canonical chat form. This is the shape every pipeline module operates on;
// the bridge converts client payloads into it at the chain entry and back
// out of it at the chain exit.

// ChatRequest is the canonical request shape, modeled on the OpenAI Chat
// Completions wire format.
type ChatRequest struct {
	Model       string         `json:"model"`
	Messages    []ChatMessage  `json:"messages"`
	Tools       []Tool         `json:"tools,omitempty"`
	ToolChoice  any            `json:"tool_choice,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Stop        []string       `json:"stop,omitempty"`
	Extra       map[string]any `json:"-"`
}

// ChatMessage is a single conversation turn.
type ChatMessage struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	Name             string     `json:"name,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string     `json:"tool_call_id,omitempty"`
}

// ToolCall is the canonical tool call envelope. Arguments is always a
// JSON-encoded string, even when the underlying value is an object.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its serialized arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a callable function to the model.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef is the function declaration inside a Tool. Parameters is a
// JSON-Schema object describing the argument shape.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ChatResponse is the canonical non-streaming response shape.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// ChatChoice is a single completion alternative.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// Usage reports token accounting when the upstream provides it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAI Responses wire shapes. Only the fields the bridge reads or writes
// are modeled; everything else passes through untouched at the proxy layer.

// ResponsesRequest is an OpenAI Responses API request.
type ResponsesRequest struct {
	Model        string          `json:"model"`
	Instructions string          `json:"instructions,omitempty"`
	Input        []ResponsesItem `json:"input,omitempty"`
	Tools        []ResponsesTool `json:"tools,omitempty"`
	Stream       bool            `json:"stream,omitempty"`
	Temperature  *float64        `json:"temperature,omitempty"`
	TopP         *float64        `json:"top_p,omitempty"`
	MaxTokens    *int            `json:"max_output_tokens,omitempty"`
}

// ResponsesItem is one entry of the Responses input or output array. The
// Type discriminates which of the remaining fields are meaningful.
type ResponsesItem struct {
	Type       string             `json:"type"`
	Role       string             `json:"role,omitempty"`
	Content    []ResponsesContent `json:"content,omitempty"`
	ID         string             `json:"id,omitempty"`
	CallID     string             `json:"call_id,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	ToolUseID  string             `json:"tool_use_id,omitempty"`
	Name       string             `json:"name,omitempty"`
	Arguments  string             `json:"arguments,omitempty"`
	Output     json.RawMessage    `json:"output,omitempty"`
	Status     string             `json:"status,omitempty"`
	Summary    []ResponsesContent `json:"summary,omitempty"`
}

// ResponsesContent is a typed text block inside a message item.
type ResponsesContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ResponsesTool is the flat tool declaration form used by the Responses API.
type ResponsesTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ResponsesResponse is an OpenAI Responses API response.
type ResponsesResponse struct {
	ID     string          `json:"id"`
	Object string          `json:"object"`
	Model  string          `json:"model,omitempty"`
	Status string          `json:"status"`
	Output []ResponsesItem `json:"output"`
	Usage  *Usage          `json:"usage,omitempty"`
}

// Anthropic Messages wire shapes.

// AnthropicRequest is an Anthropic Messages API request.
type AnthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
	Tools     []AnthropicTool    `json:"tools,omitempty"`
	MaxTokens int                `json:"max_tokens,omitempty"`
	Stream    bool               `json:"stream,omitempty"`
}

// AnthropicMessage is one turn; Content is a list of typed blocks.
type AnthropicMessage struct {
	Role    string           `json:"role"`
	Content []AnthropicBlock `json:"content"`
}

// AnthropicBlock is a content block: text, tool_use, or tool_result.
type AnthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// AnthropicTool is Anthropic's tool declaration form.
type AnthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// AnthropicResponse is an Anthropic Messages API response.
type AnthropicResponse struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Role       string           `json:"role"`
	Model      string           `json:"model,omitempty"`
	Content    []AnthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason,omitempty"`
	Usage      *AnthropicUsage  `json:"usage,omitempty"`
}

// AnthropicUsage reports token accounting in Anthropic's naming.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
