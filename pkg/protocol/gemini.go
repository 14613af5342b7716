package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"routecodex-hq/routecodex/pkg/bridge"
)

// geminiAdapter speaks the Gemini generateContent wire format. It is the
// only adapter that restructures the conversation: canonical messages become
// contents[] with a separate systemInstruction, and authentication is
// standardized to the x-goog-api-key header.
type geminiAdapter struct{}

func (a *geminiAdapter) Protocol() string { return GeminiChat }

func (a *geminiAdapter) ResolveEndpoint(in *Input) string {
	verb := "generateContent"
	if in.Stream {
		verb = "streamGenerateContent?alt=sse"
	}
	return joinURL(in.BaseURL, "/models/"+in.Request.Model+":"+verb)
}

// ShapeHeaders moves a bearer Authorization header into x-goog-api-key.
func (a *geminiAdapter) ShapeHeaders(headers map[string]string) {
	auth, ok := headers["Authorization"]
	if !ok {
		return
	}
	delete(headers, "Authorization")
	if _, exists := headers["x-goog-api-key"]; exists {
		return
	}
	headers["x-goog-api-key"] = strings.TrimPrefix(auth, "Bearer ")
}

// AuthHeader names the credential header the kernel must use.
func (a *geminiAdapter) AuthHeader() string { return "x-goog-api-key" }

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	Tools             []geminiTools   `json:"tools,omitempty"`
	GenerationConfig  *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string          `json:"text,omitempty"`
	FunctionCall     *geminiFuncCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResp `json:"functionResponse,omitempty"`
}

type geminiFuncCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFuncResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTools struct {
	FunctionDeclarations []geminiFuncDecl `json:"functionDeclarations"`
}

type geminiFuncDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiGenCfg struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (a *geminiAdapter) BuildBody(in *Input) ([]byte, error) {
	req := in.Request
	out := geminiRequest{}

	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil {
		out.GenerationConfig = &geminiGenCfg{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	// callNames maps a tool call id back to its function name; Gemini pairs
	// function responses by name, not id.
	callNames := map[string]string{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			if out.SystemInstruction == nil {
				out.SystemInstruction = &geminiContent{}
			}
			out.SystemInstruction.Parts = append(out.SystemInstruction.Parts, geminiPart{Text: msg.Content})
		case "assistant":
			content := geminiContent{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				callNames[call.ID] = call.Function.Name
				var args map[string]any
				_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
				content.Parts = append(content.Parts, geminiPart{
					FunctionCall: &geminiFuncCall{Name: call.Function.Name, Args: args},
				})
			}
			if len(content.Parts) > 0 {
				out.Contents = append(out.Contents, content)
			}
		case "tool":
			name := msg.Name
			if name == "" {
				name = callNames[msg.ToolCallID]
			}
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"output": msg.Content}
			}
			out.Contents = append(out.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{FunctionResponse: &geminiFuncResp{Name: name, Response: response}}},
			})
		default:
			out.Contents = append(out.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFuncDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiFuncDecl{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			})
		}
		out.Tools = []geminiTools{{FunctionDeclarations: decls}}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode gemini request: %w", err)
	}
	return body, nil
}

func (a *geminiAdapter) ParseResponse(raw []byte, in *Input) (*bridge.ChatResponse, error) {
	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}

	out := &bridge.ChatResponse{
		Object: "chat.completion",
		Model:  in.Request.Model,
	}
	if resp.UsageMetadata != nil {
		out.Usage = &bridge.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	if len(resp.Candidates) == 0 {
		out.Choices = []bridge.ChatChoice{{Message: bridge.ChatMessage{Role: "assistant"}, FinishReason: "stop"}}
		return out, nil
	}

	cand := resp.Candidates[0]
	msg := bridge.ChatMessage{Role: "assistant"}
	var texts []string
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				args = []byte("{}")
			}
			// Gemini does not assign call ids; synthesize one.
			msg.ToolCalls = append(msg.ToolCalls, bridge.ToolCall{
				ID:       "call_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
				Type:     "function",
				Function: bridge.FunctionCall{Name: part.FunctionCall.Name, Arguments: string(args)},
			})
		case part.Text != "":
			texts = append(texts, part.Text)
		}
	}
	msg.Content = strings.Join(texts, "")

	finish := "stop"
	switch {
	case len(msg.ToolCalls) > 0:
		finish = "tool_calls"
	case cand.FinishReason == "MAX_TOKENS":
		finish = "length"
	}
	out.Choices = []bridge.ChatChoice{{Message: msg, FinishReason: finish}}
	return out, nil
}
