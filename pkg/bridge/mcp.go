package bridge

import "strings"

const mcpGuidance = "MCP resource tools are available. Use list_mcp_resources to enumerate " +
	"resources offered by connected servers, and read_mcp_resource to fetch one by server " +
	"name and URI. Prefer resources over guessing file contents."

// InjectMCPTools augments a canonical request's tool list with the MCP
// resource tools. list_mcp_resources is always added; read_mcp_resource and
// list_mcp_resource_templates are added only when a non-empty server set has
// been discovered from prior tool calls or explicit configuration. A system
// guidance message is appended exactly once per request when any tools are
// present.
func InjectMCPTools(req *ChatRequest, servers []string) {
	if hasTool(req.Tools, "list_mcp_resources") {
		return
	}

	req.Tools = append(req.Tools, Tool{
		Type: "function",
		Function: FunctionDef{
			Name:        "list_mcp_resources",
			Description: "List resources available from connected MCP servers.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"server": map[string]any{
						"type":        "string",
						"description": "Optional server name to restrict the listing.",
					},
				},
			},
		},
	})

	if len(servers) > 0 {
		req.Tools = append(req.Tools,
			Tool{
				Type: "function",
				Function: FunctionDef{
					Name:        "read_mcp_resource",
					Description: "Read a single resource from an MCP server by URI.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"server": map[string]any{"type": "string"},
							"uri":    map[string]any{"type": "string"},
						},
						"required": []any{"server", "uri"},
					},
				},
			},
			Tool{
				Type: "function",
				Function: FunctionDef{
					Name:        "list_mcp_resource_templates",
					Description: "List resource templates offered by connected MCP servers.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"server": map[string]any{"type": "string"},
						},
					},
				},
			},
		)
	}

	if len(req.Tools) > 0 && !hasGuidance(req.Messages) {
		req.Messages = append(req.Messages, ChatMessage{Role: "system", Content: mcpGuidance})
	}
}

func hasTool(tools []Tool, name string) bool {
	for _, t := range tools {
		if t.Function.Name == name {
			return true
		}
	}
	return false
}

func hasGuidance(messages []ChatMessage) bool {
	for _, m := range messages {
		if m.Role == "system" && strings.Contains(m.Content, "MCP resource tools are available") {
			return true
		}
	}
	return false
}
