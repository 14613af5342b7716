package bridge

import "testing"

func toolNames(tools []Tool) map[string]bool {
	out := make(map[string]bool, len(tools))
	for _, t := range tools {
		out[t.Function.Name] = true
	}
	return out
}

func TestInjectMCPToolsWithoutServers(t *testing.T) {
	req := &ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "hi"}}}
	InjectMCPTools(req, nil)

	names := toolNames(req.Tools)
	if !names["list_mcp_resources"] {
		t.Error("list_mcp_resources missing")
	}
	if names["read_mcp_resource"] || names["list_mcp_resource_templates"] {
		t.Error("server-scoped tools injected without discovered servers")
	}
}

func TestInjectMCPToolsWithServers(t *testing.T) {
	req := &ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "hi"}}}
	InjectMCPTools(req, []string{"files"})

	names := toolNames(req.Tools)
	for _, want := range []string{"list_mcp_resources", "read_mcp_resource", "list_mcp_resource_templates"} {
		if !names[want] {
			t.Errorf("%s missing", want)
		}
	}
}

func TestInjectMCPToolsGuidanceAppendedOnce(t *testing.T) {
	req := &ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "hi"}}}
	InjectMCPTools(req, []string{"files"})
	InjectMCPTools(req, []string{"files"})

	count := 0
	for _, m := range req.Messages {
		if m.Role == "system" && m.Content == mcpGuidance {
			count++
		}
	}
	if count != 1 {
		t.Errorf("guidance messages = %d, want 1", count)
	}

	if got := len(req.Tools); got != 3 {
		t.Errorf("tools = %d, want 3 (no duplicate injection)", got)
	}
}
