package bridge

import (
	"strings"
	"testing"
)

func TestValidateToolCallsRepairsIDs(t *testing.T) {
	calls := []ToolCall{
		{Function: FunctionCall{Name: "shell", Arguments: `{}`}},
		{ID: "call_1", Type: "function", Function: FunctionCall{Name: "shell", Arguments: `{}`}},
		{ID: "call_1", Type: "function", Function: FunctionCall{Name: "shell", Arguments: `{}`}},
	}
	if err := ValidateToolCalls(calls, nil); err != nil {
		t.Fatalf("ValidateToolCalls() error = %v", err)
	}

	seen := map[string]bool{}
	for i, c := range calls {
		if c.ID == "" {
			t.Errorf("call %d: empty id after repair", i)
		}
		if seen[c.ID] {
			t.Errorf("call %d: duplicate id %q after repair", i, c.ID)
		}
		seen[c.ID] = true
		if c.Type != "function" {
			t.Errorf("call %d: type = %q", i, c.Type)
		}
	}
	if calls[1].ID != "call_1" {
		t.Errorf("first holder of call_1 was renamed: %q", calls[1].ID)
	}
}

func TestValidateToolCallsRejectsMissingName(t *testing.T) {
	calls := []ToolCall{{ID: "c", Type: "function", Function: FunctionCall{Arguments: `{}`}}}
	err := ValidateToolCalls(calls, nil)
	if err == nil {
		t.Fatal("expected error for missing name")
	}
	if !strings.Contains(err.Error(), "tool_call_invalid") {
		t.Errorf("error = %v", err)
	}
}

func TestValidateToolCallsRewritesDottedName(t *testing.T) {
	calls := []ToolCall{{ID: "c", Type: "function", Function: FunctionCall{Name: "files.search", Arguments: `{}`}}}
	if err := ValidateToolCalls(calls, nil); err != nil {
		t.Fatalf("ValidateToolCalls() error = %v", err)
	}
	if calls[0].Function.Name != "search" {
		t.Errorf("name = %q, want search", calls[0].Function.Name)
	}
}

func TestValidateToolCallsNormalizesArguments(t *testing.T) {
	tools := []Tool{{Type: "function", Function: FunctionDef{Name: "shell", Parameters: shellSchema()}}}
	calls := []ToolCall{{ID: "c", Type: "function", Function: FunctionCall{Name: "shell", Arguments: `{command: '[ls, -la]'}`}}}
	if err := ValidateToolCalls(calls, tools); err != nil {
		t.Fatalf("ValidateToolCalls() error = %v", err)
	}
	m := decodeArgs(t, calls[0].Function.Arguments)
	if _, ok := m["command"].([]any); !ok {
		t.Errorf("command not coerced to array: %v", m["command"])
	}
}

func TestApplySelfRepair(t *testing.T) {
	env := NewResultEnvelope("shell", "call_1", []byte(`"original output"`))
	tools := []Tool{
		{Type: "function", Function: FunctionDef{Name: "shell"}},
		{Type: "function", Function: FunctionDef{Name: "view_image"}},
	}

	ApplySelfRepair(env, RepairArgumentParse, "unbalanced braces", tools)

	if env.Result.Success {
		t.Error("success not forced false")
	}
	if env.Result.Output != "original output" {
		t.Errorf("original output lost: %v", env.Result.Output)
	}
	hint := env.Result.Stderr
	for _, want := range []string{"argument_parse_failure", "unbalanced braces", "shell", "view_image", "call shape example"} {
		if !strings.Contains(hint, want) {
			t.Errorf("hint missing %q:\n%s", want, hint)
		}
	}
}

func TestIsImagePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"shot.png", true},
		{"photo.JPG", true},
		{"doc.pdf", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := IsImagePath(tt.path); got != tt.want {
			t.Errorf("IsImagePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMapToolCallID(t *testing.T) {
	tests := []struct {
		style, id, want string
	}{
		{"preserve", "call_abc", "call_abc"},
		{"fc", "call_abc", "fc_abc"},
		{"fc", "fc_abc", "fc_abc"},
		{"fc", "fc-abc", "fc-abc"},
		{"fc", "xyz", "fc_xyz"},
		{"fc", "", ""},
	}
	for _, tt := range tests {
		if got := MapToolCallID(tt.style, tt.id); got != tt.want {
			t.Errorf("MapToolCallID(%q, %q) = %q, want %q", tt.style, tt.id, got, tt.want)
		}
	}
}
