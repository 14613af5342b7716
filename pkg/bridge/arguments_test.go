package bridge

import (
	"encoding/json"
	"reflect"
	"testing"
)

func shellSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"workdir": map[string]any{"type": "string"},
		},
	}
}

func decodeArgs(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("normalized arguments are not valid JSON: %v\n%s", err, s)
	}
	return m
}

func TestNormalizeArgumentsRecoveryLadder(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
			"line": map[string]any{"type": "number"},
		},
	}

	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "strict json",
			raw:  `{"path":"main.go","line":10}`,
			want: map[string]any{"path": "main.go", "line": 10.0},
		},
		{
			name: "fenced block",
			raw:  "```json\n{\"path\":\"main.go\"}\n```",
			want: map[string]any{"path": "main.go"},
		},
		{
			name: "object substring",
			raw:  `the arguments are {"path":"main.go"} as requested`,
			want: map[string]any{"path": "main.go"},
		},
		{
			name: "single quotes and bare keys",
			raw:  `{path: 'main.go', line: 10}`,
			want: map[string]any{"path": "main.go", "line": 10.0},
		},
		{
			name: "key=value lines",
			raw:  "path=main.go\nline=10",
			want: map[string]any{"path": "main.go", "line": 10.0},
		},
		{
			name: "string coerced to number",
			raw:  `{"path":"main.go","line":"10"}`,
			want: map[string]any{"path": "main.go", "line": 10.0},
		},
		{
			name: "double-encoded json string",
			raw:  `"{\"path\":\"main.go\"}"`,
			want: map[string]any{"path": "main.go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, diag := NormalizeArguments("edit", tt.raw, schema)
			if diag != nil {
				t.Fatalf("unexpected diagnostic: %v", diag)
			}
			if !reflect.DeepEqual(decodeArgs(t, got), tt.want) {
				t.Errorf("normalized = %s, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeArgumentsRawFallback(t *testing.T) {
	got, diag := NormalizeArguments("edit", "complete garbage without structure", nil)
	if diag == nil {
		t.Fatal("expected a diagnostic for unparseable input")
	}
	m := decodeArgs(t, got)
	if m["_raw"] != "complete garbage without structure" {
		t.Errorf("_raw = %v", m["_raw"])
	}
}

func TestNormalizeArgumentsIdempotent(t *testing.T) {
	inputs := []string{
		`{"command":"[ls, -la]"}`,
		`{"command":["cat","a.txt","|","grep","x"]}`,
		"not json at all",
		`{path: 'x'}`,
	}
	for _, raw := range inputs {
		once, _ := NormalizeArguments("shell", raw, shellSchema())
		twice, _ := NormalizeArguments("shell", once, shellSchema())
		if once != twice {
			t.Errorf("not idempotent for %q:\nonce:  %s\ntwice: %s", raw, once, twice)
		}
	}
}

func TestShellCommandTokenization(t *testing.T) {
	got, _ := NormalizeArguments("shell", `{"command":"[\"ls\", \"-la\"]"}`, shellSchema())
	m := decodeArgs(t, got)
	want := []any{"ls", "-la"}
	if !reflect.DeepEqual(m["command"], want) {
		t.Errorf("command = %v, want %v", m["command"], want)
	}
}

func TestShellBareArrayBindsToCommand(t *testing.T) {
	got, _ := NormalizeArguments("shell", `["git","status"]`, shellSchema())
	m := decodeArgs(t, got)
	if !reflect.DeepEqual(m["command"], []any{"git", "status"}) {
		t.Errorf("command = %v", m["command"])
	}
}

func TestShellExtraKeysMergeIntoArgv(t *testing.T) {
	got, _ := NormalizeArguments("shell", `{"command":["git","log"],"-n":"5"}`, shellSchema())
	m := decodeArgs(t, got)
	want := []any{"git", "log", "-n", "5"}
	if !reflect.DeepEqual(m["command"], want) {
		t.Errorf("command = %v, want %v", m["command"], want)
	}
	if _, leftover := m["-n"]; leftover {
		t.Error("extra key was not removed after merge")
	}
}

func TestShellMetaOperatorRewrite(t *testing.T) {
	got, _ := NormalizeArguments("shell", `{"command":["cat","a.txt","|","grep","x"]}`, shellSchema())
	m := decodeArgs(t, got)
	want := []any{"bash", "-lc", "cat a.txt | grep x"}
	if !reflect.DeepEqual(m["command"], want) {
		t.Errorf("command = %v, want %v", m["command"], want)
	}

	// A command already wrapped must not be wrapped again.
	again, _ := NormalizeArguments("shell", got, shellSchema())
	if again != got {
		t.Errorf("rewrite not stable: %s vs %s", got, again)
	}
}

func TestShellPlainCommandNotRewritten(t *testing.T) {
	got, _ := NormalizeArguments("shell", `{"command":["ls","-la"]}`, shellSchema())
	m := decodeArgs(t, got)
	if !reflect.DeepEqual(m["command"], []any{"ls", "-la"}) {
		t.Errorf("command = %v", m["command"])
	}
}
