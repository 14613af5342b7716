package bridge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ToolCallInvalidError reports a tool call that could not be repaired.
type ToolCallInvalidError struct {
	Index  int
	Reason string
}

func (e *ToolCallInvalidError) Error() string {
	return fmt.Sprintf("tool_call_invalid: call %d: %s", e.Index, e.Reason)
}

// ValidateToolCalls enforces the canonical envelope invariants on a
// response's tool calls: non-empty unique ids, a well-formed function name,
// and arguments serialized as a JSON string. Repairable violations are fixed
// in place using the declared tool schemas; unrepairable ones fail with
// ToolCallInvalidError.
func ValidateToolCalls(calls []ToolCall, tools []Tool) error {
	schemas := make(map[string]map[string]any, len(tools))
	for _, t := range tools {
		schemas[t.Function.Name] = t.Function.Parameters
	}

	seen := make(map[string]bool, len(calls))
	for i := range calls {
		call := &calls[i]

		if call.Type == "" {
			call.Type = "function"
		}

		name := call.Function.Name
		if name == "" {
			return &ToolCallInvalidError{Index: i, Reason: "missing function name"}
		}
		if !toolNamePattern.MatchString(name) {
			rewritten := rewriteDotName(name)
			if !toolNamePattern.MatchString(rewritten) {
				return &ToolCallInvalidError{Index: i, Reason: fmt.Sprintf("function name %q is not valid", name)}
			}
			call.Function.Name = rewritten
			name = rewritten
		}

		if call.ID == "" || seen[call.ID] {
			call.ID = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		seen[call.ID] = true

		normalized, _ := NormalizeArguments(name, call.Function.Arguments, schemas[name])
		call.Function.Arguments = normalized
	}
	return nil
}

// rewriteDotName keeps the portion after the last dot of a namespaced tool
// name such as server.fn.
func rewriteDotName(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 && idx < len(name)-1 {
		return name[idx+1:]
	}
	return name
}
