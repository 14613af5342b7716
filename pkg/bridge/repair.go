package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RepairReason classifies why a tool invocation needed self-repair.
type RepairReason string

const (
	RepairUnsupportedCall RepairReason = "unsupported_call"
	RepairMissingName     RepairReason = "missing_function_name"
	RepairArgumentParse   RepairReason = "argument_parse_failure"
	RepairNonImageView    RepairReason = "view_image_non_image_path"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".bmp": true, ".svg": true,
}

// IsImagePath reports whether a path names a file view_image can display.
func IsImagePath(path string) bool {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return false
	}
	return imageExtensions[strings.ToLower(path[idx:])]
}

// repairNote records a failure detected on an assistant tool call. It is
// applied to the paired result envelope when the tool output arrives.
type repairNote struct {
	reason RepairReason
	detail string
}

// detectCallFailure classifies an assistant tool call against the declared
// tool set. The second return is false when the call is sound.
func detectCallFailure(name, rawArgs string, tools []Tool) (repairNote, bool) {
	if name == "" {
		return repairNote{reason: RepairMissingName, detail: "the call did not name a function"}, true
	}
	if len(tools) > 0 && schemaDeclared(tools, name) == nil {
		return repairNote{
			reason: RepairUnsupportedCall,
			detail: fmt.Sprintf("no declared tool named %q", name),
		}, true
	}

	normalized, diag := NormalizeArguments(name, rawArgs, schemaFor(tools, name))
	if diag != nil {
		return repairNote{reason: RepairArgumentParse, detail: diag.Error()}, true
	}

	if name == "view_image" {
		if path := viewImagePath(normalized); path != "" && !IsImagePath(path) {
			return repairNote{
				reason: RepairNonImageView,
				detail: fmt.Sprintf("path %q is not an image file", path),
			}, true
		}
	}
	return repairNote{}, false
}

// schemaDeclared reports whether a tool of that name is declared; unlike
// schemaFor it distinguishes an undeclared tool from one with a nil schema.
func schemaDeclared(tools []Tool, name string) *Tool {
	for i := range tools {
		if tools[i].Function.Name == name {
			return &tools[i]
		}
	}
	return nil
}

func viewImagePath(args string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(args), &m); err != nil {
		return ""
	}
	if p, ok := m["path"].(string); ok {
		return p
	}
	if p, ok := m["file_path"].(string); ok {
		return p
	}
	return ""
}

// ApplySelfRepair rewrites the envelope for a failed tool invocation. The
// stderr field becomes a structured diagnostic hint listing the allowed
// tools and a correct-shape example, success is forced false, and the
// original upstream body stays in result.output for the model to inspect.
func ApplySelfRepair(env *ResultEnvelope, reason RepairReason, detail string, tools []Tool) {
	env.Result.Success = false
	env.Result.Stderr = repairHint(reason, detail, tools)
}

func repairHint(reason RepairReason, detail string, tools []Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tool invocation failed (%s)", reason)
	if detail != "" {
		fmt.Fprintf(&b, ": %s", detail)
	}
	b.WriteString("\n")

	if len(tools) > 0 {
		b.WriteString("allowed tools: ")
		names := make([]string, 0, len(tools))
		for _, t := range tools {
			names = append(names, t.Function.Name)
		}
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("\n")
	}

	b.WriteString(`call shape example: {"id":"call_abc123","type":"function","function":{"name":"shell","arguments":"{\"command\":[\"ls\",\"-la\"]}"}}`)
	return b.String()
}
