package bridge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Diagnostic describes a normalization problem. It is returned alongside the
// best-effort result instead of aborting the request; the self-repair path
// folds it into the result envelope's stderr.
type Diagnostic struct {
	Stage   string
	Message string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("argument normalization (%s): %s", d.Stage, d.Message)
}

var (
	fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	unquotedKeyPattern = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_-]*)\s*:`)
	keyValueLine       = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.-]*)\s*[=:]\s*(.*?)\s*$`)
	shellMetaPattern   = regexp.MustCompile(`\|\||&&|;|>>|<<|>|<|\|`)
)

// NormalizeArguments parses a raw arguments payload leniently and coerces
// each property to the type its JSON-Schema declares. The returned string is
// always valid JSON. Normalization is idempotent: feeding the result back in
// produces the same result.
//
// toolName selects tool-specific handling; the shell tool gets argv merging
// and meta-operator rewriting on its command property.
func NormalizeArguments(toolName, raw string, schema map[string]any) (string, *Diagnostic) {
	value, diag := parseLenient(raw)

	obj, ok := value.(map[string]any)
	if !ok {
		// An array payload binds to the schema's single array property when
		// there is exactly one, which covers shell commands sent bare.
		if arr, isArr := value.([]any); isArr {
			if prop := soleArrayProperty(schema); prop != "" {
				obj = map[string]any{prop: arr}
			}
		}
		if obj == nil {
			obj = map[string]any{"_raw": raw}
			if diag == nil {
				diag = &Diagnostic{Stage: "shape", Message: "arguments did not decode to an object"}
			}
		}
	}

	coerceProperties(toolName, obj, schema)

	if toolName == "shell" {
		mergeShellArgv(obj, schema)
		rewriteShellMeta(obj)
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return raw, &Diagnostic{Stage: "encode", Message: err.Error()}
	}
	return string(out), diag
}

// parseLenient walks the recovery ladder: strict JSON, fenced code block,
// object substring, array substring, quote and key repair, key=value lines.
// The final fallback is handled by the caller.
func parseLenient(raw string) (any, *Diagnostic) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		if _, isStr := v.(string); !isStr {
			return v, nil
		}
		// A JSON string wrapping more JSON gets one more pass.
		var inner any
		if err := json.Unmarshal([]byte(v.(string)), &inner); err == nil {
			return inner, nil
		}
		return v, nil
	}

	if m := fencedBlockPattern.FindStringSubmatch(trimmed); m != nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &v); err == nil {
			return v, nil
		}
	}

	if sub := substring(trimmed, '{', '}'); sub != "" {
		if err := json.Unmarshal([]byte(sub), &v); err == nil {
			return v, nil
		}
	}
	if sub := substring(trimmed, '[', ']'); sub != "" {
		if err := json.Unmarshal([]byte(sub), &v); err == nil {
			return v, nil
		}
	}

	repaired := unquotedKeyPattern.ReplaceAllString(strings.ReplaceAll(trimmed, "'", `"`), `$1"$2":`)
	if err := json.Unmarshal([]byte(repaired), &v); err == nil {
		return v, nil
	}

	if m := parseKeyValueLines(trimmed); m != nil {
		return m, nil
	}

	return nil, &Diagnostic{Stage: "parse", Message: "no recovery stage produced valid JSON"}
}

func substring(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func parseKeyValueLines(s string) map[string]any {
	lines := strings.Split(s, "\n")
	out := map[string]any{}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := keyValueLine.FindStringSubmatch(line)
		if m == nil {
			return nil
		}
		out[m[1]] = parseScalar(m[2])
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseScalar decodes a bare value as JSON when it is valid JSON and keeps
// it as a string otherwise.
func parseScalar(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return strings.Trim(s, `"'`)
}

// coerceProperties aligns each present property with its declared type.
func coerceProperties(toolName string, obj map[string]any, schema map[string]any) {
	props, _ := schemaProperties(schema)
	for name, rawProp := range props {
		prop, ok := rawProp.(map[string]any)
		if !ok {
			continue
		}
		val, present := obj[name]
		if !present || val == nil {
			continue
		}
		obj[name] = coerceValue(toolName, name, val, prop)
	}
}

func coerceValue(toolName, propName string, val any, prop map[string]any) any {
	declared, _ := prop["type"].(string)
	switch declared {
	case "string":
		return stringify(val)
	case "array":
		return coerceArray(toolName, propName, val, prop)
	case "object":
		if s, ok := val.(string); ok {
			var m map[string]any
			if err := json.Unmarshal([]byte(s), &m); err == nil {
				return m
			}
		}
		return val
	case "number", "integer":
		return coerceNumber(val)
	case "boolean":
		if s, ok := val.(string); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return b
			}
		}
		return val
	default:
		return val
	}
}

func coerceArray(toolName, propName string, val any, prop map[string]any) any {
	stringItems := false
	if items, ok := prop["items"].(map[string]any); ok {
		t, _ := items["type"].(string)
		stringItems = t == "string"
	}

	switch v := val.(type) {
	case []any:
		if !stringItems {
			return v
		}
		out := make([]any, len(v))
		for i, el := range v {
			out[i] = stringify(el)
		}
		return out
	case string:
		return tokenize(toolName, propName, v)
	default:
		return []any{stringify(v)}
	}
}

// tokenize turns a string into an argv-style array. The shell command
// property additionally sheds bracket and comma decoration left over from
// models that emit pseudo-array text.
func tokenize(toolName, propName, s string) []any {
	if toolName == "shell" && propName == "command" {
		s = strings.Trim(strings.TrimSpace(s), "[]")
		s = strings.ReplaceAll(s, `","`, " ")
		s = strings.ReplaceAll(s, ",", " ")
		s = strings.ReplaceAll(s, `"`, "")
	}
	fields := strings.Fields(s)
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f
	}
	return out
}

func coerceNumber(val any) any {
	if s, ok := val.(string); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return val
}

func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// mergeShellArgv folds keys outside the declared schema into the command
// argv so stray model output like {"command":["git"],"-C":"/repo"} still
// executes as intended.
func mergeShellArgv(obj map[string]any, schema map[string]any) {
	props, _ := schemaProperties(schema)

	extras := make([]string, 0)
	for key := range obj {
		if key == "command" || key == "_raw" {
			continue
		}
		if _, declared := props[key]; declared {
			continue
		}
		extras = append(extras, key)
	}
	if len(extras) == 0 {
		return
	}
	sort.Strings(extras)

	argv, _ := obj["command"].([]any)
	for _, key := range extras {
		val := obj[key]
		delete(obj, key)
		switch v := val.(type) {
		case bool:
			if v {
				argv = append(argv, key)
			}
		case []any:
			argv = append(argv, key)
			for _, el := range v {
				argv = append(argv, stringify(el))
			}
		default:
			argv = append(argv, key, stringify(val))
		}
	}
	obj["command"] = argv
}

// rewriteShellMeta converts an argv containing shell meta-operators into a
// bash -lc invocation so executors that do not spawn a shell still honor
// pipes and redirection.
func rewriteShellMeta(obj map[string]any) {
	argv, ok := obj["command"].([]any)
	if !ok || len(argv) == 0 {
		return
	}
	if len(argv) == 3 && argv[0] == "bash" && argv[1] == "-lc" {
		return
	}

	hasMeta := false
	tokens := make([]string, len(argv))
	for i, el := range argv {
		tokens[i] = stringify(el)
		if shellMetaPattern.MatchString(tokens[i]) {
			hasMeta = true
		}
	}
	if !hasMeta {
		return
	}
	obj["command"] = []any{"bash", "-lc", strings.Join(tokens, " ")}
}

func schemaProperties(schema map[string]any) (map[string]any, bool) {
	if schema == nil {
		return nil, false
	}
	props, ok := schema["properties"].(map[string]any)
	return props, ok
}

// soleArrayProperty returns the name of the schema's only array-typed
// property when it has exactly one, "" otherwise.
func soleArrayProperty(schema map[string]any) string {
	props, ok := schemaProperties(schema)
	if !ok {
		return ""
	}
	found := ""
	for name, rawProp := range props {
		prop, ok := rawProp.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := prop["type"].(string); t == "array" {
			if found != "" {
				return ""
			}
			found = name
		}
	}
	return found
}
