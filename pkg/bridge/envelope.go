package bridge

import (
	"encoding/json"
	"time"
)

// EnvelopeVersion identifies the canonical tool result envelope shape.
const EnvelopeVersion = "rcc.tool.v1"

// ResultEnvelope is the canonical tool result shape. It is produced when a
// Responses-style function_call_output (or Anthropic tool_result) is
// translated into a Chat-style tool message, and it is the only form in
// which tool results travel through the pipeline.
type ResultEnvelope struct {
	Version   string         `json:"version"`
	Tool      EnvelopeTool   `json:"tool"`
	Arguments any            `json:"arguments,omitempty"`
	Executed  *EnvelopeExec  `json:"executed,omitempty"`
	Result    EnvelopeResult `json:"result"`
	Meta      EnvelopeMeta   `json:"meta"`
}

// EnvelopeTool identifies the tool invocation the result belongs to.
type EnvelopeTool struct {
	Name   string `json:"name"`
	CallID string `json:"call_id"`
}

// EnvelopeExec records what was actually executed, when known.
type EnvelopeExec struct {
	Command []string `json:"command"`
	Workdir string   `json:"workdir,omitempty"`
}

// EnvelopeResult carries the outcome. Output always preserves the original
// upstream body, even when stderr has been replaced with a repair hint.
type EnvelopeResult struct {
	Success         bool     `json:"success"`
	ExitCode        *int     `json:"exit_code,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Stdout          string   `json:"stdout,omitempty"`
	Stderr          string   `json:"stderr,omitempty"`
	Output          any      `json:"output"`
}

// EnvelopeMeta duplicates the call id and stamps the conversion time.
type EnvelopeMeta struct {
	CallID string `json:"call_id"`
	TS     string `json:"ts"`
}

// NewResultEnvelope builds an envelope for a raw tool output. The output is
// decoded as JSON when possible and kept as a string otherwise. Outputs that
// already carry an envelope of the current version are returned as-is, so
// re-encoding a tool message is the identity.
func NewResultEnvelope(name, callID string, output json.RawMessage) *ResultEnvelope {
	if env := decodeEnvelope(output); env != nil {
		return env
	}

	var decoded any
	if len(output) > 0 && json.Valid(output) {
		_ = json.Unmarshal(output, &decoded)
	}
	if decoded == nil && len(output) > 0 {
		var s string
		if err := json.Unmarshal(output, &s); err == nil {
			decoded = s
		} else {
			decoded = string(output)
		}
	}

	return &ResultEnvelope{
		Version: EnvelopeVersion,
		Tool:    EnvelopeTool{Name: name, CallID: callID},
		Result:  EnvelopeResult{Success: true, Output: decoded},
		Meta:    EnvelopeMeta{CallID: callID, TS: time.Now().UTC().Format(time.RFC3339)},
	}
}

// Encode serializes the envelope for embedding as tool message content.
func (e *ResultEnvelope) Encode() string {
	b, err := json.Marshal(e)
	if err != nil {
		return `{"version":"` + EnvelopeVersion + `","result":{"success":false,"output":null}}`
	}
	return string(b)
}

// decodeEnvelope returns the parsed envelope when raw already holds one of
// the current version, nil otherwise.
func decodeEnvelope(raw json.RawMessage) *ResultEnvelope {
	if len(raw) == 0 {
		return nil
	}
	data := raw
	// The output may arrive as a JSON string wrapping the envelope.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		data = []byte(s)
	}
	var env ResultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	if env.Version != EnvelopeVersion {
		return nil
	}
	return &env
}
