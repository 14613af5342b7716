// Package bridge is the tool canonicalizer and protocol bridge. It is the
// single component allowed to touch tool-call structure: OpenAI Chat,
// OpenAI Responses, and Anthropic Messages payloads enter through it, are
// converted to the canonical chat form, and are converted back on the way
// out. It also performs schema-driven argument normalization, tool-call
// validation and self-repair, and optional MCP tool injection.
//
// Compatibility and provider modules receive the canonical form and must
// never mutate tool_calls, function_call items, or tool result envelopes.
package bridge
