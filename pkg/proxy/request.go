package proxy

import (
	"encoding/json"
	"net/http"
	"strings"

	"routecodex-hq/routecodex/pkg/pipeline"
)

// CategoryHeader lets clients tag a request with a route category
// explicitly; categories are never inferred. ProviderHeader is the matching
// explicit tag for route patterns with a provider constraint.
const (
	CategoryHeader = "X-Route-Category"
	ProviderHeader = "X-Route-Provider"
)

// sniff is the minimal view of any inbound body the proxy reads itself.
// Full decoding happens inside the chain's llmswitch.
type sniff struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// buildPayload turns a raw inbound body into pipeline work. The body is
// not validated here beyond the model sniff; malformed JSON is still
// caught because the model cannot be extracted from it.
func buildPayload(r *http.Request, requestID, clientFormat string, body []byte) (*pipeline.Payload, *ErrorEnvelope) {
	var s sniff
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, &ErrorEnvelope{
			Status:    http.StatusBadRequest,
			Kind:      KindValidation,
			Code:      "invalid_payload",
			Message:   "request body is not valid JSON",
			RequestID: requestID,
		}
	}
	if s.Model == "" {
		return nil, &ErrorEnvelope{
			Status:    http.StatusBadRequest,
			Kind:      KindValidation,
			Code:      "missing_model",
			Message:   "request has no model field",
			RequestID: requestID,
		}
	}

	// Route conditions evaluate against the payload's top-level fields.
	var fields map[string]any
	_ = json.Unmarshal(body, &fields)

	return &pipeline.Payload{
		RequestID:      requestID,
		ClientFormat:   clientFormat,
		Category:       r.Header.Get(CategoryHeader),
		ModelHint:      s.Model,
		ProviderHint:   r.Header.Get(ProviderHeader),
		ClientBody:     body,
		Stream:         s.Stream || wantsStream(r),
		SessionID:      r.Header.Get("session-id"),
		ConversationID: r.Header.Get("conversation-id"),
		ClientHeaders:  clientHeaders(r),
		Meta:           fields,
	}, nil
}

func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// clientHeaders captures the inbound headers family profiles may consult.
// Credentials stay behind: the kernel owns upstream auth.
func clientHeaders(r *http.Request) map[string]string {
	out := map[string]string{}
	for _, k := range []string{"User-Agent", "session-id", "conversation-id", "OpenAI-Beta"} {
		if v := r.Header.Get(k); v != "" {
			out[k] = v
		}
	}
	return out
}
