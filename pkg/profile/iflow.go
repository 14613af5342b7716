package profile

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"routecodex-hq/routecodex/pkg/kernel"
)

// RouteHintWebSearch marks requests a route has tagged for the iFlow web
// search endpoint.
const RouteHintWebSearch = "iflowWebSearch"

// iflowUserAgent is mandatory on every upstream call regardless of the
// inbound User-Agent.
const iflowUserAgent = "iFlow-Cli"

type iflowProfile struct {
	Base
	signingKey string
}

func newIFlowProfile(signingKey string) *iflowProfile {
	return &iflowProfile{
		Base:       Base{ProfileID: "iflow-default", FamilyName: FamilyIFlow},
		signingKey: signingKey,
	}
}

// ApplyRequestPolicy overrides the endpoint for web search routes.
func (p *iflowProfile) ApplyRequestPolicy(d *Draft, rt *Runtime) error {
	if rt.RouteHint == RouteHintWebSearch {
		d.Endpoint = replaceLastSegment(d.Endpoint, "/chat/retrieve")
	}
	return nil
}

// ApplyHeaderPolicy forces the iFlow user agent over whatever the client
// sent and propagates session correlation headers.
func (p *iflowProfile) ApplyHeaderPolicy(d *Draft, rt *Runtime) {
	d.Headers["User-Agent"] = iflowUserAgent
	if rt.SessionID != "" {
		d.Headers["session-id"] = rt.SessionID
	}
	if rt.ConversationID != "" {
		d.Headers["conversation-id"] = rt.ConversationID
	}
}

// ApplySigningPolicy signs the session correlation headers with the
// per-family HMAC key.
func (p *iflowProfile) ApplySigningPolicy(d *Draft, rt *Runtime) error {
	if p.signingKey == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(p.signingKey))
	mac.Write([]byte("session-id:" + d.Headers["session-id"]))
	mac.Write([]byte("\nconversation-id:" + d.Headers["conversation-id"]))
	d.Headers["x-iflow-signature"] = hex.EncodeToString(mac.Sum(nil))
	return nil
}

// ApplyResponsePolicy reclassifies iFlow's HTTP-200 business errors: body
// {status:439} means the token expired, and error_code/msg envelopes are
// client errors even though the transport said 200.
func (p *iflowProfile) ApplyResponsePolicy(status int, body []byte, rt *Runtime) error {
	if status != http.StatusOK {
		return nil
	}
	var envelope struct {
		Status    int    `json:"status"`
		ErrorCode *int   `json:"error_code"`
		Msg       string `json:"msg"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	if envelope.Status == 439 {
		return upstreamError(http.StatusForbidden, kernel.CodeTokenExpired, 439, body, rt)
	}
	if envelope.ErrorCode != nil {
		return upstreamError(http.StatusBadRequest, "HTTP_400", *envelope.ErrorCode, body, rt)
	}
	return nil
}

// replaceLastSegment replaces the trailing /chat/... portion of an endpoint
// such as <base>/chat/completions with the override path, preserving the
// base URL portion.
func replaceLastSegment(endpoint, override string) string {
	i := strings.LastIndexByte(endpoint, '/')
	if i <= 0 {
		return endpoint
	}
	j := strings.LastIndexByte(endpoint[:i], '/')
	if j <= 0 {
		return endpoint
	}
	return endpoint[:j] + override
}
