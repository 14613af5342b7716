// Package profile is the transport layer top: brand-specific policy for
// each provider family. A profile owns header precedence, request and
// response policy, optional signing, and upstream error mapping for one
// family. Everything protocol-shaped belongs to the adapters; everything
// brand-agnostic belongs to the kernel.
package profile

import (
	"fmt"

	"routecodex-hq/routecodex/pkg/kernel"
)

// Family names. The registry rejects anything outside this set.
const (
	FamilyIFlow       = "iflow"
	FamilyAntigravity = "antigravity"
	FamilyQwen        = "qwen"
	FamilyGLM         = "glm"
	FamilyGemini      = "gemini"
	FamilyGeminiCLI   = "gemini-cli"
	FamilyOpenAI      = "openai"
	FamilyAnthropic   = "anthropic"
)

// Draft is the mutable upstream exchange a profile's policies increment:
// the adapter builds it, the profile adjusts it, the kernel sends it.
type Draft struct {
	Endpoint string
	Headers  map[string]string
	Body     []byte
}

// Runtime carries per-request facts a policy may consult.
type Runtime struct {
	ProviderKey    string
	RequestID      string
	Model          string
	SessionID      string
	ConversationID string
	RouteHint      string
	ClientHeaders  map[string]string
}

// Profile is the declarative policy surface of one provider family.
type Profile interface {
	ID() string
	Family() string

	// ApplyRequestPolicy performs field injection or removal and endpoint
	// overrides for per-family routes.
	ApplyRequestPolicy(d *Draft, rt *Runtime) error

	// ApplyHeaderPolicy settles header precedence for the family.
	ApplyHeaderPolicy(d *Draft, rt *Runtime)

	// ApplyResponsePolicy classifies HTTP-200 business-error envelopes.
	// A nil return means the response is a genuine success.
	ApplyResponsePolicy(status int, body []byte, rt *Runtime) error

	// MapError reclassifies an upstream error into the kernel's shape.
	MapError(err error, rt *Runtime) error
}

// Signer is implemented by profiles whose family requires request signing.
type Signer interface {
	ApplySigningPolicy(d *Draft, rt *Runtime) error
}

// Base is the neutral policy set families embed and override selectively.
type Base struct {
	ProfileID  string
	FamilyName string
}

func (b *Base) ID() string     { return b.ProfileID }
func (b *Base) Family() string { return b.FamilyName }

func (b *Base) ApplyRequestPolicy(d *Draft, rt *Runtime) error { return nil }

func (b *Base) ApplyHeaderPolicy(d *Draft, rt *Runtime) {}

func (b *Base) ApplyResponsePolicy(status int, body []byte, rt *Runtime) error { return nil }

func (b *Base) MapError(err error, rt *Runtime) error { return err }

// UnknownFamilyError is returned for a compatibility profile outside the
// supported family set.
type UnknownFamilyError struct {
	Family string
}

func (e *UnknownFamilyError) Error() string {
	return fmt.Sprintf("unknown provider family %q", e.Family)
}

// upstreamError builds a kernel error for a business-envelope failure.
func upstreamError(status int, code string, upstreamCode int, body []byte, rt *Runtime) *kernel.Error {
	return &kernel.Error{
		StatusCode:   status,
		Code:         code,
		UpstreamCode: upstreamCode,
		ProviderKey:  rt.ProviderKey,
		RequestID:    rt.RequestID,
		Body:         string(body),
	}
}
