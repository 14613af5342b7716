package profile

import (
	"fmt"
	"os"

	"routecodex-hq/routecodex/pkg/config"
	"routecodex-hq/routecodex/pkg/protocol"
)

// familyInfo declares which protocols a family may be bound to and which
// profile serves it by default.
type familyInfo struct {
	allowedProtocols []string
	defaultProfileID string
}

var families = map[string]familyInfo{
	FamilyIFlow:       {[]string{protocol.OpenAIChat, protocol.OpenAIResponses}, "iflow-default"},
	FamilyAntigravity: {[]string{protocol.OpenAIChat}, "antigravity-default"},
	FamilyQwen:        {[]string{protocol.OpenAIChat}, "qwen-default"},
	FamilyGLM:         {[]string{protocol.OpenAIChat, protocol.AnthropicMessages}, "glm-default"},
	FamilyGemini:      {[]string{protocol.GeminiChat}, "gemini-default"},
	FamilyGeminiCLI:   {[]string{protocol.GeminiChat}, "gemini-cli-default"},
	FamilyOpenAI:      {[]string{protocol.OpenAIChat, protocol.OpenAIResponses}, "openai-default"},
	FamilyAnthropic:   {[]string{protocol.AnthropicMessages}, "anthropic-default"},
}

// Binding is the resolved triple plus the derived family and profile.
type Binding struct {
	ProviderID string
	Protocol   string
	Family     string
	Profile    Profile
}

// BindingError reports a protocol/family/profile inconsistency. Bindings
// never degrade silently; a mismatch is fatal at load time.
type BindingError struct {
	ProviderID string
	Reason     string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("binding for provider %q: %s", e.ProviderID, e.Reason)
}

// Registry resolves provider ids to their family, allowed protocols, and
// profile. It is populated once at startup and never instantiates anything
// at request time.
type Registry struct {
	bindings map[string]*Binding
}

// NewRegistry validates every provider's (protocol, id, profile) triple and
// constructs the per-family profile objects. Any inconsistency fails the
// whole load.
func NewRegistry(providers map[string]config.ProviderConfig) (*Registry, error) {
	r := &Registry{bindings: make(map[string]*Binding, len(providers))}

	for id, p := range providers {
		info, ok := families[p.CompatibilityProfile]
		if !ok {
			return nil, &BindingError{ProviderID: id, Reason: (&UnknownFamilyError{Family: p.CompatibilityProfile}).Error()}
		}

		allowed := false
		for _, proto := range info.allowedProtocols {
			if proto == p.ProviderProtocol {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, &BindingError{
				ProviderID: id,
				Reason: fmt.Sprintf("protocol %q is not allowed for family %q (allowed: %v)",
					p.ProviderProtocol, p.CompatibilityProfile, info.allowedProtocols),
			}
		}

		r.bindings[id] = &Binding{
			ProviderID: id,
			Protocol:   p.ProviderProtocol,
			Family:     p.CompatibilityProfile,
			Profile:    buildProfile(p.CompatibilityProfile),
		}
	}
	return r, nil
}

// Resolve returns the binding for a provider id. The protocol argument is
// checked against the binding; a mismatch means the route and provider
// configuration disagree, which is fatal.
func (r *Registry) Resolve(providerID, providerProtocol string) (*Binding, error) {
	b, ok := r.bindings[providerID]
	if !ok {
		return nil, &BindingError{ProviderID: providerID, Reason: "no binding registered"}
	}
	if providerProtocol != "" && providerProtocol != b.Protocol {
		return nil, &BindingError{
			ProviderID: providerID,
			Reason:     fmt.Sprintf("bound protocol %q does not match requested %q", b.Protocol, providerProtocol),
		}
	}
	return b, nil
}

func buildProfile(family string) Profile {
	switch family {
	case FamilyIFlow:
		return newIFlowProfile(os.Getenv("IFLOW_SIGNING_KEY"))
	case FamilyAntigravity:
		return newAntigravityProfile()
	case FamilyQwen:
		return newQwenProfile()
	case FamilyGLM:
		return newGLMProfile()
	case FamilyGemini:
		return newGeminiProfile()
	case FamilyGeminiCLI:
		return newGeminiCLIProfile()
	case FamilyAnthropic:
		return newAnthropicProfile()
	default:
		return newOpenAIProfile()
	}
}
