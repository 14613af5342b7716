package config

import (
	"fmt"
	"regexp"
)

// Known enumeration values checked during validation.
var (
	knownProtocols = map[string]bool{
		"openai-chat":        true,
		"openai-responses":   true,
		"anthropic-messages": true,
		"gemini-chat":        true,
	}

	knownAuthTypes = map[string]bool{
		"apikey":    true,
		"bearer":    true,
		"tokenfile": true,
		"cookie":    true,
		"oauth":     true,
	}

	knownModuleTypes = map[string]bool{
		"provider":      true,
		"compatibility": true,
		"llmswitch":     true,
		"workflow":      true,
		"monitoring":    true,
	}

	knownCategories = map[string]bool{
		"":            true,
		"default":     true,
		"longcontext": true,
		"thinking":    true,
		"background":  true,
	}

	knownIDStyles = map[string]bool{
		"fc":       true,
		"preserve": true,
	}

	knownRetryPolicies = map[string]bool{
		"retry-immediate":   true,
		"retry-delayed":     true,
		"retry-exponential": true,
	}

	knownMemoryStrategies = map[string]bool{
		"lru":    true,
		"lfu":    true,
		"fifo":   true,
		"ttl":    true,
		"size":   true,
		"hybrid": true,
	}
)

// Validate checks the configuration for errors. It returns the first error
// found. Validation is strict: protocol mismatches, malformed triples, and
// structurally invalid routes are startup failures, never warnings.
func Validate(cfg *Config) error {
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	for id, p := range cfg.Providers {
		if err := validateProvider(id, &p); err != nil {
			return err
		}
	}

	if len(cfg.Routes) == 0 {
		return fmt.Errorf("at least one route must be configured")
	}

	defaults := 0
	seen := make(map[string]bool, len(cfg.Routes))
	for i := range cfg.Routes {
		r := &cfg.Routes[i]
		if err := validateRoute(cfg, r); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("route %q: duplicate route id", r.ID)
		}
		seen[r.ID] = true
		if r.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("at most one route may be marked default, found %d", defaults)
	}

	if !knownRetryPoliciesOK(cfg) {
		return fmt.Errorf("invalid retry policy in provider configuration")
	}

	if !knownMemoryStrategies[cfg.Pipeline.Memory.Strategy] {
		return fmt.Errorf("pipeline.memory.strategy: unknown strategy %q", cfg.Pipeline.Memory.Strategy)
	}

	switch cfg.Audit.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("audit.backend: unknown backend %q (supported: memory, sqlite)", cfg.Audit.Backend)
	}
	switch cfg.Audit.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("audit.driver: unknown driver %q (supported: sqlite3, sqlite)", cfg.Audit.Driver)
	}

	return nil
}

func validateProvider(id string, p *ProviderConfig) error {
	// The explicit triple is mandatory; the loader never infers it.
	if p.ProviderProtocol == "" || p.ProviderID == "" || p.CompatibilityProfile == "" {
		return fmt.Errorf("provider %q: explicit triple (provider_protocol, provider_id, compatibility_profile) is required", id)
	}
	if !knownProtocols[p.ProviderProtocol] {
		return fmt.Errorf("provider %q: unknown provider_protocol %q", id, p.ProviderProtocol)
	}
	if p.ProviderID != id {
		return fmt.Errorf("provider %q: provider_id %q must match its map key", id, p.ProviderID)
	}
	if p.BaseURL == "" {
		return fmt.Errorf("provider %q: base_url is required", id)
	}
	if !knownAuthTypes[p.Auth.Type] {
		return fmt.Errorf("provider %q: unknown auth type %q", id, p.Auth.Type)
	}
	switch p.Auth.Type {
	case "apikey", "bearer":
		if p.Auth.APIKey == "" {
			return fmt.Errorf("provider %q: auth.api_key is required for auth type %q", id, p.Auth.Type)
		}
	case "tokenfile":
		if p.Auth.TokenFile == "" {
			return fmt.Errorf("provider %q: auth.token_file is required for auth type tokenfile", id)
		}
	case "cookie":
		if p.Auth.Cookie == "" {
			return fmt.Errorf("provider %q: auth.cookie is required for auth type cookie", id)
		}
	case "oauth":
		if p.Auth.AccessToken == "" {
			return fmt.Errorf("provider %q: auth.access_token is required for auth type oauth", id)
		}
	}
	if !knownIDStyles[p.Responses.ToolCallIDStyle] {
		return fmt.Errorf("provider %q: unknown responses.tool_call_id_style %q", id, p.Responses.ToolCallIDStyle)
	}
	return nil
}

func validateRoute(cfg *Config, r *RouteConfig) error {
	if r.ID == "" {
		return fmt.Errorf("route: id is required")
	}
	if !knownCategories[r.Category] {
		return fmt.Errorf("route %q: unknown category %q", r.ID, r.Category)
	}
	if r.Pattern.Model != "" {
		if _, err := regexp.Compile(r.Pattern.Model); err != nil {
			return fmt.Errorf("route %q: invalid model pattern: %w", r.ID, err)
		}
	}
	if r.Pattern.Provider != "" {
		if _, ok := cfg.Providers[r.Pattern.Provider]; !ok {
			return fmt.Errorf("route %q: pattern references unknown provider %q", r.ID, r.Pattern.Provider)
		}
	}
	if r.Pattern.Condition != nil {
		if err := validateCondition(r.ID, r.Pattern.Condition); err != nil {
			return err
		}
	}

	if len(r.Modules) == 0 {
		return fmt.Errorf("route %q: at least one module is required", r.ID)
	}
	for i, m := range r.Modules {
		if !knownModuleTypes[m.Type] {
			return fmt.Errorf("route %q: module %d: unknown module type %q", r.ID, i, m.Type)
		}
		if m.ConfigRef != "" && m.Config != nil {
			return fmt.Errorf("route %q: module %d: config_ref and config are mutually exclusive", r.ID, i)
		}
		if m.ConfigRef != "" {
			if _, ok := cfg.ModuleConfigs[m.ConfigRef]; !ok {
				return fmt.Errorf("route %q: module %d: unknown config_ref %q", r.ID, i, m.ConfigRef)
			}
		}
	}

	// Tool-handling ownership rule: only the llmswitch may touch tool
	// calls, and every chain must end in one.
	if r.Modules[len(r.Modules)-1].Type != "llmswitch" {
		return fmt.Errorf("route %q: last module must be of type llmswitch", r.ID)
	}

	// The chain needs exactly one provider to execute against.
	providers := 0
	for _, m := range r.Modules {
		if m.Type == "provider" {
			providers++
		}
	}
	if providers != 1 {
		return fmt.Errorf("route %q: exactly one provider module is required, found %d", r.ID, providers)
	}

	return nil
}

func validateCondition(routeID string, c *ConditionConfig) error {
	if c.Field == "" {
		return fmt.Errorf("route %q: condition field is required", routeID)
	}
	set := 0
	if c.Equals != nil {
		set++
	}
	if c.Present != nil {
		set++
	}
	if c.Range != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("route %q: condition must set exactly one of equals, present, range", routeID)
	}
	if c.Range != nil && c.Range.Min > c.Range.Max {
		return fmt.Errorf("route %q: condition range min must not exceed max", routeID)
	}
	return nil
}

func knownRetryPoliciesOK(cfg *Config) bool {
	for _, p := range cfg.Providers {
		if !knownRetryPolicies[p.Retry.Policy] {
			return false
		}
	}
	return true
}

// ResolveModuleConfig resolves a module spec's configuration, following a
// config_ref into the shared module configuration library when present.
func ResolveModuleConfig(cfg *Config, spec ModuleSpec) (map[string]any, error) {
	if spec.ConfigRef != "" {
		ref, ok := cfg.ModuleConfigs[spec.ConfigRef]
		if !ok {
			return nil, fmt.Errorf("unknown config_ref %q", spec.ConfigRef)
		}
		return ref, nil
	}
	if spec.Config != nil {
		return spec.Config, nil
	}
	return map[string]any{}, nil
}
