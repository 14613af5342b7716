package modules

import (
	"context"
	"fmt"

	"routecodex-hq/routecodex/pkg/pipeline"
)

// compatibilityModule applies config-driven request shaping for a provider
// family: model aliasing, sampling field removal, and token limits. It
// operates strictly on the canonical form and never touches tool calls or
// tool messages; that surface belongs to the llmswitch alone.
type compatibilityModule struct {
	id              string
	modelAliases    map[string]string
	dropFields      map[string]bool
	maxTokensCap    int
	defaultMaxToken int
}

func newCompatibility(mc map[string]any) (*compatibilityModule, error) {
	m := &compatibilityModule{
		id:           "compatibility:" + stringOption(mc, "name", "generic"),
		modelAliases: map[string]string{},
		dropFields:   map[string]bool{},
	}

	if aliases, ok := mc["model_aliases"].(map[string]any); ok {
		for from, to := range aliases {
			s, ok := to.(string)
			if !ok {
				return nil, fmt.Errorf("compatibility: model alias %q is not a string", from)
			}
			m.modelAliases[from] = s
		}
	}
	if fields, ok := mc["drop_fields"].([]any); ok {
		for _, f := range fields {
			name, ok := f.(string)
			if !ok {
				return nil, fmt.Errorf("compatibility: drop_fields entry %v is not a string", f)
			}
			switch name {
			case "temperature", "top_p", "stop", "max_tokens":
				m.dropFields[name] = true
			default:
				return nil, fmt.Errorf("compatibility: field %q cannot be dropped", name)
			}
		}
	}
	if limit, ok := numberOption(mc, "max_tokens_cap"); ok {
		m.maxTokensCap = limit
	}
	if def, ok := numberOption(mc, "default_max_tokens"); ok {
		m.defaultMaxToken = def
	}
	return m, nil
}

func (m *compatibilityModule) ID() string   { return m.id }
func (m *compatibilityModule) Type() string { return pipeline.TypeCompatibility }

func (m *compatibilityModule) ProcessIncoming(ctx context.Context, p *Payload) error {
	req := p.Chat
	if req == nil {
		return fmt.Errorf("compatibility: canonical request not yet built")
	}

	if alias, ok := m.modelAliases[req.Model]; ok {
		req.Model = alias
	}

	if m.dropFields["temperature"] {
		req.Temperature = nil
	}
	if m.dropFields["top_p"] {
		req.TopP = nil
	}
	if m.dropFields["stop"] {
		req.Stop = nil
	}
	if m.dropFields["max_tokens"] {
		req.MaxTokens = nil
	}

	if m.defaultMaxToken > 0 && req.MaxTokens == nil {
		v := m.defaultMaxToken
		req.MaxTokens = &v
	}
	if m.maxTokensCap > 0 && req.MaxTokens != nil && *req.MaxTokens > m.maxTokensCap {
		v := m.maxTokensCap
		req.MaxTokens = &v
	}
	return nil
}

func numberOption(mc map[string]any, key string) (int, bool) {
	switch v := mc[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
