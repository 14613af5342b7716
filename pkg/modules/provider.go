package modules

import (
	"context"
	"fmt"
	"net/http"

	"routecodex-hq/routecodex/pkg/config"
	"routecodex-hq/routecodex/pkg/kernel"
	"routecodex-hq/routecodex/pkg/pipeline"
	"routecodex-hq/routecodex/pkg/profile"
	"routecodex-hq/routecodex/pkg/protocol"
	"routecodex-hq/routecodex/pkg/resources"
)

// providerModule composes the three transport layers for one provider
// entry: the kernel executes, the protocol adapter shapes the wire, and the
// family profile applies brand policy. Composition order per request:
// adapter builds endpoint and body, profile applies its increments, kernel
// sends, adapter parses, profile post-processes.
type providerModule struct {
	id        string
	provider  config.ProviderConfig
	adapter   protocol.Adapter
	prof      profile.Profile
	kern      *kernel.Kernel
	breaker   *resources.Breaker
	routeHint string
}

func newProvider(providerID string, cfg config.ProviderConfig, binding *profile.Binding, sink kernel.SnapshotSink, routeHint string, brk config.BreakerConfig) (*providerModule, error) {
	adapter, err := protocol.ForProtocol(cfg.ProviderProtocol)
	if err != nil {
		return nil, err
	}
	kern, err := kernel.New(providerID, cfg, sink)
	if err != nil {
		return nil, err
	}
	return &providerModule{
		id:        "provider:" + providerID,
		provider:  cfg,
		adapter:   adapter,
		prof:      binding.Profile,
		kern:      kern,
		breaker:   resources.NewBreaker("provider:"+providerID, brk.FailureThreshold, brk.ResetWindow),
		routeHint: routeHint,
	}, nil
}

func (m *providerModule) ID() string   { return m.id }
func (m *providerModule) Type() string { return pipeline.TypeProvider }

// EstimatePerformance reports the configured upstream timeout as the
// worst-case latency bound. Provider modules hold no request state, so the
// memory estimate is zero.
func (m *providerModule) EstimatePerformance() pipeline.Estimate {
	return pipeline.Estimate{LatencyMillis: int(m.provider.Timeout.Milliseconds())}
}

func (m *providerModule) ProcessIncoming(ctx context.Context, p *Payload) error {
	p.ProviderKey = m.kern.ProviderKey()
	if err := m.breaker.Allow(); err != nil {
		return err
	}

	in := &protocol.Input{
		Request:         p.Chat,
		BaseURL:         m.provider.BaseURL,
		Stream:          p.Stream,
		ToolCallIDStyle: m.provider.Responses.ToolCallIDStyle,
	}

	body, err := m.adapter.BuildBody(in)
	if err != nil {
		return err
	}

	draft := &profile.Draft{
		Endpoint: m.adapter.ResolveEndpoint(in),
		Headers:  map[string]string{},
		Body:     body,
	}
	rt := &profile.Runtime{
		ProviderKey:    m.kern.ProviderKey(),
		RequestID:      p.RequestID,
		Model:          p.Chat.Model,
		SessionID:      p.SessionID,
		ConversationID: p.ConversationID,
		RouteHint:      m.resolveHint(p),
		ClientHeaders:  p.ClientHeaders,
	}

	if err := m.prof.ApplyRequestPolicy(draft, rt); err != nil {
		return err
	}
	m.prof.ApplyHeaderPolicy(draft, rt)
	authHeader := ""
	if shaper, ok := m.adapter.(protocol.HeaderShaper); ok {
		shaper.ShapeHeaders(draft.Headers)
		authHeader = shaper.AuthHeader()
	}
	if signer, ok := m.prof.(profile.Signer); ok {
		if err := signer.ApplySigningPolicy(draft, rt); err != nil {
			return err
		}
	}

	ex := &kernel.Exchange{
		Method:     http.MethodPost,
		URL:        draft.Endpoint,
		Headers:    draft.Headers,
		Body:       draft.Body,
		Stream:     p.Stream,
		AuthHeader: authHeader,
		RequestID:  p.RequestID,
	}

	if p.Stream {
		resp, err := m.kern.Do(ctx, ex)
		if err != nil {
			m.breaker.Failure()
			return m.prof.MapError(err, rt)
		}
		m.breaker.Success()
		p.Upstream = resp.Body
		return nil
	}

	raw, status, _, err := m.kern.DoBytes(ctx, ex)
	if err != nil {
		m.breaker.Failure()
		return m.prof.MapError(err, rt)
	}
	if err := m.prof.ApplyResponsePolicy(status, raw, rt); err != nil {
		m.breaker.Failure()
		return err
	}
	m.breaker.Success()

	result, err := m.adapter.ParseResponse(raw, in)
	if err != nil {
		return fmt.Errorf("parse %s response: %w", m.adapter.Protocol(), err)
	}
	p.Result = result
	return nil
}

// resolveHint prefers the request's hint; the module config's route_hint
// covers per-family routes declared statically.
func (m *providerModule) resolveHint(p *Payload) string {
	if p.RouteHint != "" {
		return p.RouteHint
	}
	return m.routeHint
}

// TeardownConnection closes nothing kernel-side: the HTTP client and its
// connection pool belong to the instance, not the request.
func (m *providerModule) TeardownConnection(ctx context.Context, connectionID string) {}

// CheckHealth reports the credential state; a provider whose credential
// cannot be applied is unhealthy.
func (m *providerModule) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.provider.BaseURL, nil)
	if err != nil {
		return err
	}
	return m.kern.ApplyCredential(req)
}

// Close releases the kernel's credential watcher. The pool calls this when
// evicting the instance.
func (m *providerModule) Close() error {
	return m.kern.Close()
}

// Payload aliases the pipeline payload for readability inside this package.
type Payload = pipeline.Payload
