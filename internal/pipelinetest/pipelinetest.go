// Package pipelinetest assembles a complete pipeline runtime against a
// test upstream so ingress and server tests can exercise the real module
// factory, pool, and connector instead of stubs.
package pipelinetest

import (
	"testing"
	"time"

	"routecodex-hq/routecodex/pkg/config"
	"routecodex-hq/routecodex/pkg/modules"
	"routecodex-hq/routecodex/pkg/pipeline"
	"routecodex-hq/routecodex/pkg/profile"
	"routecodex-hq/routecodex/pkg/routing"
)

// Option mutates the generated configuration before assembly.
type Option func(*config.Config)

// WithRoutes replaces the default route table.
func WithRoutes(routes []config.RouteConfig) Option {
	return func(cfg *config.Config) { cfg.Routes = routes }
}

// Config builds a one-provider configuration whose default route sends
// everything to an OpenAI-compatible upstream at baseURL.
func Config(baseURL string, opts ...Option) *config.Config {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"upstream": {
				ProviderProtocol:     "openai-chat",
				ProviderID:           "upstream",
				CompatibilityProfile: "openai",
				BaseURL:              baseURL,
				Auth:                 config.AuthConfig{Type: "apikey", APIKey: "sk-test"},
				Timeout:              5 * time.Second,
				Retry:                config.RetryConfig{Policy: "retry-immediate", MaxAttempts: 1, Delay: time.Millisecond},
			},
		},
		Routes: []config.RouteConfig{
			{
				ID:      "default",
				Default: true,
				Modules: []config.ModuleSpec{
					{Type: pipeline.TypeCompatibility, Config: map[string]any{"name": "generic"}},
					{Type: pipeline.TypeProvider, Config: map[string]any{"provider": "upstream"}},
					{Type: pipeline.TypeLLMSwitch, Config: map[string]any{"name": "switch"}},
				},
			},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// New assembles the full runtime: profile registry, module factory,
// preloaded pool, routing table, connector. Assembly failures fail the
// test immediately.
func New(t *testing.T, cfg *config.Config) (*pipeline.Connector, *pipeline.Pool) {
	t.Helper()

	registry, err := profile.NewRegistry(cfg.Providers)
	if err != nil {
		t.Fatalf("profile registry: %v", err)
	}
	factory := modules.NewFactory(cfg, registry, nil)
	pool := pipeline.NewPool(factory, cfg.Pipeline)
	if err := pool.Preload(cfg); err != nil {
		t.Fatalf("pool preload: %v", err)
	}
	t.Cleanup(pool.Close)

	table, err := routing.NewTable(cfg.Routes)
	if err != nil {
		t.Fatalf("routing table: %v", err)
	}
	return pipeline.NewConnector(cfg, table, pool), pool
}
