// Package modules provides the concrete pipeline module implementations:
// provider (kernel + protocol adapter + family profile composition),
// compatibility (family request shaping), and llmswitch (the tool
// canonicalizer wrapper). The factory builds them from route module specs
// for the pipeline pool.
package modules

import (
	"fmt"

	"routecodex-hq/routecodex/pkg/config"
	"routecodex-hq/routecodex/pkg/kernel"
	"routecodex-hq/routecodex/pkg/pipeline"
	"routecodex-hq/routecodex/pkg/profile"
)

// Factory builds module instances for the pipeline pool.
type Factory struct {
	cfg      *config.Config
	registry *profile.Registry
	sink     kernel.SnapshotSink
}

// NewFactory wires the factory to the loaded configuration, the profile
// registry, and the audit snapshot sink.
func NewFactory(cfg *config.Config, registry *profile.Registry, sink kernel.SnapshotSink) *Factory {
	return &Factory{cfg: cfg, registry: registry, sink: sink}
}

// New builds one module instance. Unknown module types fail fast.
func (f *Factory) New(moduleType string, moduleConfig map[string]any) (pipeline.Module, error) {
	switch moduleType {
	case pipeline.TypeProvider:
		return f.newProvider(moduleConfig)
	case pipeline.TypeCompatibility:
		return newCompatibility(moduleConfig)
	case pipeline.TypeLLMSwitch:
		return newLLMSwitch(f.cfg.Bridge, moduleConfig)
	default:
		return nil, fmt.Errorf("unknown module type %q", moduleType)
	}
}

func (f *Factory) newProvider(moduleConfig map[string]any) (pipeline.Module, error) {
	providerID, _ := moduleConfig["provider"].(string)
	if providerID == "" {
		return nil, fmt.Errorf("provider module: missing provider key in module config")
	}
	providerCfg, ok := f.cfg.Providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider module: unknown provider %q", providerID)
	}

	binding, err := f.registry.Resolve(providerID, providerCfg.ProviderProtocol)
	if err != nil {
		return nil, err
	}

	routeHint, _ := moduleConfig["route_hint"].(string)
	return newProvider(providerID, providerCfg, binding, f.sink, routeHint, f.cfg.Pipeline.Breaker)
}

// stringOption reads an optional string key from a module config map.
func stringOption(mc map[string]any, key, fallback string) string {
	if v, ok := mc[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
