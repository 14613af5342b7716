// Package pipeline is the virtual pipeline runtime: a static instance pool
// of long-lived modules plus a dynamic connector that assembles a transient
// chain per request. Modules are shared across routes by (type, configHash);
// chains reference pooled instances and never own them.
package pipeline

import (
	"context"
	"io"

	"routecodex-hq/routecodex/pkg/bridge"
)

// Module types. The first three are critical: a preload failure for any of
// them is fatal. Workflow and monitoring modules are optional; their preload
// failures are logged and the instance registered as failed.
const (
	TypeProvider      = "provider"
	TypeCompatibility = "compatibility"
	TypeLLMSwitch     = "llmswitch"
	TypeWorkflow      = "workflow"
	TypeMonitoring    = "monitoring"
)

// Payload is the per-request state a chain operates on. It is owned by a
// single request task; modules mutate it in chain order and never share it
// across requests.
type Payload struct {
	RequestID    string
	ClientFormat string
	Category     string

	// ModelHint is the model name sniffed from the raw client payload so
	// routing can run before the llmswitch normalizes the body.
	ModelHint string

	// ProviderHint is the client's explicit provider tag, matched against
	// route patterns that declare a provider constraint.
	ProviderHint string

	Chat   *bridge.ChatRequest
	Result *bridge.ChatResponse

	// ClientBody carries the raw inbound payload for formats the llmswitch
	// normalizes on entry; ClientResult carries the denormalized body it
	// produces on exit.
	ClientBody   []byte
	ClientResult []byte

	Stream         bool
	SessionID      string
	ConversationID string
	RouteHint      string
	ClientHeaders  map[string]string

	// Upstream is the raw upstream body for streaming requests. The chain
	// leaves it open; the ingress layer forwards its SSE frames in order
	// and closes it.
	Upstream io.ReadCloser

	// ProviderKey names the provider that served (or failed) the request,
	// for error correlation.
	ProviderKey string

	// Servers is the MCP server set discovered during input normalization.
	Servers []string

	// Meta carries the sniffed top-level fields of the client payload;
	// route conditions evaluate against it.
	Meta map[string]any
}

// Module is the capability every pooled instance provides. Variants are
// tagged by Type; the chain dispatches by tag, never by concrete type.
type Module interface {
	ID() string
	Type() string
	ProcessIncoming(ctx context.Context, p *Payload) error
}

// OutboundProcessor is the optional exit-side capability. The connector
// invokes it on the chain's llmswitch after the provider responds, turning
// the canonical result back into the client's wire format.
type OutboundProcessor interface {
	ProcessOutgoing(ctx context.Context, p *Payload) error
}

// OutputValidator is an optional capability: validate the payload a module
// produced before the chain moves on.
type OutputValidator interface {
	ValidateOutput(p *Payload) error
}

// PerformanceEstimator is an optional capability used by pool telemetry.
type PerformanceEstimator interface {
	EstimatePerformance() Estimate
}

// Estimate is a module's self-reported cost profile.
type Estimate struct {
	LatencyMillis int
	MemoryBytes   int
}

// HealthChecker is an optional capability the pool's probe loop uses.
// Modules without it are assumed healthy while their error counters say so.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// ConnectionTeardown is an optional capability for modules that open
// per-request connections. The connector guarantees exactly one teardown
// invocation per chain, in reverse module order, on every exit path.
type ConnectionTeardown interface {
	TeardownConnection(ctx context.Context, connectionID string)
}

// Factory builds module instances from resolved route module specs. It is
// injected into the pool at assembly time so the pipeline package stays
// free of concrete module dependencies.
type Factory interface {
	New(moduleType string, moduleConfig map[string]any) (Module, error)
}
