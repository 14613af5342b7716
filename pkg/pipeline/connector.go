package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"routecodex-hq/routecodex/pkg/config"
	"routecodex-hq/routecodex/pkg/resources"
	"routecodex-hq/routecodex/pkg/routing"
)

// StageError wraps a module failure with its position in the chain so the
// caller can tell exactly where a request died.
type StageError struct {
	ConnectionID string
	Position     int
	ModuleType   string
	ModuleID     string
	Timestamp    time.Time
	Err          error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("connection %s stage %d (%s %s): %v",
		e.ConnectionID, e.Position, e.ModuleType, e.ModuleID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Connector assembles a transient chain per request from pooled instances
// and drives it. Chains are built fresh for every request; instances are
// shared and never owned by the chain.
type Connector struct {
	cfg               *config.Config
	table             *routing.Table
	pool              *Pool
	mem               *resources.MemoryManager
	stages            StageObserver
	degradedThreshold int
}

// NewConnector wires the connector to its route table and pool.
func NewConnector(cfg *config.Config, table *routing.Table, pool *Pool) *Connector {
	mc := cfg.Pipeline.Memory
	return &Connector{
		cfg:               cfg,
		table:             table,
		pool:              pool,
		mem:               resources.NewMemoryManager(mc.Strategy, mc.WarningThreshold, mc.CriticalThreshold, mc.TTL),
		degradedThreshold: cfg.Pipeline.DegradedThreshold,
	}
}

// LiveConnections returns the number of connections currently tracked by
// the resource manager.
func (c *Connector) LiveConnections() int { return c.mem.Count() }

// StageObserver receives per-module stage timings from the connector. The
// telemetry collector implements it.
type StageObserver interface {
	ObserveStage(moduleType, direction string, d time.Duration)
}

// SetStageObserver installs the stage timing sink. Call before serving.
func (c *Connector) SetStageObserver(obs StageObserver) { c.stages = obs }

func (c *Connector) observeStage(moduleType, direction string, start time.Time) {
	if c.stages != nil {
		c.stages.ObserveStage(moduleType, direction, time.Since(start))
	}
}

// chainLink pairs an instance with its declared position.
type chainLink struct {
	instance *Instance
	spec     config.ModuleSpec
	position int
}

// Handle routes the request, assembles the chain, and executes it. The
// route's llmswitch runs at both ends: ProcessIncoming before the rest of
// the chain normalizes the client payload into canonical form, and
// ProcessOutgoing after the provider responds denormalizes the result.
// Teardown runs exactly once, in reverse module order, on every exit path.
func (c *Connector) Handle(ctx context.Context, p *Payload) error {
	model := p.ModelHint
	if p.Chat != nil && p.Chat.Model != "" {
		model = p.Chat.Model
	}
	route, err := c.table.Match(&routing.Request{
		Model:    model,
		Provider: p.ProviderHint,
		Category: p.Category,
		Fields:   p.Meta,
	})
	if err != nil {
		return err
	}
	if route.Category != "" && p.RouteHint == "" {
		p.RouteHint = route.Category
	}

	chain, err := c.assemble(route)
	if err != nil {
		return err
	}

	connectionID := uuid.NewString()
	slog.Debug("chain assembled",
		"request_id", p.RequestID, "route", route.ID,
		"connection_id", connectionID, "modules", len(chain))

	// Each live connection counts one unit against the resource manager's
	// thresholds until its teardown completes.
	c.mem.Register(connectionID, 1, nil)

	defer c.teardown(ctx, chain, connectionID)

	return c.execute(ctx, chain, connectionID, p)
}

// assemble resolves each module spec to its pooled instance. Any miss or
// failed instance aborts before anything executes.
func (c *Connector) assemble(route *config.RouteConfig) ([]chainLink, error) {
	chain := make([]chainLink, 0, len(route.Modules))
	for i, spec := range route.Modules {
		moduleConfig, err := config.ResolveModuleConfig(c.cfg, spec)
		if err != nil {
			return nil, err
		}
		inst, err := c.pool.Get(spec.Type, HashConfig(moduleConfig))
		if err != nil {
			return nil, err
		}
		chain = append(chain, chainLink{instance: inst, spec: spec, position: i})
	}
	return chain, nil
}

func (c *Connector) execute(ctx context.Context, chain []chainLink, connectionID string, p *Payload) error {
	last := chain[len(chain)-1]

	// Entry normalization by the chain's llmswitch.
	if err := c.runStage(ctx, last, connectionID, p); err != nil {
		return err
	}

	// The remaining modules run in strict declared order.
	for _, link := range chain[:len(chain)-1] {
		if err := c.runStage(ctx, link, connectionID, p); err != nil {
			return err
		}
	}

	// Exit denormalization.
	if out, ok := last.instance.Module.(OutboundProcessor); ok {
		start := time.Now()
		err := out.ProcessOutgoing(ctx, p)
		c.observeStage(last.spec.Type, "outgoing", start)
		if err != nil {
			last.instance.ReportFailure(c.degradedThreshold)
			return c.wrapStage(last, connectionID, err)
		}
	}
	return nil
}

func (c *Connector) runStage(ctx context.Context, link chainLink, connectionID string, p *Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := link.instance.Module.ProcessIncoming(ctx, p)
	c.observeStage(link.spec.Type, "incoming", start)
	if err != nil {
		link.instance.ReportFailure(c.degradedThreshold)
		return c.wrapStage(link, connectionID, err)
	}
	if v, ok := link.instance.Module.(OutputValidator); ok {
		if err := v.ValidateOutput(p); err != nil {
			link.instance.ReportFailure(c.degradedThreshold)
			return c.wrapStage(link, connectionID, err)
		}
	}
	link.instance.ReportSuccess()
	return nil
}

func (c *Connector) wrapStage(link chainLink, connectionID string, err error) error {
	return &StageError{
		ConnectionID: connectionID,
		Position:     link.position,
		ModuleType:   link.spec.Type,
		ModuleID:     link.instance.Module.ID(),
		Timestamp:    time.Now(),
		Err:          err,
	}
}

// teardown closes per-request connections in reverse module order. Pooled
// instances themselves are preserved.
func (c *Connector) teardown(ctx context.Context, chain []chainLink, connectionID string) {
	for i := len(chain) - 1; i >= 0; i-- {
		if td, ok := chain[i].instance.Module.(ConnectionTeardown); ok {
			td.TeardownConnection(ctx, connectionID)
		}
	}
	c.mem.Release(connectionID)
}
