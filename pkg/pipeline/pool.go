package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"routecodex-hq/routecodex/pkg/config"
)

// Health states, stored atomically on each instance.
const (
	HealthHealthy  int32 = 0
	HealthDegraded int32 = 1
	HealthFailed   int32 = 2
)

func healthName(state int32) string {
	switch state {
	case HealthDegraded:
		return "degraded"
	case HealthFailed:
		return "failed"
	default:
		return "healthy"
	}
}

// Instance is a pooled module plus its bookkeeping. It is shared across
// every route whose module spec hashes to the same (type, configHash) key;
// reads take no lock, and health transitions are atomic writes.
type Instance struct {
	Module     Module
	ConfigHash string

	health       atomic.Int32
	errorStreak  atomic.Int32
	lastAccessed atomic.Int64
	accessCount  atomic.Int64
}

// Health returns the instance's current health state name.
func (i *Instance) Health() string {
	return healthName(i.health.Load())
}

// Healthy reports whether the instance may serve requests. Degraded
// instances still serve; failed ones do not.
func (i *Instance) Healthy() bool {
	return i.health.Load() != HealthFailed
}

// ReportSuccess clears the error streak and restores health.
func (i *Instance) ReportSuccess() {
	i.errorStreak.Store(0)
	i.health.Store(HealthHealthy)
}

// ReportFailure bumps the error streak and degrades or fails the instance
// once the streak crosses the threshold.
func (i *Instance) ReportFailure(degradedThreshold int) {
	streak := i.errorStreak.Add(1)
	if degradedThreshold <= 0 {
		degradedThreshold = 3
	}
	switch {
	case streak >= int32(degradedThreshold)*2:
		i.health.Store(HealthFailed)
	case streak >= int32(degradedThreshold):
		i.health.Store(HealthDegraded)
	}
}

func (i *Instance) touch() {
	i.lastAccessed.Store(time.Now().UnixNano())
	i.accessCount.Add(1)
}

// AccessCount returns how many chains have referenced this instance.
func (i *Instance) AccessCount() int64 {
	return i.accessCount.Load()
}

type poolKey struct {
	moduleType string
	configHash string
}

// InstanceError reports a pool miss or an unusable instance.
type InstanceError struct {
	ModuleType string
	ConfigHash string
	Reason     string
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("instance (%s, %s): %s", e.ModuleType, shortHash(e.ConfigHash), e.Reason)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// Pool is the static instance pool. It owns every module instance; chains
// borrow references and must never close or replace them.
type Pool struct {
	factory           Factory
	degradedThreshold int
	healthInterval    time.Duration

	mu        sync.RWMutex
	instances map[poolKey]*Instance

	stopProbe chan struct{}
	probeOnce sync.Once
	closeOnce sync.Once
}

// NewPool builds an empty pool around a module factory.
func NewPool(factory Factory, cfg config.PipelineConfig) *Pool {
	interval := cfg.HealthInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Pool{
		factory:           factory,
		degradedThreshold: cfg.DegradedThreshold,
		healthInterval:    interval,
		instances:         make(map[poolKey]*Instance),
		stopProbe:         make(chan struct{}),
	}
}

// Preload instantiates every module every route needs, deduplicating by
// (type, configHash). It is idempotent and deterministic: running it twice
// over the same configuration creates no new instances.
//
// A provider or llmswitch module that fails to build fails the preload;
// a compatibility module that fails to build is registered as a failed
// instance so the affected routes surface instance errors instead of
// silently degrading.
func (p *Pool) Preload(cfg *config.Config) error {
	for _, route := range cfg.Routes {
		for _, spec := range route.Modules {
			moduleConfig, err := config.ResolveModuleConfig(cfg, spec)
			if err != nil {
				return fmt.Errorf("preload route %q module %s: %w", route.ID, spec.Type, err)
			}
			key := poolKey{moduleType: spec.Type, configHash: HashConfig(moduleConfig)}

			p.mu.RLock()
			_, exists := p.instances[key]
			p.mu.RUnlock()
			if exists {
				continue
			}

			mod, err := p.factory.New(spec.Type, moduleConfig)
			if err != nil {
				if !criticalType(spec.Type) {
					slog.Warn("optional module failed to build, skipping",
						"route", route.ID, "type", spec.Type, "error", err)
					failed := &Instance{ConfigHash: key.configHash}
					failed.health.Store(HealthFailed)
					p.put(key, failed)
					continue
				}
				return fmt.Errorf("preload route %q module %s: %w", route.ID, spec.Type, err)
			}
			if est, ok := mod.(PerformanceEstimator); ok {
				e := est.EstimatePerformance()
				slog.Debug("module preloaded",
					"type", spec.Type, "id", mod.ID(),
					"est_latency_ms", e.LatencyMillis, "est_memory_bytes", e.MemoryBytes)
			}
			p.put(key, &Instance{Module: mod, ConfigHash: key.configHash})
		}
	}
	return nil
}

// criticalType reports whether a module type must preload successfully.
func criticalType(moduleType string) bool {
	switch moduleType {
	case TypeWorkflow, TypeMonitoring:
		return false
	default:
		return true
	}
}

func (p *Pool) put(key poolKey, inst *Instance) {
	p.mu.Lock()
	if _, exists := p.instances[key]; !exists {
		p.instances[key] = inst
	}
	p.mu.Unlock()
}

// Get returns the instance for a module spec's (type, configHash) key.
func (p *Pool) Get(moduleType, configHash string) (*Instance, error) {
	key := poolKey{moduleType: moduleType, configHash: configHash}
	p.mu.RLock()
	inst, ok := p.instances[key]
	p.mu.RUnlock()

	if !ok {
		return nil, &InstanceError{ModuleType: moduleType, ConfigHash: configHash, Reason: "not in pool"}
	}
	if !inst.Healthy() {
		return nil, &InstanceError{ModuleType: moduleType, ConfigHash: configHash, Reason: "instance failed"}
	}
	inst.touch()
	return inst, nil
}

// Keys returns the current (type, configHash) set, for preload idempotence
// checks and diagnostics.
func (p *Pool) Keys() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.instances))
	for k := range p.instances {
		out[k.moduleType+"/"+k.configHash] = healthName(p.instances[k].health.Load())
	}
	return out
}

// HealthCounts tallies instances per health state for pool gauges.
func (p *Pool) HealthCounts() (healthy, degraded, failed int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, inst := range p.instances {
		switch inst.Health() {
		case "healthy":
			healthy++
		case "degraded":
			degraded++
		default:
			failed++
		}
	}
	return healthy, degraded, failed
}

// Evict removes an instance from the pool.
func (p *Pool) Evict(moduleType, configHash string) {
	p.mu.Lock()
	delete(p.instances, poolKey{moduleType: moduleType, configHash: configHash})
	p.mu.Unlock()
}

// Ready reports whether every pooled instance is serviceable.
func (p *Pool) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, inst := range p.instances {
		if !inst.Healthy() {
			return false
		}
	}
	return true
}

// StartHealthProbe launches the periodic probe loop. Modules implementing
// HealthChecker are probed; a probe failure counts like a request failure.
func (p *Pool) StartHealthProbe(ctx context.Context) {
	p.probeOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(p.healthInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.stopProbe:
					return
				case <-ticker.C:
					p.probeAll(ctx)
				}
			}
		}()
	})
}

func (p *Pool) probeAll(ctx context.Context) {
	p.mu.RLock()
	instances := make([]*Instance, 0, len(p.instances))
	for _, inst := range p.instances {
		instances = append(instances, inst)
	}
	p.mu.RUnlock()

	for _, inst := range instances {
		checker, ok := inst.Module.(HealthChecker)
		if !ok {
			continue
		}
		if err := checker.CheckHealth(ctx); err != nil {
			inst.ReportFailure(p.degradedThreshold)
			slog.Warn("health probe failed",
				"module", inst.Module.ID(), "health", inst.Health(), "error", err)
		} else {
			inst.ReportSuccess()
		}
	}
}

// Close stops the probe loop.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.stopProbe) })
}
