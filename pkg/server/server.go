// Package server assembles the gateway runtime and runs the HTTP ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"routecodex-hq/routecodex/pkg/audit"
	"routecodex-hq/routecodex/pkg/config"
	"routecodex-hq/routecodex/pkg/kernel"
	"routecodex-hq/routecodex/pkg/modules"
	"routecodex-hq/routecodex/pkg/pipeline"
	"routecodex-hq/routecodex/pkg/profile"
	"routecodex-hq/routecodex/pkg/proxy"
	"routecodex-hq/routecodex/pkg/proxy/middleware"
	"routecodex-hq/routecodex/pkg/routing"
	"routecodex-hq/routecodex/pkg/telemetry/metrics"
)

// PreloadError marks a pool preload failure so callers can distinguish it
// from configuration problems.
type PreloadError struct {
	Err error
}

func (e *PreloadError) Error() string { return fmt.Sprintf("pool preload: %v", e.Err) }
func (e *PreloadError) Unwrap() error { return e.Err }

// Server owns the assembled runtime: pool, connector, audit, metrics, and
// the HTTP listener.
type Server struct {
	cfg        *config.Config
	pool       *pipeline.Pool
	connector  *pipeline.Connector
	collector  *metrics.Collector
	auditStore audit.Store
	recorder   *audit.Recorder
	scheduler  *audit.Scheduler
	httpServer *http.Server
	logger     *slog.Logger

	shutdownOnce sync.Once
}

// New assembles the runtime from configuration. Any inconsistency between
// providers, routes, and profiles is fatal here, before the listener opens.
func New(cfg *config.Config) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default().With("component", "server"),
	}

	var sink kernel.SnapshotSink
	if cfg.Audit.Enabled {
		store, err := audit.OpenStore(cfg.Audit)
		if err != nil {
			return nil, err
		}
		s.auditStore = store
		s.recorder = audit.NewRecorder(store, audit.RecorderConfig{Buffer: cfg.Audit.Buffer})
		s.scheduler = audit.NewScheduler(
			audit.NewPruner(store, cfg.Audit.Retention),
			cfg.Audit.PruneSchedule,
		)
		sink = s.recorder
	}

	registry, err := profile.NewRegistry(cfg.Providers)
	if err != nil {
		return nil, err
	}

	factory := modules.NewFactory(cfg, registry, sink)
	s.pool = pipeline.NewPool(factory, cfg.Pipeline)
	if err := s.pool.Preload(cfg); err != nil {
		return nil, &PreloadError{Err: err}
	}

	table, err := routing.NewTable(cfg.Routes)
	if err != nil {
		return nil, err
	}
	s.connector = pipeline.NewConnector(cfg, table, s.pool)

	if cfg.Telemetry.Metrics.Enabled {
		s.collector = metrics.NewCollector(cfg.Telemetry.Metrics, nil)
		s.connector.SetStageObserver(s.collector)
	}

	handler := proxy.NewHandler(s.connector, s.pool, s.collector)
	s.httpServer = &http.Server{
		Addr:           cfg.Server.ListenAddress,
		Handler:        s.middleware(handler.Mux()),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return s, nil
}

// middleware wraps the mux in the ingress chain, outermost first:
// recovery, request id, logging, cors, timeout.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := middleware.Timeout(s.cfg.Server.RequestTimeout)(next)
	h = middleware.CORS(s.cfg.Server.CORS)(h)
	h = middleware.Logging(slog.Default())(h)
	h = middleware.RequestID(h)
	h = middleware.Recovery(h)
	return h
}

// Start opens the listener and blocks until ctx is cancelled or the
// listener fails. Shutdown is graceful within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	s.pool.StartHealthProbe(ctx)
	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
	}
	if s.collector != nil {
		go s.gaugeLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
		return s.Shutdown()
	case err := <-errCh:
		s.Shutdown()
		return err
	}
}

// Shutdown drains the listener, closes the pool, and flushes audit state.
// Safe to call more than once.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err = s.httpServer.Shutdown(ctx)
		s.pool.Close()
		if s.scheduler != nil {
			s.scheduler.Stop()
		}
		if s.recorder != nil {
			s.recorder.Close()
		}
		if s.auditStore != nil {
			s.auditStore.Close()
		}
		s.logger.Info("shutdown complete")
	})
	return err
}

// Ready mirrors the /health readiness condition for in-process callers.
func (s *Server) Ready() bool {
	return s.pool.Ready()
}

func (s *Server) gaugeLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	var lastDropped int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthy, degraded, failed := s.pool.HealthCounts()
			s.collector.SetPoolInstances(healthy, degraded, failed)
			if s.recorder != nil {
				dropped := s.recorder.Dropped()
				s.collector.CountAuditDropped(dropped - lastDropped)
				lastDropped = dropped
			}
		}
	}
}
