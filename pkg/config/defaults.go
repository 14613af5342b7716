package config

import "time"

// ApplyDefaults fills in default values for any unset configuration fields.
// It is called by Load/Parse before validation.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1:5506"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = 1 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 300 * time.Second
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = 3600
	}

	// Provider defaults
	for id, p := range cfg.Providers {
		if p.Timeout == 0 {
			p.Timeout = 120 * time.Second
		}
		if p.Retry.Policy == "" {
			p.Retry.Policy = "retry-exponential"
		}
		if p.Retry.MaxAttempts == 0 {
			p.Retry.MaxAttempts = 3
		}
		if p.Retry.Delay == 0 {
			p.Retry.Delay = 500 * time.Millisecond
		}
		if p.MaxIdleConnsPerHost == 0 {
			p.MaxIdleConnsPerHost = 10
		}
		if p.IdleConnTimeout == 0 {
			p.IdleConnTimeout = 90 * time.Second
		}
		if p.Responses.ToolCallIDStyle == "" {
			p.Responses.ToolCallIDStyle = "preserve"
		}
		cfg.Providers[id] = p
	}

	// Pipeline defaults
	if cfg.Pipeline.HealthInterval == 0 {
		cfg.Pipeline.HealthInterval = 30 * time.Second
	}
	if cfg.Pipeline.DegradedThreshold == 0 {
		cfg.Pipeline.DegradedThreshold = 3
	}
	if cfg.Pipeline.Breaker.FailureThreshold == 0 {
		cfg.Pipeline.Breaker.FailureThreshold = 5
	}
	if cfg.Pipeline.Breaker.ResetWindow == 0 {
		cfg.Pipeline.Breaker.ResetWindow = 30 * time.Second
	}
	if cfg.Pipeline.Memory.Strategy == "" {
		cfg.Pipeline.Memory.Strategy = "lru"
	}
	if cfg.Pipeline.Memory.WarningThreshold == 0 {
		cfg.Pipeline.Memory.WarningThreshold = 1000
	}
	if cfg.Pipeline.Memory.CriticalThreshold == 0 {
		cfg.Pipeline.Memory.CriticalThreshold = 2000
	}
	if cfg.Pipeline.Memory.TTL == 0 {
		cfg.Pipeline.Memory.TTL = 10 * time.Minute
	}

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = "memory"
	}
	if cfg.Audit.Driver == "" {
		cfg.Audit.Driver = "sqlite3"
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "routecodex-audit.db"
	}
	if cfg.Audit.Buffer == 0 {
		cfg.Audit.Buffer = 1000
	}
	if cfg.Audit.Retention == 0 {
		cfg.Audit.Retention = 168 * time.Hour
	}
	if cfg.Audit.PruneSchedule == "" {
		cfg.Audit.PruneSchedule = "0 * * * *"
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "routecodex"
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = []float64{
			0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
		}
	}
}
