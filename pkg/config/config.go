package config

import "time"

// Config is the root configuration structure for RouteCodex.
// It contains all configuration sections for the ingress server, upstream
// providers, route table, pipeline runtime, audit sink, and telemetry.
type Config struct {
	// Server contains HTTP ingress server configuration including listen
	// address, timeouts, and connection limits.
	Server ServerConfig `yaml:"server"`

	// Providers contains configuration for all upstream providers.
	// Keys are provider IDs (e.g., "glm", "iflow-main").
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Routes is the ordered route table. Routes are evaluated by priority
	// (higher first) with a stable tie-break on declaration order.
	Routes []RouteConfig `yaml:"routes"`

	// ModuleConfigs is a library of named module configurations that route
	// module specs may reference by name instead of declaring inline.
	ModuleConfigs map[string]map[string]any `yaml:"module_configs"`

	// Pipeline contains configuration for the instance pool and request
	// chain runtime.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Bridge contains configuration for the tool canonicalizer.
	Bridge BridgeConfig `yaml:"bridge"`

	// Audit contains configuration for request/response snapshot capture.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains configuration for logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP ingress server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port". Default: "127.0.0.1:5506"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response
	// writes. Zero keeps streaming responses open indefinitely. Default: 0
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout. Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown. Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size. Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// RequestTimeout is the default per-request deadline applied to the
	// whole pipeline, including upstream I/O. Retries never extend it.
	// Default: 300s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration for the ingress endpoints.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted. Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is the list of allowed origins. Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is the list of allowed methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is the list of allowed request headers.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache age in seconds. Default: 3600
	MaxAge int `yaml:"max_age"`
}

// ProviderConfig contains configuration for a single upstream provider.
//
// The triple (ProviderProtocol, ProviderID, CompatibilityProfile) is
// mandatory and explicit. The external loader is responsible for
// normalizing any legacy fields into the triple before this configuration
// is consumed; a configuration lacking the explicit triple is rejected.
type ProviderConfig struct {
	// ProviderProtocol selects the wire protocol adapter.
	// One of: "openai-chat", "openai-responses", "anthropic-messages",
	// "gemini-chat".
	ProviderProtocol string `yaml:"provider_protocol"`

	// ProviderID is the stable identifier of this provider entry. It is
	// resolved through the profile registry to a provider family.
	ProviderID string `yaml:"provider_id"`

	// CompatibilityProfile names the family profile applied on top of the
	// protocol adapter (e.g., "iflow", "glm", "openai").
	CompatibilityProfile string `yaml:"compatibility_profile"`

	// BaseURL is the base URL for the provider's API endpoint.
	// Example: "https://open.bigmodel.cn/api/paas/v4"
	BaseURL string `yaml:"base_url"`

	// Auth describes how requests to this provider are authenticated.
	Auth AuthConfig `yaml:"auth"`

	// Models optionally restricts the models this provider serves.
	Models []string `yaml:"models"`

	// Responses contains OpenAI Responses protocol options.
	Responses ResponsesOptions `yaml:"responses"`

	// Timeout is the per-attempt upstream timeout. Default: 120s
	Timeout time.Duration `yaml:"timeout"`

	// Retry configures the kernel retry policy for this provider.
	Retry RetryConfig `yaml:"retry"`

	// MaxIdleConnsPerHost bounds pooled idle connections per upstream
	// host. Default: 10
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// MaxConcurrentPerHost bounds in-flight requests per upstream host.
	// Zero means unlimited. Default: 0
	MaxConcurrentPerHost int `yaml:"max_concurrent_per_host"`

	// IdleConnTimeout is the idle connection timeout. Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// AuthConfig describes upstream authentication material.
type AuthConfig struct {
	// Type selects the credential mechanism.
	// One of: "apikey", "bearer", "tokenfile", "cookie", "oauth".
	Type string `yaml:"type"`

	// APIKey is the static key for "apikey" and "bearer" types.
	// Supports ${NAME:default} interpolation.
	APIKey string `yaml:"api_key"`

	// HeaderName overrides the header the key is placed in ("apikey"
	// type only). Default: "Authorization" with a "Bearer " prefix.
	HeaderName string `yaml:"header_name"`

	// TokenFile is the path read at request time for the "tokenfile"
	// type. The file is watched and re-read on change.
	TokenFile string `yaml:"token_file"`

	// Cookie is the literal Cookie header value for the "cookie" type.
	Cookie string `yaml:"cookie"`

	// AccessToken is the OAuth access token for the "oauth" type.
	// Token acquisition is an external collaborator; only the resulting
	// token is consumed here.
	AccessToken string `yaml:"access_token"`
}

// ResponsesOptions contains OpenAI Responses protocol options.
type ResponsesOptions struct {
	// ToolCallIDStyle controls tool call id emission for Responses
	// clients. One of: "fc" (fc-style ids required), "preserve" (ids pass
	// through untouched). Default: "preserve"
	ToolCallIDStyle string `yaml:"tool_call_id_style"`
}

// RetryConfig configures the kernel retry policy.
type RetryConfig struct {
	// Policy is one of: "retry-immediate", "retry-delayed",
	// "retry-exponential". Default: "retry-exponential"
	Policy string `yaml:"policy"`

	// MaxAttempts caps total attempts including the first. Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// Delay is the base delay for "retry-delayed" and the initial delay
	// for "retry-exponential". Default: 500ms
	Delay time.Duration `yaml:"delay"`
}

// RouteConfig declares one route: a pattern plus an ordered module
// specification sequence.
type RouteConfig struct {
	// ID uniquely identifies the route.
	ID string `yaml:"id"`

	// Priority orders route evaluation; higher evaluates first.
	Priority int `yaml:"priority"`

	// Default marks this route as the explicit default used when no
	// pattern matches. At most one route may be marked default.
	Default bool `yaml:"default"`

	// Pattern is the match predicate for this route.
	Pattern PatternConfig `yaml:"pattern"`

	// Modules is the ordered module specification sequence. The last
	// module must be of type "llmswitch".
	Modules []ModuleSpec `yaml:"modules"`

	// Category tags the route (default, longcontext, thinking,
	// background). Selection is by explicit request tagging only.
	Category string `yaml:"category"`
}

// PatternConfig is a route match predicate.
type PatternConfig struct {
	// Model is a regular expression matched against the request model.
	Model string `yaml:"model"`

	// Provider optionally constrains the route to an exact provider ID.
	Provider string `yaml:"provider"`

	// Condition is an optional structured predicate evaluated against
	// the request.
	Condition *ConditionConfig `yaml:"condition"`
}

// ConditionConfig is a structured predicate on request fields. Exactly one
// of Equals, Present, or Range must be set.
type ConditionConfig struct {
	// Field names the request field the predicate inspects.
	Field string `yaml:"field"`

	// Equals matches when the field equals this value exactly.
	Equals *string `yaml:"equals"`

	// Present matches when the field is present (true) or absent (false).
	Present *bool `yaml:"present"`

	// Range matches when the field is numeric and within [Min, Max].
	Range *RangeConfig `yaml:"range"`
}

// RangeConfig is an inclusive numeric range.
type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ModuleSpec names one module in a route chain.
type ModuleSpec struct {
	// Type is one of: "provider", "compatibility", "llmswitch", or the
	// optional "workflow" and "monitoring".
	Type string `yaml:"type"`

	// ConfigRef references a named entry in Config.ModuleConfigs.
	// Mutually exclusive with Config.
	ConfigRef string `yaml:"config_ref"`

	// Config is an inline module configuration.
	Config map[string]any `yaml:"config"`
}

// PipelineConfig contains instance pool and chain runtime configuration.
type PipelineConfig struct {
	// HealthInterval is the background health probe interval.
	// Default: 30s
	HealthInterval time.Duration `yaml:"health_interval"`

	// DegradedThreshold is the consecutive-failure count after which an
	// instance is marked degraded. Default: 3
	DegradedThreshold int `yaml:"degraded_threshold"`

	// Breaker configures the per-boundary circuit breakers.
	Breaker BreakerConfig `yaml:"breaker"`

	// Memory configures the transient resource manager.
	Memory MemoryConfig `yaml:"memory"`
}

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the
	// breaker. Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// ResetWindow is how long the breaker stays open before a half-open
	// probe is admitted. Default: 30s
	ResetWindow time.Duration `yaml:"reset_window"`
}

// MemoryConfig configures the transient resource manager.
type MemoryConfig struct {
	// Strategy is the cleanup strategy. One of: "lru", "lfu", "fifo",
	// "ttl", "size", "hybrid". Default: "lru"
	Strategy string `yaml:"strategy"`

	// WarningThreshold is the resource count that triggers a warning.
	// Default: 1000
	WarningThreshold int `yaml:"warning_threshold"`

	// CriticalThreshold is the resource count that forces synchronous
	// cleanup. Default: 2000
	CriticalThreshold int `yaml:"critical_threshold"`

	// TTL is the resource time-to-live for the "ttl" and "hybrid"
	// strategies. Default: 10m
	TTL time.Duration `yaml:"ttl"`
}

// BridgeConfig contains tool canonicalizer configuration.
type BridgeConfig struct {
	// MCP configures optional MCP tool injection.
	MCP MCPConfig `yaml:"mcp"`
}

// MCPConfig configures MCP tool injection in the canonicalizer.
type MCPConfig struct {
	// Enabled turns MCP tool injection on. Default: false
	Enabled bool `yaml:"enabled"`

	// Servers seeds the discovered MCP server set.
	Servers []string `yaml:"servers"`
}

// AuditConfig contains snapshot capture configuration.
type AuditConfig struct {
	// Enabled turns snapshot capture on. Default: false
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend: "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Driver selects the sqlite driver: "sqlite3" (cgo) or "sqlite"
	// (pure Go). Default: "sqlite3"
	Driver string `yaml:"driver"`

	// Path is the sqlite database path. Default: "routecodex-audit.db"
	Path string `yaml:"path"`

	// Buffer is the async write channel size. Default: 1000
	Buffer int `yaml:"buffer"`

	// Retention is how long snapshots are kept. Zero disables pruning.
	// Default: 168h
	Retention time.Duration `yaml:"retention"`

	// PruneSchedule is the cron expression for retention pruning.
	// Default: "0 * * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains logging and metrics configuration.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the slog backend.
type LoggingConfig struct {
	// Level is one of: "debug", "info", "warn", "error". Default: "info"
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled controls the /metrics endpoint. Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric namespace. Default: "routecodex"
	Namespace string `yaml:"namespace"`

	// RequestDurationBuckets overrides the request duration histogram
	// buckets (seconds).
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}
