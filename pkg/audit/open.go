package audit

import (
	"fmt"

	"routecodex-hq/routecodex/pkg/config"
)

// OpenStore builds the storage backend named by the configuration.
func OpenStore(cfg config.AuditConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Driver, cfg.Path)
	default:
		return nil, fmt.Errorf("audit: unknown backend %q", cfg.Backend)
	}
}
