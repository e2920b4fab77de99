package audit

import (
	"context"
	"fmt"
	"time"

	"loginguard/internal/models"
)

// Factory creates audit stores from configuration so backends can be swapped
// without code changes.
type Factory struct{}

// NewFactory creates a new audit store factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a store for the configured backend.
// Supported types:
//   - memory: bounded in-process journal (development, single instance)
//   - sqlite: SQLite file database
//   - postgres: PostgreSQL database
//   - redis: Redis list shared between instances
func (f *Factory) Create(config models.AuditConfig) (Store, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	switch config.Type {
	case models.AuditTypeMemory:
		return NewMemoryStore(config.MaxEvents), nil
	case models.AuditTypeSQLite:
		return NewSQLiteStore(config.DSN, config.MaxEvents)
	case models.AuditTypePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return NewPostgresStore(ctx, config.DSN, config.MaxEvents)
	case models.AuditTypeRedis:
		return NewRedisStore(config.Redis, config.MaxEvents)
	default:
		return nil, fmt.Errorf("unsupported audit store type: %s", config.Type)
	}
}

// NewStore builds the store described by config.
func NewStore(config models.AuditConfig) (Store, error) {
	return NewFactory().Create(config)
}

// SupportedTypes returns every audit backend the factory can build.
func (f *Factory) SupportedTypes() []string {
	return []string{models.AuditTypeMemory, models.AuditTypeSQLite, models.AuditTypePostgres, models.AuditTypeRedis}
}

// ValidateConfig checks that the backend-specific settings are present.
func (f *Factory) ValidateConfig(config models.AuditConfig) error {
	switch config.Type {
	case models.AuditTypeMemory:
		// Memory store requires no additional configuration
	case models.AuditTypeSQLite, models.AuditTypePostgres:
		if config.DSN == "" {
			return fmt.Errorf("database DSN is required for %s audit store", config.Type)
		}
	case models.AuditTypeRedis:
		if config.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for redis audit store")
		}
	default:
		return fmt.Errorf("unsupported audit store type: %s", config.Type)
	}
	return nil
}
