// Package metadata resolves and caches record type schemas. Schemas change
// only on deployment, so they are cached aggressively and invalidated
// explicitly when the host signals a migration.
package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-preference-cache/cache"
)

// SchemaSource resolves the schema of a record type from the system of
// record, typically the ERP metadata API or its database tables.
type SchemaSource interface {
	GetSchema(ctx context.Context, recordType string) (Schema, error)
}

// SchemaSourceFunc adapts a function to the SchemaSource interface.
type SchemaSourceFunc func(ctx context.Context, recordType string) (Schema, error)

// GetSchema implements SchemaSource.
func (f SchemaSourceFunc) GetSchema(ctx context.Context, recordType string) (Schema, error) {
	return f(ctx, recordType)
}

// Config holds the configuration for the metadata service.
type Config struct {
	// Namespace scopes the cache keys. Defaults to the cache package's
	// default namespace.
	Namespace string

	// TTL bounds how long a schema is served without consulting the source.
	TTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Namespace: cache.DefaultNamespace,
		TTL:       2 * time.Hour,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Service serves schemas through the cache, completing them with the standard
// audit fields and per-type defaults on the way in.
type Service struct {
	cache  cache.Cache
	source SchemaSource
	keys   cache.KeyBuilder
	ttl    time.Duration
	log    zerolog.Logger
}

// NewService creates a metadata Service over the given cache and source.
func NewService(c cache.Cache, source SchemaSource, cfg Config, logger zerolog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &ConfigError{Field: "Cache", Message: "must not be nil"}
	}
	if source == nil {
		return nil, &ConfigError{Field: "Source", Message: "must not be nil"}
	}

	return &Service{
		cache:  c,
		source: source,
		keys:   cache.NewKeyBuilder(cfg.Namespace),
		ttl:    cfg.TTL,
		log:    logger.With().Str("component", "metadata").Logger(),
	}, nil
}

// RecordTypeSchema returns the schema for recordType, consulting the source
// on cache miss. The returned schema always includes the standard audit
// fields and has widths filled in for fields the source left at zero.
func (s *Service) RecordTypeSchema(ctx context.Context, recordType string) (Schema, error) {
	key := s.schemaKey(recordType)

	schema, err := cache.GetOrSetAs(ctx, s.cache, key, s.ttl, func(ctx context.Context) (Schema, error) {
		resolved, err := s.source.GetSchema(ctx, recordType)
		if err != nil {
			return Schema{}, fmt.Errorf("resolve schema for %s: %w", recordType, err)
		}
		resolved.RecordType = recordType
		return normalize(resolved), nil
	})
	if err != nil {
		return Schema{}, err
	}
	return schema, nil
}

// FieldSchema returns the schema of one field of recordType.
func (s *Service) FieldSchema(ctx context.Context, recordType, fieldname string) (FieldSchema, error) {
	schema, err := s.RecordTypeSchema(ctx, recordType)
	if err != nil {
		return FieldSchema{}, err
	}
	return schema.Field(fieldname)
}

// FilterableFields returns the fields of recordType usable in filter
// conditions, in schema order.
func (s *Service) FilterableFields(ctx context.Context, recordType string) ([]FieldSchema, error) {
	return s.selectFields(ctx, recordType, func(f FieldSchema) bool { return f.Filterable })
}

// SortableFields returns the fields of recordType usable for ordering, in
// schema order.
func (s *Service) SortableFields(ctx context.Context, recordType string) ([]FieldSchema, error) {
	return s.selectFields(ctx, recordType, func(f FieldSchema) bool { return f.Sortable })
}

func (s *Service) selectFields(ctx context.Context, recordType string, keep func(FieldSchema) bool) ([]FieldSchema, error) {
	schema, err := s.RecordTypeSchema(ctx, recordType)
	if err != nil {
		return nil, err
	}

	fields := make([]FieldSchema, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		if keep(f) {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// Invalidate drops the cached schema for recordType. The next read consults
// the source.
func (s *Service) Invalidate(ctx context.Context, recordType string) error {
	return s.cache.Delete(ctx, s.schemaKey(recordType))
}

// InvalidateAll drops every cached schema. Hosts call this after a migration
// that may have touched any record type.
func (s *Service) InvalidateAll(ctx context.Context) error {
	return s.cache.DeletePattern(ctx, s.keys.Pattern("metadata", "*"))
}

func (s *Service) schemaKey(recordType string) string {
	return s.keys.Build("metadata", recordType)
}

// normalize completes a schema fresh from the source. Standard fields are
// appended, zero widths get the per-type default, and capability flags are
// derived from the field type. Sources only declare fieldname, label, type
// and list visibility; everything else is owned here.
func normalize(s Schema) Schema {
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Width <= 0 {
			f.Width = DefaultWidth(f.Type)
		}
		f.Sortable = Sortable(f.Type)
		f.Filterable = Filterable(f.Type)
	}
	return withStandardFields(s)
}
