// Package di wires the caching, metadata, preference, sync and viewport
// services into one container so hosts configure the stack in a single place.
package di

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-preference-cache/cache"
	"github.com/goliatone/go-preference-cache/internal/cacheinfra"
	"github.com/goliatone/go-preference-cache/metadata"
	"github.com/goliatone/go-preference-cache/preference"
	"github.com/goliatone/go-preference-cache/prefsync"
	"github.com/goliatone/go-preference-cache/viewport"
)

// Options configures the container. Records, Backups and Schemas are the
// host-provided collaborators; everything else has working defaults.
type Options struct {
	Cache       cache.Config
	Metadata    metadata.Config
	Preferences preference.Config
	Sync        prefsync.Config
	Rows        viewport.Config
	Columns     viewport.Config

	// RedisClient, when set, makes Redis the shared cache tier and the
	// realtime event transport. When nil the container runs fully embedded,
	// which is only correct for single-process deployments.
	RedisClient *redis.Client

	// Records persists preference documents.
	Records preference.Records

	// Backups persists preference backups.
	Backups prefsync.Backups

	// Schemas resolves record type schemas from the system of record.
	Schemas metadata.SchemaSource

	// Notifier overrides the realtime transport. Nil selects the Redis
	// notifier when RedisClient is set, otherwise events are dropped.
	Notifier prefsync.Notifier

	Logger zerolog.Logger
}

// DefaultOptions returns Options with every config at its default. The
// host-provided collaborators start nil and must be filled in.
func DefaultOptions() Options {
	return Options{
		Cache:       cache.DefaultConfig(),
		Metadata:    metadata.DefaultConfig(),
		Preferences: preference.DefaultConfig(),
		Sync:        prefsync.DefaultConfig(),
		Rows:        viewport.RowDefaults(),
		Columns:     viewport.ColumnDefaults(),
		Logger:      zerolog.Nop(),
	}
}

// ConfigError represents a container configuration error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Container holds the fully wired service graph.
type Container struct {
	cache       cache.Cache
	metadata    *metadata.Service
	preferences *preference.Store
	sync        *prefsync.Coordinator
	rows        *viewport.Windower
	columns     *viewport.Windower
}

// New validates opts and constructs the service graph.
func New(opts Options) (*Container, error) {
	if opts.Records == nil {
		return nil, &ConfigError{Field: "Records", Message: "must not be nil"}
	}
	if opts.Backups == nil {
		return nil, &ConfigError{Field: "Backups", Message: "must not be nil"}
	}
	if opts.Schemas == nil {
		return nil, &ConfigError{Field: "Schemas", Message: "must not be nil"}
	}

	cacheService, err := buildCache(opts)
	if err != nil {
		return nil, err
	}

	metadataService, err := metadata.NewService(cacheService, opts.Schemas, opts.Metadata, opts.Logger)
	if err != nil {
		return nil, err
	}

	preferenceStore, err := preference.NewStore(cacheService, opts.Records, metadataService, opts.Preferences, opts.Logger)
	if err != nil {
		return nil, err
	}

	notifier := opts.Notifier
	if notifier == nil && opts.RedisClient != nil {
		notifier = cacheinfra.NewRedisNotifier(opts.RedisClient, namespace(opts))
	}

	coordinator, err := prefsync.NewCoordinator(cacheService, preferenceStore, opts.Backups, notifier, opts.Sync, opts.Logger)
	if err != nil {
		return nil, err
	}

	rows, err := viewport.New(opts.Rows)
	if err != nil {
		return nil, err
	}
	columns, err := viewport.New(opts.Columns)
	if err != nil {
		return nil, err
	}

	return &Container{
		cache:       cacheService,
		metadata:    metadataService,
		preferences: preferenceStore,
		sync:        coordinator,
		rows:        rows,
		columns:     columns,
	}, nil
}

func buildCache(opts Options) (cache.Cache, error) {
	if opts.RedisClient == nil {
		return cache.NewCacheService(opts.Cache, opts.Logger)
	}

	internal := cacheinfra.Config{
		Namespace:      opts.Cache.Namespace,
		Tier1Capacity:  opts.Cache.Tier1Capacity,
		DefaultTTL:     opts.Cache.DefaultTTL,
		RemoteCapacity: opts.Cache.RemoteCapacity,
	}
	return cacheinfra.NewTieredCache(internal, cacheinfra.NewRedisStore(opts.RedisClient), opts.Logger)
}

func namespace(opts Options) string {
	if opts.Cache.Namespace != "" {
		return opts.Cache.Namespace
	}
	return cache.DefaultNamespace
}

// Cache returns the shared cache layer.
func (c *Container) Cache() cache.Cache {
	return c.cache
}

// Metadata returns the schema service.
func (c *Container) Metadata() *metadata.Service {
	return c.metadata
}

// Preferences returns the preference store.
func (c *Container) Preferences() *preference.Store {
	return c.preferences
}

// Sync returns the sync coordinator.
func (c *Container) Sync() *prefsync.Coordinator {
	return c.sync
}

// RowWindower returns the windower configured for the row axis.
func (c *Container) RowWindower() *viewport.Windower {
	return c.rows
}

// ColumnWindower returns the windower configured for the column axis.
func (c *Container) ColumnWindower() *viewport.Windower {
	return c.columns
}
