package preference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-preference-cache/cache"
	"github.com/goliatone/go-preference-cache/metadata"
)

// Records is the persistence behind the preference store. Implementations
// return a *NotFoundError from Get when no row exists.
type Records interface {
	Get(ctx context.Context, user, recordType string) (Document, error)
	Upsert(ctx context.Context, doc Document) error
	Delete(ctx context.Context, user, recordType string) error
	ListByUser(ctx context.Context, user string) ([]Document, error)
}

// NotFoundError reports an absent preference row.
type NotFoundError struct {
	User       string
	RecordType string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no preferences for user %q, record type %q", e.User, e.RecordType)
}

// IsNotFound reports whether err is a preference NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Config holds the configuration for the preference store.
type Config struct {
	// Namespace scopes the cache keys. Defaults to the cache package's
	// default namespace.
	Namespace string

	// TTL bounds how long a document is served from cache without consulting
	// persistence.
	TTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Namespace: cache.DefaultNamespace,
		TTL:       time.Hour,
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

// Store serves preference documents through the cache with read-through to
// Records. Users who never saved preferences get a default document derived
// from the record type's schema; defaults are cached but never persisted, so
// schema changes reach those users as soon as the cache entry expires.
type Store struct {
	cache   cache.Cache
	records Records
	meta    *metadata.Service
	keys    cache.KeyBuilder
	ttl     time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewStore creates a preference Store.
func NewStore(c cache.Cache, records Records, meta *metadata.Service, cfg Config, logger zerolog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &ConfigError{Field: "Cache", Message: "must not be nil"}
	}
	if records == nil {
		return nil, &ConfigError{Field: "Records", Message: "must not be nil"}
	}
	if meta == nil {
		return nil, &ConfigError{Field: "Metadata", Message: "must not be nil"}
	}

	return &Store{
		cache:   c,
		records: records,
		meta:    meta,
		keys:    cache.NewKeyBuilder(cfg.Namespace),
		ttl:     cfg.TTL,
		now:     time.Now,
		log:     logger.With().Str("component", "preferences").Logger(),
	}, nil
}

// Get returns the preference document for user and recordType. Persisted
// documents that fail validation are treated as absent and replaced by
// defaults on read; the stored row is left untouched for inspection.
func (s *Store) Get(ctx context.Context, user, recordType string) (Document, error) {
	key := s.docKey(user, recordType)

	return cache.GetOrSetAs(ctx, s.cache, key, s.ttl, func(ctx context.Context) (Document, error) {
		doc, err := s.records.Get(ctx, user, recordType)
		switch {
		case err == nil:
			if verr := doc.Validate(); verr == nil {
				return doc, nil
			} else {
				s.log.Warn().Err(verr).
					Str("user", user).
					Str("record_type", recordType).
					Msg("stored preferences invalid, serving defaults")
			}
		case !IsNotFound(err):
			return Document{}, fmt.Errorf("load preferences: %w", err)
		}

		schema, err := s.meta.RecordTypeSchema(ctx, recordType)
		if err != nil {
			return Document{}, err
		}
		return DefaultDocument(user, recordType, schema, s.now()), nil
	})
}

// Save validates, persists and caches the document. The returned copy carries
// the assigned version and update timestamp.
func (s *Store) Save(ctx context.Context, doc Document) (Document, error) {
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}

	if doc.Version == "" {
		doc.Version = DocumentVersion
	}
	doc.LastUpdated = s.now()

	if err := s.records.Upsert(ctx, doc); err != nil {
		return Document{}, fmt.Errorf("persist preferences: %w", err)
	}

	key := s.docKey(doc.User, doc.RecordType)
	if err := s.cache.Set(ctx, key, doc, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("caching saved preferences failed")
	}
	return doc, nil
}

// UpdateSection merges a JSON patch into one section of the user's document
// and persists the result.
func (s *Store) UpdateSection(ctx context.Context, user, recordType string, section Section, patch json.RawMessage) (Document, error) {
	current, err := s.Get(ctx, user, recordType)
	if err != nil {
		return Document{}, err
	}

	updated, err := ApplySection(current, section, patch)
	if err != nil {
		return Document{}, err
	}
	return s.Save(ctx, updated)
}

// ResetToDefault deletes the user's saved preferences for recordType and
// returns the fresh default document.
func (s *Store) ResetToDefault(ctx context.Context, user, recordType string) (Document, error) {
	if err := s.records.Delete(ctx, user, recordType); err != nil && !IsNotFound(err) {
		return Document{}, fmt.Errorf("delete preferences: %w", err)
	}
	if err := s.cache.Delete(ctx, s.docKey(user, recordType)); err != nil {
		s.log.Warn().Err(err).
			Str("user", user).
			Str("record_type", recordType).
			Msg("dropping cached preferences failed")
	}
	return s.Get(ctx, user, recordType)
}

// WarmCache loads every persisted document of the user into the cache and
// returns how many were warmed. Invalid rows are skipped.
func (s *Store) WarmCache(ctx context.Context, user string) (int, error) {
	docs, err := s.records.ListByUser(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("list preferences: %w", err)
	}

	warmed := 0
	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			s.log.Warn().Err(err).
				Str("user", user).
				Str("record_type", doc.RecordType).
				Msg("skipping invalid stored preferences during warmup")
			continue
		}
		if err := s.cache.Set(ctx, s.docKey(doc.User, doc.RecordType), doc, s.ttl); err != nil {
			s.log.Warn().Err(err).Str("record_type", doc.RecordType).Msg("cache warmup write failed")
			continue
		}
		warmed++
	}
	return warmed, nil
}

// InvalidateUser drops every cached document of the user, for example on
// logout.
func (s *Store) InvalidateUser(ctx context.Context, user string) error {
	return s.cache.DeletePattern(ctx, s.keys.Pattern("user_preferences", user, "*"))
}

// Export returns every persisted document of the user keyed by record type.
// Only saved preferences are exported; synthesized defaults are not.
func (s *Store) Export(ctx context.Context, user string) (map[string]Document, error) {
	docs, err := s.records.ListByUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}

	out := make(map[string]Document, len(docs))
	for _, doc := range docs {
		out[doc.RecordType] = doc
	}
	return out, nil
}

// Import saves the given documents for the user, overriding the user and
// record type fields from the map. Documents that fail to validate or persist
// are skipped; the returned error joins their failures while the count
// reflects what was imported.
func (s *Store) Import(ctx context.Context, user string, docs map[string]Document) (int, error) {
	recordTypes := make([]string, 0, len(docs))
	for rt := range docs {
		recordTypes = append(recordTypes, rt)
	}
	sort.Strings(recordTypes)

	imported := 0
	var errs []error
	for _, rt := range recordTypes {
		doc := docs[rt]
		doc.User = user
		doc.RecordType = rt
		if _, err := s.Save(ctx, doc); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt, err))
			continue
		}
		imported++
	}
	return imported, errors.Join(errs...)
}

// SaveColumnWidth updates a single column's width, the highest-frequency
// preference write. Unknown columns are added as visible with the new width.
func (s *Store) SaveColumnWidth(ctx context.Context, user, recordType, fieldname string, width int) error {
	if fieldname == "" {
		return &ValidationError{Field: "fieldname", Message: "must not be empty"}
	}
	if width < MinColumnWidth || width > MaxColumnWidth {
		return &ValidationError{
			Field:   "width",
			Message: fmt.Sprintf("must be between %d and %d", MinColumnWidth, MaxColumnWidth),
		}
	}

	doc, err := s.Get(ctx, user, recordType)
	if err != nil {
		return err
	}

	updated := false
	for i := range doc.Columns {
		if doc.Columns[i].Fieldname == fieldname {
			doc.Columns[i].Width = width
			updated = true
			break
		}
	}
	if !updated {
		doc.Columns = append(doc.Columns, ColumnPref{
			Fieldname: fieldname,
			Visible:   true,
			Width:     width,
			Order:     len(doc.Columns),
			Label:     Titleize(fieldname),
		})
	}

	_, err = s.Save(ctx, doc)
	return err
}

// ColumnWidths returns the widths of the user's visible columns keyed by
// fieldname.
func (s *Store) ColumnWidths(ctx context.Context, user, recordType string) (map[string]int, error) {
	doc, err := s.Get(ctx, user, recordType)
	if err != nil {
		return nil, err
	}

	widths := make(map[string]int, len(doc.Columns))
	for _, c := range doc.Columns {
		if c.Visible {
			widths[c.Fieldname] = c.Width
		}
	}
	return widths, nil
}

func (s *Store) docKey(user, recordType string) string {
	return s.keys.Build("user_preferences", user, recordType)
}
