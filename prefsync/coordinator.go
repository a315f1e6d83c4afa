// Package prefsync keeps preference state consistent across browser tabs and
// processes, and manages preference backups. Change notifications are
// best-effort; clients that miss one converge through the polled sync records.
package prefsync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-preference-cache/cache"
	"github.com/goliatone/go-preference-cache/preference"
)

// EventPreferenceSync is the event name published when a user's preferences
// change.
const EventPreferenceSync = "preference_sync_update"

// AllRecordTypes selects every record type in backup operations.
const AllRecordTypes = "All"

// BackupType classifies how a backup came to exist.
type BackupType string

const (
	BackupManual      BackupType = "manual"
	BackupAutomatic   BackupType = "automatic"
	BackupBeforeReset BackupType = "before_reset"
)

// Backup is a point-in-time copy of a user's saved preferences.
type Backup struct {
	ID         string                         `json:"id" msgpack:"id"`
	User       string                         `json:"user" msgpack:"user"`
	RecordType string                         `json:"record_type" msgpack:"record_type"`
	Type       BackupType                     `json:"backup_type" msgpack:"backup_type"`
	Payload    map[string]preference.Document `json:"payload" msgpack:"payload"`
	// ContentHash digests the payload so identical consecutive backups can be
	// recognized without comparing documents.
	ContentHash string    `json:"content_hash" msgpack:"content_hash"`
	CreatedAt   time.Time `json:"created_at" msgpack:"created_at"`
}

// Backups is the persistence behind backup management. ListByUser returns
// backups newest first; Get returns a *NotFoundError for unknown ids.
type Backups interface {
	Insert(ctx context.Context, b Backup) error
	Get(ctx context.Context, id string) (Backup, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, user string) ([]Backup, error)
}

// Notifier delivers change events to connected clients of one user.
type Notifier interface {
	Publish(ctx context.Context, event string, payload any, targetUser string) error
}

// NopNotifier discards every event. Used when no realtime transport is wired.
type NopNotifier struct{}

// Publish implements Notifier.
func (NopNotifier) Publish(context.Context, string, any, string) error { return nil }

// NotFoundError reports an unknown backup id.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("backup %q not found", e.ID)
}

// AuthorizationError reports an attempt to touch another user's backup.
type AuthorizationError struct {
	User     string
	BackupID string
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %q does not own backup %q", e.User, e.BackupID)
}

// SyncRecord is the polled change marker for one user and record type. Its
// cache lifetime is twice the sync interval so a client never observes a gap
// between two polls.
type SyncRecord struct {
	User        string    `json:"user" msgpack:"user"`
	RecordType  string    `json:"record_type" msgpack:"record_type"`
	Hash        string    `json:"hash" msgpack:"hash"`
	PublishedAt time.Time `json:"published_at" msgpack:"published_at"`
}

// Config holds the configuration for the sync coordinator.
type Config struct {
	// Namespace scopes the cache keys. Defaults to the cache package's
	// default namespace.
	Namespace string

	// SyncInterval is the client polling cadence sync records are sized for.
	SyncInterval time.Duration

	// MaxManualBackups caps manual backups kept per user; the oldest beyond
	// the cap are removed.
	MaxManualBackups int

	// AutomaticRetention bounds the age of automatic and before-reset
	// backups.
	AutomaticRetention time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:          cache.DefaultNamespace,
		SyncInterval:       30 * time.Second,
		MaxManualBackups:   10,
		AutomaticRetention: 30 * 24 * time.Hour,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.SyncInterval <= 0 {
		return &ConfigError{Field: "SyncInterval", Message: "must be greater than 0"}
	}
	if c.MaxManualBackups <= 0 {
		return &ConfigError{Field: "MaxManualBackups", Message: "must be greater than 0"}
	}
	if c.AutomaticRetention <= 0 {
		return &ConfigError{Field: "AutomaticRetention", Message: "must be greater than 0"}
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

// Coordinator publishes preference changes, answers client polls, and manages
// backups.
type Coordinator struct {
	cache    cache.Cache
	prefs    *preference.Store
	backups  Backups
	notifier Notifier
	keys     cache.KeyBuilder
	cfg      Config
	now      func() time.Time
	newID    func() string
	log      zerolog.Logger
}

// NewCoordinator creates a Coordinator. A nil notifier disables realtime
// events; polling still works.
func NewCoordinator(c cache.Cache, prefs *preference.Store, backups Backups, notifier Notifier, cfg Config, logger zerolog.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &ConfigError{Field: "Cache", Message: "must not be nil"}
	}
	if prefs == nil {
		return nil, &ConfigError{Field: "Preferences", Message: "must not be nil"}
	}
	if backups == nil {
		return nil, &ConfigError{Field: "Backups", Message: "must not be nil"}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}

	return &Coordinator{
		cache:    c,
		prefs:    prefs,
		backups:  backups,
		notifier: notifier,
		keys:     cache.NewKeyBuilder(cfg.Namespace),
		cfg:      cfg,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		log:      logger.With().Str("component", "prefsync").Logger(),
	}, nil
}

// PublishChange records that doc changed and notifies the user's connected
// clients. The sync record outlives two polling intervals; notification
// failures are logged, never returned, because polling covers the loss.
func (s *Coordinator) PublishChange(ctx context.Context, doc preference.Document) (SyncRecord, error) {
	hash, err := ContentHash(doc)
	if err != nil {
		return SyncRecord{}, err
	}

	rec := SyncRecord{
		User:        doc.User,
		RecordType:  doc.RecordType,
		Hash:        hash,
		PublishedAt: s.now(),
	}

	key := s.syncKey(doc.User, doc.RecordType)
	if err := s.cache.Set(ctx, key, rec, 2*s.cfg.SyncInterval); err != nil {
		return SyncRecord{}, fmt.Errorf("record sync state: %w", err)
	}

	payload := map[string]any{
		"user":        rec.User,
		"record_type": rec.RecordType,
		"hash":        rec.Hash,
	}
	if err := s.notifier.Publish(ctx, EventPreferenceSync, payload, doc.User); err != nil {
		s.log.Warn().Err(err).
			Str("user", doc.User).
			Str("record_type", doc.RecordType).
			Msg("realtime notification failed")
	}
	return rec, nil
}

// CheckForUpdate returns the current sync record when the user's preferences
// changed relative to knownHash, or nil when the client is up to date or no
// change was recorded recently.
func (s *Coordinator) CheckForUpdate(ctx context.Context, user, recordType, knownHash string) (*SyncRecord, error) {
	rec, ok, err := s.syncRecord(ctx, user, recordType)
	if err != nil || !ok {
		return nil, err
	}
	if rec.Hash == knownHash {
		return nil, nil
	}
	return &rec, nil
}

// SyncStatus returns the current sync record for the user and record type,
// or nil when none is live.
func (s *Coordinator) SyncStatus(ctx context.Context, user, recordType string) (*SyncRecord, error) {
	rec, ok, err := s.syncRecord(ctx, user, recordType)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (s *Coordinator) syncRecord(ctx context.Context, user, recordType string) (SyncRecord, bool, error) {
	v, ok := s.cache.Get(ctx, s.syncKey(user, recordType))
	if !ok {
		return SyncRecord{}, false, nil
	}
	rec, err := cache.As[SyncRecord](v)
	if err != nil {
		return SyncRecord{}, false, fmt.Errorf("read sync state: %w", err)
	}
	return rec, true, nil
}

// CreateBackup snapshots the user's saved preferences. With recordType
// AllRecordTypes the backup covers everything the user saved; otherwise only
// that record type. Backup retention is enforced afterwards; retention
// failures are logged, the backup itself stands.
func (s *Coordinator) CreateBackup(ctx context.Context, user, recordType string, backupType BackupType) (Backup, error) {
	payload, err := s.prefs.Export(ctx, user)
	if err != nil {
		return Backup{}, err
	}
	if recordType != AllRecordTypes {
		doc, ok := payload[recordType]
		payload = map[string]preference.Document{}
		if ok {
			payload[recordType] = doc
		}
	}

	hash, err := ContentHash(payload)
	if err != nil {
		return Backup{}, err
	}

	b := Backup{
		ID:          s.newID(),
		User:        user,
		RecordType:  recordType,
		Type:        backupType,
		Payload:     payload,
		ContentHash: hash,
		CreatedAt:   s.now(),
	}
	if err := s.backups.Insert(ctx, b); err != nil {
		return Backup{}, fmt.Errorf("store backup: %w", err)
	}

	if _, err := s.CleanupOldBackups(ctx, user); err != nil {
		s.log.Warn().Err(err).Str("user", user).Msg("backup retention sweep failed")
	}
	return b, nil
}

// RestoreBackup replaces the user's preferences with the backup's payload and
// returns how many record types were restored. Record types that fail to
// restore are skipped and logged; the rest still land. Only the backup's
// owner may restore it.
func (s *Coordinator) RestoreBackup(ctx context.Context, user, backupID string) (int, error) {
	b, err := s.backups.Get(ctx, backupID)
	if err != nil {
		return 0, err
	}
	if b.User != user {
		return 0, &AuthorizationError{User: user, BackupID: backupID}
	}

	restored, err := s.prefs.Import(ctx, user, b.Payload)
	if err != nil {
		s.log.Warn().Err(err).
			Str("user", user).
			Str("backup_id", backupID).
			Msg("some record types failed to restore")
	}

	recordTypes := make([]string, 0, len(b.Payload))
	for rt := range b.Payload {
		recordTypes = append(recordTypes, rt)
	}
	sort.Strings(recordTypes)
	for _, rt := range recordTypes {
		doc, err := s.prefs.Get(ctx, user, rt)
		if err != nil {
			continue
		}
		if _, err := s.PublishChange(ctx, doc); err != nil {
			s.log.Warn().Err(err).Str("record_type", rt).Msg("publishing restored preferences failed")
		}
	}
	return restored, nil
}

// ResetWithBackup backs up the user's preferences for recordType, then resets
// them to defaults. A failed backup aborts the reset.
func (s *Coordinator) ResetWithBackup(ctx context.Context, user, recordType string) (preference.Document, error) {
	if _, err := s.CreateBackup(ctx, user, recordType, BackupBeforeReset); err != nil {
		return preference.Document{}, fmt.Errorf("backup before reset: %w", err)
	}

	doc, err := s.prefs.ResetToDefault(ctx, user, recordType)
	if err != nil {
		return preference.Document{}, err
	}

	if _, err := s.PublishChange(ctx, doc); err != nil {
		s.log.Warn().Err(err).
			Str("user", user).
			Str("record_type", recordType).
			Msg("publishing reset failed")
	}
	return doc, nil
}

// ListBackups returns the user's backups, newest first.
func (s *Coordinator) ListBackups(ctx context.Context, user string) ([]Backup, error) {
	return s.backups.ListByUser(ctx, user)
}

// DeleteBackup removes one of the user's backups. Only the owner may delete.
func (s *Coordinator) DeleteBackup(ctx context.Context, user, backupID string) error {
	b, err := s.backups.Get(ctx, backupID)
	if err != nil {
		return err
	}
	if b.User != user {
		return &AuthorizationError{User: user, BackupID: backupID}
	}
	return s.backups.Delete(ctx, backupID)
}

// CleanupOldBackups enforces retention for one user: manual backups beyond
// the configured cap and automatic or before-reset backups older than the
// retention window are removed. Individual delete failures are logged and do
// not stop the sweep.
func (s *Coordinator) CleanupOldBackups(ctx context.Context, user string) (int, error) {
	list, err := s.backups.ListByUser(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("list backups: %w", err)
	}

	cutoff := s.now().Add(-s.cfg.AutomaticRetention)
	manual := 0
	removed := 0
	for _, b := range list {
		drop := false
		switch b.Type {
		case BackupManual:
			manual++
			drop = manual > s.cfg.MaxManualBackups
		default:
			drop = b.CreatedAt.Before(cutoff)
		}
		if !drop {
			continue
		}
		if err := s.backups.Delete(ctx, b.ID); err != nil {
			s.log.Warn().Err(err).Str("backup_id", b.ID).Msg("backup delete failed")
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *Coordinator) syncKey(user, recordType string) string {
	return s.keys.Build("sync", user, recordType)
}
