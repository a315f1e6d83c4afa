package testsupport

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-preference-cache/metadata"
	"github.com/goliatone/go-preference-cache/preference"
	"github.com/goliatone/go-preference-cache/prefsync"
)

// MemoryRecords is an in-memory preference.Records implementation.
type MemoryRecords struct {
	mu   sync.Mutex
	docs map[string]preference.Document
}

// NewMemoryRecords creates an empty MemoryRecords.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{docs: make(map[string]preference.Document)}
}

func recordKey(user, recordType string) string {
	return user + "/" + recordType
}

// Get implements preference.Records.
func (r *MemoryRecords) Get(_ context.Context, user, recordType string) (preference.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[recordKey(user, recordType)]
	if !ok {
		return preference.Document{}, &preference.NotFoundError{User: user, RecordType: recordType}
	}
	return doc, nil
}

// Upsert implements preference.Records.
func (r *MemoryRecords) Upsert(_ context.Context, doc preference.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[recordKey(doc.User, doc.RecordType)] = doc
	return nil
}

// Delete implements preference.Records.
func (r *MemoryRecords) Delete(_ context.Context, user, recordType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := recordKey(user, recordType)
	if _, ok := r.docs[key]; !ok {
		return &preference.NotFoundError{User: user, RecordType: recordType}
	}
	delete(r.docs, key)
	return nil
}

// ListByUser implements preference.Records.
func (r *MemoryRecords) ListByUser(_ context.Context, user string) ([]preference.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []preference.Document
	for _, doc := range r.docs {
		if doc.User == user {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordType < out[j].RecordType })
	return out, nil
}

// MemoryBackups is an in-memory prefsync.Backups implementation.
type MemoryBackups struct {
	mu      sync.Mutex
	backups map[string]prefsync.Backup
	seq     int
	order   map[string]int

	// InsertErr, when set, fails the next Insert.
	InsertErr error
}

// NewMemoryBackups creates an empty MemoryBackups.
func NewMemoryBackups() *MemoryBackups {
	return &MemoryBackups{
		backups: make(map[string]prefsync.Backup),
		order:   make(map[string]int),
	}
}

// Insert implements prefsync.Backups.
func (b *MemoryBackups) Insert(_ context.Context, backup prefsync.Backup) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.InsertErr != nil {
		err := b.InsertErr
		b.InsertErr = nil
		return err
	}
	b.seq++
	b.backups[backup.ID] = backup
	b.order[backup.ID] = b.seq
	return nil
}

// Get implements prefsync.Backups.
func (b *MemoryBackups) Get(_ context.Context, id string) (prefsync.Backup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	backup, ok := b.backups[id]
	if !ok {
		return prefsync.Backup{}, &prefsync.NotFoundError{ID: id}
	}
	return backup, nil
}

// Delete implements prefsync.Backups.
func (b *MemoryBackups) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.backups[id]; !ok {
		return &prefsync.NotFoundError{ID: id}
	}
	delete(b.backups, id)
	delete(b.order, id)
	return nil
}

// ListByUser implements prefsync.Backups, newest first.
func (b *MemoryBackups) ListByUser(_ context.Context, user string) ([]prefsync.Backup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []prefsync.Backup
	for _, backup := range b.backups {
		if backup.User == user {
			out = append(out, backup)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return b.order[out[i].ID] > b.order[out[j].ID]
	})
	return out, nil
}

// Count returns the number of stored backups.
func (b *MemoryBackups) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.backups)
}

// StaticSchemas is a metadata.SchemaSource serving a fixed schema set.
type StaticSchemas struct {
	Schemas map[string]metadata.Schema
}

// GetSchema implements metadata.SchemaSource.
func (s *StaticSchemas) GetSchema(_ context.Context, recordType string) (metadata.Schema, error) {
	schema, ok := s.Schemas[recordType]
	if !ok {
		return metadata.Schema{}, errors.New("unknown record type " + recordType)
	}
	return schema, nil
}

// NotifierEvent is one captured Publish call.
type NotifierEvent struct {
	Event      string
	Payload    any
	TargetUser string
}

// RecordingNotifier captures published events for assertions.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []NotifierEvent

	// Err, when set, is returned by every Publish.
	Err error
}

// Publish implements prefsync.Notifier.
func (n *RecordingNotifier) Publish(_ context.Context, event string, payload any, targetUser string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.events = append(n.events, NotifierEvent{Event: event, Payload: payload, TargetUser: targetUser})
	return nil
}

// Events returns a copy of the captured events.
func (n *RecordingNotifier) Events() []NotifierEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotifierEvent, len(n.events))
	copy(out, n.events)
	return out
}

// ManualClock is a settable clock for deterministic time-dependent tests.
type ManualClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewManualClock creates a clock starting at a fixed instant.
func NewManualClock() *ManualClock {
	return &ManualClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the clock's current instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}
