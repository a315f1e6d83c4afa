package prefsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-preference-cache/cache"
	"github.com/goliatone/go-preference-cache/metadata"
	"github.com/goliatone/go-preference-cache/preference"
)

type memRecords struct {
	mu   sync.Mutex
	docs map[string]preference.Document
}

func newMemRecords() *memRecords {
	return &memRecords{docs: make(map[string]preference.Document)}
}

func (r *memRecords) key(user, recordType string) string {
	return user + "/" + recordType
}

func (r *memRecords) Get(_ context.Context, user, recordType string) (preference.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[r.key(user, recordType)]
	if !ok {
		return preference.Document{}, &preference.NotFoundError{User: user, RecordType: recordType}
	}
	return doc, nil
}

func (r *memRecords) Upsert(_ context.Context, doc preference.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[r.key(doc.User, doc.RecordType)] = doc
	return nil
}

func (r *memRecords) Delete(_ context.Context, user, recordType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.key(user, recordType)
	if _, ok := r.docs[key]; !ok {
		return &preference.NotFoundError{User: user, RecordType: recordType}
	}
	delete(r.docs, key)
	return nil
}

func (r *memRecords) ListByUser(_ context.Context, user string) ([]preference.Document, error) {
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

type memBackups struct {
	mu        sync.Mutex
	backups   map[string]Backup
	seq       int
	order     map[string]int
	insertErr error
}

func newMemBackups() *memBackups {
	return &memBackups{backups: make(map[string]Backup), order: make(map[string]int)}
}

func (b *memBackups) Insert(_ context.Context, backup Backup) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.insertErr != nil {
		return b.insertErr
	}
	b.seq++
	b.backups[backup.ID] = backup
	b.order[backup.ID] = b.seq
	return nil
}

func (b *memBackups) Get(_ context.Context, id string) (Backup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	backup, ok := b.backups[id]
	if !ok {
		return Backup{}, &NotFoundError{ID: id}
	}
	return backup, nil
}

func (b *memBackups) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.backups[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(b.backups, id)
	delete(b.order, id)
	return nil
}

func (b *memBackups) ListByUser(_ context.Context, user string) ([]Backup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Backup
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

func (b *memBackups) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.backups)
}

type capturedEvent struct {
	event      string
	targetUser string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []capturedEvent
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, event string, _ any, targetUser string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, capturedEvent{event: event, targetUser: targetUser})
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type testEnv struct {
	coordinator *Coordinator
	prefs       *preference.Store
	records     *memRecords
	backups     *memBackups
	notifier    *recordingNotifier
	clock       *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	c, err := cache.NewCacheService(cache.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCacheService: %v", err)
	}

	source := metadata.SchemaSourceFunc(func(_ context.Context, recordType string) (metadata.Schema, error) {
		return metadata.Schema{
			Fields: []metadata.FieldSchema{
				{Fieldname: "subject", Label: "Subject", Type: metadata.TypeData, ListVisible: true},
				{Fieldname: "status", Label: "Status", Type: metadata.TypeSelect, ListVisible: true, Order: 1},
			},
		}, nil
	})
	meta, err := metadata.NewService(c, source, metadata.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("metadata.NewService: %v", err)
	}

	records := newMemRecords()
	prefs, err := preference.NewStore(c, records, meta, preference.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("preference.NewStore: %v", err)
	}

	backups := newMemBackups()
	notifier := &recordingNotifier{}
	coordinator, err := NewCoordinator(c, prefs, backups, notifier, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	clock := newTestClock()
	coordinator.now = clock.Now

	ids := 0
	coordinator.newID = func() string {
		ids++
		return fmt.Sprintf("backup-%03d", ids)
	}

	return &testEnv{
		coordinator: coordinator,
		prefs:       prefs,
		records:     records,
		backups:     backups,
		notifier:    notifier,
		clock:       clock,
	}
}

func savedDoc(t *testing.T, env *testEnv, user, recordType string, width int) preference.Document {
	t.Helper()
	doc := preference.Document{
		User:       user,
		RecordType: recordType,
		Columns: []preference.ColumnPref{
			{Fieldname: "subject", Visible: true, Width: width},
		},
		Filters:      &preference.FilterState{},
		Pagination:   &preference.PaginationState{PageSize: preference.DefaultPageSize, CurrentPage: 1},
		Sorting:      &preference.SortState{Field: "modified", Order: preference.SortDescending},
		ViewSettings: map[string]any{},
	}
	saved, err := env.prefs.Save(context.Background(), doc)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return saved
}

func TestPublishChangeAndCheckForUpdate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	doc := savedDoc(t, env, "alice", "Task", 200)

	rec, err := env.coordinator.PublishChange(ctx, doc)
	if err != nil {
		t.Fatalf("PublishChange: %v", err)
	}
	if rec.Hash == "" {
		t.Fatal("expected non-empty content hash")
	}

	// Client already at the published hash sees nothing.
	update, err := env.coordinator.CheckForUpdate(ctx, "alice", "Task", rec.Hash)
	if err != nil {
		t.Fatalf("CheckForUpdate: %v", err)
	}
	if update != nil {
		t.Errorf("expected up-to-date client to see nil, got %+v", update)
	}

	// Client with a stale hash sees the record.
	update, err = env.coordinator.CheckForUpdate(ctx, "alice", "Task", "stale-hash")
	if err != nil {
		t.Fatalf("CheckForUpdate: %v", err)
	}
	if update == nil || update.Hash != rec.Hash {
		t.Errorf("expected stale client to see the new record, got %+v", update)
	}

	// No record published for other record types.
	update, err = env.coordinator.CheckForUpdate(ctx, "alice", "Issue", "whatever")
	if err != nil {
		t.Fatalf("CheckForUpdate: %v", err)
	}
	if update != nil {
		t.Errorf("expected nil for unpublished record type, got %+v", update)
	}

	if env.notifier.count() != 1 {
		t.Errorf("expected 1 realtime event, got %d", env.notifier.count())
	}
}

func TestPublishChangeHashStability(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	doc := savedDoc(t, env, "alice", "Task", 200)

	first, err := env.coordinator.PublishChange(ctx, doc)
	if err != nil {
		t.Fatalf("PublishChange: %v", err)
	}
	second, err := env.coordinator.PublishChange(ctx, doc)
	if err != nil {
		t.Fatalf("PublishChange: %v", err)
	}
	if first.Hash != second.Hash {
		t.Errorf("expected identical documents to hash identically: %s vs %s", first.Hash, second.Hash)
	}

	doc.Columns[0].Width = 300
	third, err := env.coordinator.PublishChange(ctx, doc)
	if err != nil {
		t.Fatalf("PublishChange: %v", err)
	}
	if third.Hash == first.Hash {
		t.Error("expected changed document to hash differently")
	}
}

func TestPublishChangeNotifierFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.notifier.err = errors.New("socket closed")

	doc := savedDoc(t, env, "alice", "Task", 200)
	if _, err := env.coordinator.PublishChange(ctx, doc); err != nil {
		t.Fatalf("expected notification failure to be swallowed, got %v", err)
	}

	// The sync record still landed, so polling clients converge.
	update, err := env.coordinator.CheckForUpdate(ctx, "alice", "Task", "stale")
	if err != nil || update == nil {
		t.Errorf("expected sync record despite notifier failure, got %+v, %v", update, err)
	}
}

func TestCreateAndRestoreBackup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	savedDoc(t, env, "alice", "Task", 300)
	savedDoc(t, env, "alice", "Issue", 250)

	backup, err := env.coordinator.CreateBackup(ctx, "alice", AllRecordTypes, BackupManual)
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if len(backup.Payload) != 2 {
		t.Fatalf("expected 2 record types in backup, got %d", len(backup.Payload))
	}
	if backup.ContentHash == "" {
		t.Error("expected content hash on backup")
	}

	// Mangle the live preferences, then restore.
	savedDoc(t, env, "alice", "Task", 999)
	restored, err := env.coordinator.RestoreBackup(ctx, "alice", backup.ID)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if restored != 2 {
		t.Errorf("expected 2 restored record types, got %d", restored)
	}

	doc, err := env.prefs.Get(ctx, "alice", "Task")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Columns[0].Width != 300 {
		t.Errorf("expected restored width 300, got %d", doc.Columns[0].Width)
	}
}

func TestCreateBackupSingleRecordType(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	savedDoc(t, env, "alice", "Task", 300)
	savedDoc(t, env, "alice", "Issue", 250)

	backup, err := env.coordinator.CreateBackup(ctx, "alice", "Task", BackupManual)
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if len(backup.Payload) != 1 {
		t.Fatalf("expected 1 record type, got %d", len(backup.Payload))
	}
	if _, ok := backup.Payload["Task"]; !ok {
		t.Error("expected Task payload")
	}
}

func TestRestoreBackupAuthorization(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	savedDoc(t, env, "alice", "Task", 300)

	backup, err := env.coordinator.CreateBackup(ctx, "alice", AllRecordTypes, BackupManual)
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	_, err = env.coordinator.RestoreBackup(ctx, "mallory", backup.ID)
	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthorizationError, got %v", err)
	}

	err = env.coordinator.DeleteBackup(ctx, "mallory", backup.ID)
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthorizationError from delete, got %v", err)
	}

	_, err = env.coordinator.RestoreBackup(ctx, "alice", "no-such-backup")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
}

func TestResetWithBackup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	savedDoc(t, env, "alice", "Task", 300)

	doc, err := env.coordinator.ResetWithBackup(ctx, "alice", "Task")
	if err != nil {
		t.Fatalf("ResetWithBackup: %v", err)
	}
	if doc.Columns[0].Width == 300 {
		t.Error("expected reset to discard the saved width")
	}

	list, err := env.coordinator.ListBackups(ctx, "alice")
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(list) != 1 || list[0].Type != BackupBeforeReset {
		t.Fatalf("expected one before_reset backup, got %+v", list)
	}

	// The backup holds the pre-reset state.
	if list[0].Payload["Task"].Columns[0].Width != 300 {
		t.Error("expected backup to hold the pre-reset width")
	}
}

func TestResetWithBackupAbortsOnBackupFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	savedDoc(t, env, "alice", "Task", 300)
	env.backups.insertErr = errors.New("disk full")

	if _, err := env.coordinator.ResetWithBackup(ctx, "alice", "Task"); err == nil {
		t.Fatal("expected reset to abort when the backup cannot be stored")
	}

	// The saved preferences must be untouched.
	doc, err := env.prefs.Get(ctx, "alice", "Task")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Columns[0].Width != 300 {
		t.Errorf("expected preferences preserved after aborted reset, got width %d", doc.Columns[0].Width)
	}
}

func TestCleanupOldBackupsManualCap(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	savedDoc(t, env, "alice", "Task", 300)

	limit := env.coordinator.cfg.MaxManualBackups
	for i := 0; i < limit+3; i++ {
		if _, err := env.coordinator.CreateBackup(ctx, "alice", AllRecordTypes, BackupManual); err != nil {
			t.Fatalf("CreateBackup %d: %v", i, err)
		}
		env.clock.Advance(time.Minute)
	}

	if env.backups.count() != limit {
		t.Fatalf("expected %d manual backups after retention, got %d", limit, env.backups.count())
	}

	// The survivors are the newest ones.
	list, err := env.coordinator.ListBackups(ctx, "alice")
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.After(list[i-1].CreatedAt) {
			t.Fatal("expected newest-first ordering")
		}
	}
	oldestKept := list[len(list)-1].CreatedAt
	newest := list[0].CreatedAt
	if !newest.After(oldestKept) {
		t.Error("expected retained backups to span the newest creation times")
	}
}

func TestCleanupOldBackupsAutomaticRetention(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	savedDoc(t, env, "alice", "Task", 300)

	if _, err := env.coordinator.CreateBackup(ctx, "alice", AllRecordTypes, BackupAutomatic); err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	// Manual backups never age out.
	if _, err := env.coordinator.CreateBackup(ctx, "alice", AllRecordTypes, BackupManual); err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	env.clock.Advance(env.coordinator.cfg.AutomaticRetention + time.Hour)

	removed, err := env.coordinator.CleanupOldBackups(ctx, "alice")
	if err != nil {
		t.Fatalf("CleanupOldBackups: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 aged-out backup removed, got %d", removed)
	}

	list, _ := env.coordinator.ListBackups(ctx, "alice")
	if len(list) != 1 || list[0].Type != BackupManual {
		t.Errorf("expected only the manual backup to survive, got %+v", list)
	}
}

func TestSyncStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	status, err := env.coordinator.SyncStatus(ctx, "alice", "Task")
	if err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}
	if status != nil {
		t.Errorf("expected nil status before any publish, got %+v", status)
	}

	doc := savedDoc(t, env, "alice", "Task", 200)
	rec, err := env.coordinator.PublishChange(ctx, doc)
	if err != nil {
		t.Fatalf("PublishChange: %v", err)
	}

	status, err = env.coordinator.SyncStatus(ctx, "alice", "Task")
	if err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}
	if status == nil || status.Hash != rec.Hash {
		t.Errorf("expected published record, got %+v", status)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "valid"},
		{name: "zero interval", mutate: func(c *Config) { c.SyncInterval = 0 }, field: "SyncInterval"},
		{name: "zero manual cap", mutate: func(c *Config) { c.MaxManualBackups = 0 }, field: "MaxManualBackups"},
		{name: "zero retention", mutate: func(c *Config) { c.AutomaticRetention = 0 }, field: "AutomaticRetention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Fatalf("expected ConfigError on %s, got %v", tt.field, err)
			}
		})
	}
}
