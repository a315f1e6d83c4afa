package di_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/goliatone/go-preference-cache/metadata"
	"github.com/goliatone/go-preference-cache/pkg/di"
	"github.com/goliatone/go-preference-cache/pkg/testsupport"
	"github.com/goliatone/go-preference-cache/preference"
	"github.com/goliatone/go-preference-cache/prefsync"
)

func taskSchemas() *testsupport.StaticSchemas {
	return &testsupport.StaticSchemas{
		Schemas: map[string]metadata.Schema{
			"Task": {
				Fields: []metadata.FieldSchema{
					{Fieldname: "subject", Label: "Subject", Type: metadata.TypeData, ListVisible: true},
					{Fieldname: "status", Label: "Status", Type: metadata.TypeSelect, ListVisible: true, Order: 1},
					{Fieldname: "due_date", Label: "Due Date", Type: metadata.TypeDate, ListVisible: true, Order: 2},
				},
			},
		},
	}
}

func newContainer(t *testing.T, notifier *testsupport.RecordingNotifier) *di.Container {
	t.Helper()

	opts := di.DefaultOptions()
	opts.Records = testsupport.NewMemoryRecords()
	opts.Backups = testsupport.NewMemoryBackups()
	opts.Schemas = taskSchemas()
	if notifier != nil {
		opts.Notifier = notifier
	}

	container, err := di.New(opts)
	if err != nil {
		t.Fatalf("di.New: %v", err)
	}
	return container
}

func TestNewRequiresCollaborators(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*di.Options)
		field  string
	}{
		{name: "missing records", mutate: func(o *di.Options) { o.Records = nil }, field: "Records"},
		{name: "missing backups", mutate: func(o *di.Options) { o.Backups = nil }, field: "Backups"},
		{name: "missing schemas", mutate: func(o *di.Options) { o.Schemas = nil }, field: "Schemas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := di.DefaultOptions()
			opts.Records = testsupport.NewMemoryRecords()
			opts.Backups = testsupport.NewMemoryBackups()
			opts.Schemas = taskSchemas()
			tt.mutate(&opts)

			_, err := di.New(opts)
			var cfgErr *di.ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Fatalf("expected ConfigError on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	opts := di.DefaultOptions()
	opts.Records = testsupport.NewMemoryRecords()
	opts.Backups = testsupport.NewMemoryBackups()
	opts.Schemas = taskSchemas()
	opts.Cache.Tier1Capacity = -1

	if _, err := di.New(opts); err == nil {
		t.Fatal("expected invalid cache config to be rejected")
	}
}

func TestContainerEndToEnd(t *testing.T) {
	ctx := context.Background()
	notifier := &testsupport.RecordingNotifier{}
	container := newContainer(t, notifier)

	// A fresh user sees schema-derived defaults.
	doc, err := container.Preferences().Get(ctx, "alice", "Task")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(doc.Columns) != 3 {
		t.Fatalf("expected 3 default columns, got %d", len(doc.Columns))
	}

	// Resize a column and publish the change.
	if err := container.Preferences().SaveColumnWidth(ctx, "alice", "Task", "subject", 320); err != nil {
		t.Fatalf("SaveColumnWidth: %v", err)
	}
	doc, err = container.Preferences().Get(ctx, "alice", "Task")
	if err != nil {
		t.Fatalf("Get after resize: %v", err)
	}
	rec, err := container.Sync().PublishChange(ctx, doc)
	if err != nil {
		t.Fatalf("PublishChange: %v", err)
	}

	events := notifier.Events()
	if len(events) != 1 || events[0].Event != prefsync.EventPreferenceSync || events[0].TargetUser != "alice" {
		t.Errorf("unexpected events %+v", events)
	}

	// Another client with a stale hash learns about the change.
	update, err := container.Sync().CheckForUpdate(ctx, "alice", "Task", "stale")
	if err != nil {
		t.Fatalf("CheckForUpdate: %v", err)
	}
	if update == nil || update.Hash != rec.Hash {
		t.Errorf("expected stale client to see the published record, got %+v", update)
	}

	// Backup, reset, restore.
	backup, err := container.Sync().CreateBackup(ctx, "alice", prefsync.AllRecordTypes, prefsync.BackupManual)
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if _, err := container.Preferences().ResetToDefault(ctx, "alice", "Task"); err != nil {
		t.Fatalf("ResetToDefault: %v", err)
	}
	restored, err := container.Sync().RestoreBackup(ctx, "alice", backup.ID)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if restored != 1 {
		t.Errorf("expected 1 restored record type, got %d", restored)
	}

	doc, err = container.Preferences().Get(ctx, "alice", "Task")
	if err != nil {
		t.Fatalf("Get after restore: %v", err)
	}
	if col, ok := doc.Column("subject"); !ok || col.Width != 320 {
		t.Errorf("expected restored width 320, got %+v", col)
	}
}

func TestContainerSectionUpdateFlow(t *testing.T) {
	ctx := context.Background()
	container := newContainer(t, nil)

	doc, err := container.Preferences().UpdateSection(ctx, "alice", "Task", preference.SectionSorting, json.RawMessage(`{"sort_field": "due_date", "sort_order": "asc"}`))
	if err != nil {
		t.Fatalf("UpdateSection: %v", err)
	}
	if doc.Sorting.Field != "due_date" || doc.Sorting.Order != preference.SortAscending {
		t.Errorf("unexpected sorting %+v", doc.Sorting)
	}
}

func TestContainerWindowers(t *testing.T) {
	container := newContainer(t, nil)

	rows := container.RowWindower()
	if rows.Config().BufferItems != 50 {
		t.Errorf("expected row defaults, got %+v", rows.Config())
	}
	columns := container.ColumnWindower()
	if columns.Config().BufferItems != 5 {
		t.Errorf("expected column defaults, got %+v", columns.Config())
	}

	stats := container.Cache().Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("expected untouched cache stats, got %+v", stats)
	}
}
