package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-preference-cache/cache"
)

type countingSource struct {
	calls   int
	schemas map[string]Schema
	err     error
}

func (s *countingSource) GetSchema(_ context.Context, recordType string) (Schema, error) {
	s.calls++
	if s.err != nil {
		return Schema{}, s.err
	}
	schema, ok := s.schemas[recordType]
	if !ok {
		return Schema{}, errors.New("unknown record type " + recordType)
	}
	return schema, nil
}

func taskSchema() Schema {
	return Schema{
		Fields: []FieldSchema{
			{Fieldname: "subject", Label: "Subject", Type: TypeData, ListVisible: true},
			{Fieldname: "status", Label: "Status", Type: TypeSelect, ListVisible: true, Order: 1},
			{Fieldname: "description", Label: "Description", Type: TypeLongText, Order: 2},
			{Fieldname: "progress", Label: "Progress", Type: TypePercent, Width: 90, Order: 3},
		},
	}
}

func newTestService(t *testing.T, source SchemaSource) *Service {
	t.Helper()
	c, err := cache.NewCacheService(cache.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCacheService: %v", err)
	}
	svc, err := NewService(c, source, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRecordTypeSchemaNormalizes(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{schemas: map[string]Schema{"Task": taskSchema()}}
	svc := newTestService(t, source)

	schema, err := svc.RecordTypeSchema(ctx, "Task")
	if err != nil {
		t.Fatalf("RecordTypeSchema: %v", err)
	}
	if schema.RecordType != "Task" {
		t.Errorf("expected record type Task, got %q", schema.RecordType)
	}

	subject, err := schema.Field("subject")
	if err != nil {
		t.Fatalf("Field(subject): %v", err)
	}
	if subject.Width != 140 {
		t.Errorf("expected default Data width 140, got %d", subject.Width)
	}
	if !subject.Sortable || !subject.Filterable {
		t.Error("expected Data field to be sortable and filterable")
	}

	progress, _ := schema.Field("progress")
	if progress.Width != 90 {
		t.Errorf("expected declared width 90 to survive, got %d", progress.Width)
	}

	description, _ := schema.Field("description")
	if description.Sortable || description.Filterable {
		t.Error("expected Long Text field to be neither sortable nor filterable")
	}
}

func TestRecordTypeSchemaAddsStandardFields(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{schemas: map[string]Schema{"Task": taskSchema()}}
	svc := newTestService(t, source)

	schema, err := svc.RecordTypeSchema(ctx, "Task")
	if err != nil {
		t.Fatalf("RecordTypeSchema: %v", err)
	}

	tests := []struct {
		fieldname string
		order     int
	}{
		{"name", 0},
		{"owner", 9997},
		{"creation", 9998},
		{"modified", 9999},
		{"modified_by", 10000},
	}
	for _, tt := range tests {
		f, err := schema.Field(tt.fieldname)
		if err != nil {
			t.Errorf("expected standard field %s: %v", tt.fieldname, err)
			continue
		}
		if f.Order != tt.order {
			t.Errorf("expected %s order %d, got %d", tt.fieldname, tt.order, f.Order)
		}
	}

	// A declared field must not be duplicated by the standard set.
	withName := taskSchema()
	withName.Fields = append(withName.Fields, FieldSchema{Fieldname: "name", Label: "Custom ID", Type: TypeData})
	source.schemas["Issue"] = withName

	issue, err := svc.RecordTypeSchema(ctx, "Issue")
	if err != nil {
		t.Fatalf("RecordTypeSchema(Issue): %v", err)
	}
	count := 0
	for _, f := range issue.Fields {
		if f.Fieldname == "name" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one name field, got %d", count)
	}
}

func TestRecordTypeSchemaCaches(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{schemas: map[string]Schema{"Task": taskSchema()}}
	svc := newTestService(t, source)

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordTypeSchema(ctx, "Task"); err != nil {
			t.Fatalf("RecordTypeSchema: %v", err)
		}
	}
	if source.calls != 1 {
		t.Errorf("expected a single source call, got %d", source.calls)
	}

	if err := svc.Invalidate(ctx, "Task"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := svc.RecordTypeSchema(ctx, "Task"); err != nil {
		t.Fatalf("RecordTypeSchema after invalidate: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("expected source consulted again after invalidation, got %d calls", source.calls)
	}
}

func TestRecordTypeSchemaSourceError(t *testing.T) {
	ctx := context.Background()
	wantErr := errors.New("metadata api down")
	source := &countingSource{err: wantErr}
	svc := newTestService(t, source)

	if _, err := svc.RecordTypeSchema(ctx, "Task"); !errors.Is(err, wantErr) {
		t.Fatalf("expected source error, got %v", err)
	}

	// Failures must not be cached.
	source.err = nil
	source.schemas = map[string]Schema{"Task": taskSchema()}
	if _, err := svc.RecordTypeSchema(ctx, "Task"); err != nil {
		t.Fatalf("expected recovery after source error, got %v", err)
	}
}

func TestFieldSelectors(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{schemas: map[string]Schema{"Task": taskSchema()}}
	svc := newTestService(t, source)

	sortable, err := svc.SortableFields(ctx, "Task")
	if err != nil {
		t.Fatalf("SortableFields: %v", err)
	}
	for _, f := range sortable {
		if f.Fieldname == "description" {
			t.Error("expected Long Text field excluded from sortable set")
		}
	}

	filterable, err := svc.FilterableFields(ctx, "Task")
	if err != nil {
		t.Fatalf("FilterableFields: %v", err)
	}
	for _, f := range filterable {
		if f.Fieldname == "description" {
			t.Error("expected Long Text field excluded from filterable set")
		}
	}
}

func TestFieldSchemaNotFound(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{schemas: map[string]Schema{"Task": taskSchema()}}
	svc := newTestService(t, source)

	_, err := svc.FieldSchema(ctx, "Task", "nonexistent")
	var notFound *FieldNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *FieldNotFoundError, got %v", err)
	}
	if notFound.Fieldname != "nonexistent" || notFound.RecordType != "Task" {
		t.Errorf("unexpected error detail %+v", notFound)
	}
}

func TestDefaultWidthTable(t *testing.T) {
	tests := []struct {
		fieldType FieldType
		expected  int
	}{
		{TypeCheck, 80},
		{TypeInt, 100},
		{TypeDate, 100},
		{TypeSelect, 120},
		{TypeData, 140},
		{TypeDatetime, 140},
		{TypeText, 200},
		{TypeLongText, 300},
		{FieldType("Attach"), 140},
	}

	for _, tt := range tests {
		if got := DefaultWidth(tt.fieldType); got != tt.expected {
			t.Errorf("DefaultWidth(%s) = %d, expected %d", tt.fieldType, got, tt.expected)
		}
	}
}
