package preference

import (
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-preference-cache/metadata"
)

// View settings every fresh document starts with. Kept as a map because the
// frontend owns this bag; the server only stores and returns it.
func defaultViewSettings() map[string]any {
	return map[string]any{
		"show_statistics":  true,
		"compact_view":     false,
		"auto_refresh":     false,
		"refresh_interval": 30,
	}
}

// DefaultDocument builds the preference document a user without saved
// preferences sees: the schema's list-visible fields in declaration order,
// newest-modified-first sorting, and the standard page size.
func DefaultDocument(user, recordType string, schema metadata.Schema, now time.Time) Document {
	fields := make([]metadata.FieldSchema, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		if f.ListVisible {
			fields = append(fields, f)
		}
	}
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Order < fields[j].Order
	})

	columns := make([]ColumnPref, len(fields))
	for i, f := range fields {
		width := f.Width
		if width <= 0 {
			width = metadata.DefaultWidth(f.Type)
		}
		label := f.Label
		if label == "" {
			label = Titleize(f.Fieldname)
		}
		columns[i] = ColumnPref{
			Fieldname: f.Fieldname,
			Visible:   true,
			Width:     width,
			Order:     i,
			Label:     label,
		}
	}

	return Document{
		User:       user,
		RecordType: recordType,
		Version:    DocumentVersion,
		Columns:    columns,
		Filters: &FilterState{
			Active: []FilterCondition{},
			Saved:  []SavedFilter{},
			Quick:  map[string]any{},
		},
		Pagination: &PaginationState{
			PageSize:    DefaultPageSize,
			CurrentPage: 1,
		},
		Sorting: &SortState{
			Field: "modified",
			Order: SortDescending,
		},
		ViewSettings: defaultViewSettings(),
		LastUpdated:  now,
	}
}

// Titleize turns a snake_case fieldname into a display label, e.g.
// "due_date" becomes "Due Date".
func Titleize(fieldname string) string {
	words := strings.Split(fieldname, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
