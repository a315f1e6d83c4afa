package preference

import (
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	// MinColumnWidth and MaxColumnWidth bound persisted column widths in
	// pixels. Values outside the range are rejected, not clamped, so a
	// misbehaving client is surfaced instead of silently corrected.
	MinColumnWidth = 50
	MaxColumnWidth = 1000

	// DefaultColumnWidth applies when neither the schema nor the user
	// supplies a width.
	DefaultColumnWidth = 140

	// DefaultPageSize is the page size of a fresh preference document.
	DefaultPageSize = 20

	// DocumentVersion tags persisted documents for future migrations.
	DocumentVersion = "1.0"
)

// PinPosition anchors a column to an edge of the list view.
type PinPosition string

const (
	PinNone  PinPosition = ""
	PinLeft  PinPosition = "left"
	PinRight PinPosition = "right"
)

// SortAscending and SortDescending are the two accepted sort orders.
const (
	SortAscending  = "asc"
	SortDescending = "desc"
)

// ColumnPref is one user-configured column of a list view.
type ColumnPref struct {
	Fieldname string      `json:"fieldname" msgpack:"fieldname"`
	Visible   bool        `json:"visible" msgpack:"visible"`
	Width     int         `json:"width" msgpack:"width"`
	Order     int         `json:"order" msgpack:"order"`
	Pinned    PinPosition `json:"pinned,omitempty" msgpack:"pinned"`
	Label     string      `json:"label,omitempty" msgpack:"label"`
}

// Validate checks a single column preference.
func (c ColumnPref) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Fieldname, validation.Required),
		validation.Field(&c.Width, validation.Required, validation.Min(MinColumnWidth), validation.Max(MaxColumnWidth)),
		validation.Field(&c.Order, validation.Min(0)),
		validation.Field(&c.Pinned, validation.In(PinNone, PinLeft, PinRight)),
	)
}

// FilterCondition is one predicate of an active filter.
type FilterCondition struct {
	Fieldname string `json:"fieldname" msgpack:"fieldname"`
	Operator  string `json:"operator" msgpack:"operator"`
	Value     any    `json:"value" msgpack:"value"`
}

// SavedFilter is a named, reusable set of filter conditions.
type SavedFilter struct {
	Name       string            `json:"name" msgpack:"name"`
	Conditions []FilterCondition `json:"conditions" msgpack:"conditions"`
}

// FilterState holds everything filter-related for one list view.
type FilterState struct {
	Active []FilterCondition `json:"active_filters" msgpack:"active_filters"`
	Saved  []SavedFilter     `json:"saved_filters" msgpack:"saved_filters"`
	Quick  map[string]any    `json:"quick_filters" msgpack:"quick_filters"`
}

// PaginationState holds the paging position of one list view.
type PaginationState struct {
	PageSize    int `json:"page_size" msgpack:"page_size"`
	CurrentPage int `json:"current_page" msgpack:"current_page"`
}

// SortState holds the ordering of one list view.
type SortState struct {
	Field string `json:"sort_field" msgpack:"sort_field"`
	Order string `json:"sort_order" msgpack:"sort_order"`
}

// Document is the complete preference state of one user for one record type.
// All five sections must be present; Validate rejects documents with nil
// sections so a partial document is never persisted. An empty column list is
// allowed, a missing one is not.
type Document struct {
	User       string `json:"user" msgpack:"user"`
	RecordType string `json:"record_type" msgpack:"record_type"`
	Version    string `json:"version" msgpack:"version"`

	Columns      []ColumnPref     `json:"columns" msgpack:"columns"`
	Filters      *FilterState     `json:"filters" msgpack:"filters"`
	Pagination   *PaginationState `json:"pagination" msgpack:"pagination"`
	Sorting      *SortState       `json:"sorting" msgpack:"sorting"`
	ViewSettings map[string]any   `json:"view_settings" msgpack:"view_settings"`

	LastUpdated time.Time `json:"last_updated" msgpack:"last_updated"`
}

// ValidationError reports the first invalid field of a document. The Field
// path is precise enough for a client to highlight the offending input.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid preference: %s: %s", e.Field, e.Message)
}

// Validate checks the whole document. It returns a *ValidationError naming
// the first offending field, or nil.
func (d Document) Validate() error {
	if d.User == "" {
		return &ValidationError{Field: "user", Message: "must not be empty"}
	}
	if d.RecordType == "" {
		return &ValidationError{Field: "record_type", Message: "must not be empty"}
	}

	if d.Columns == nil {
		return &ValidationError{Field: "columns", Message: "missing required section"}
	}
	if d.Filters == nil {
		return &ValidationError{Field: "filters", Message: "missing required section"}
	}
	if d.Pagination == nil {
		return &ValidationError{Field: "pagination", Message: "missing required section"}
	}
	if d.Sorting == nil {
		return &ValidationError{Field: "sorting", Message: "missing required section"}
	}
	if d.ViewSettings == nil {
		return &ValidationError{Field: "view_settings", Message: "missing required section"}
	}

	seen := make(map[string]struct{}, len(d.Columns))
	for i, col := range d.Columns {
		if err := col.Validate(); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("columns[%d]", i),
				Message: err.Error(),
			}
		}
		if _, dup := seen[col.Fieldname]; dup {
			return &ValidationError{
				Field:   fmt.Sprintf("columns[%d].fieldname", i),
				Message: fmt.Sprintf("duplicate column %q", col.Fieldname),
			}
		}
		seen[col.Fieldname] = struct{}{}
	}

	if d.Sorting.Order != SortAscending && d.Sorting.Order != SortDescending {
		return &ValidationError{
			Field:   "sorting.sort_order",
			Message: fmt.Sprintf("must be %q or %q", SortAscending, SortDescending),
		}
	}
	if d.Sorting.Field == "" {
		return &ValidationError{Field: "sorting.sort_field", Message: "must not be empty"}
	}

	if d.Pagination.PageSize <= 0 {
		return &ValidationError{Field: "pagination.page_size", Message: "must be greater than 0"}
	}
	if d.Pagination.CurrentPage < 1 {
		return &ValidationError{Field: "pagination.current_page", Message: "must be at least 1"}
	}

	for i, f := range d.Filters.Active {
		if f.Fieldname == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("filters.active_filters[%d].fieldname", i),
				Message: "must not be empty",
			}
		}
	}
	names := make(map[string]struct{}, len(d.Filters.Saved))
	for i, s := range d.Filters.Saved {
		if s.Name == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("filters.saved_filters[%d].name", i),
				Message: "must not be empty",
			}
		}
		if _, dup := names[s.Name]; dup {
			return &ValidationError{
				Field:   fmt.Sprintf("filters.saved_filters[%d].name", i),
				Message: fmt.Sprintf("duplicate saved filter %q", s.Name),
			}
		}
		names[s.Name] = struct{}{}
	}

	return nil
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	payload, err := json.Marshal(d)
	if err != nil {
		// Document contains only JSON-safe types; Marshal cannot fail on a
		// value that came through Validate.
		panic(fmt.Sprintf("clone preference document: %v", err))
	}
	var out Document
	if err := json.Unmarshal(payload, &out); err != nil {
		panic(fmt.Sprintf("clone preference document: %v", err))
	}
	return out
}

// Column returns the preference for fieldname and whether it exists.
func (d Document) Column(fieldname string) (ColumnPref, bool) {
	for _, c := range d.Columns {
		if c.Fieldname == fieldname {
			return c, true
		}
	}
	return ColumnPref{}, false
}
