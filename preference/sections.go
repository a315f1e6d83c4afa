package preference

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Section names one independently updatable part of a preference document.
type Section string

const (
	SectionColumns      Section = "columns"
	SectionFilters      Section = "filters"
	SectionPagination   Section = "pagination"
	SectionSorting      Section = "sorting"
	SectionViewSettings Section = "view_settings"
)

// Sections lists every valid section name.
func Sections() []Section {
	return []Section{
		SectionColumns,
		SectionFilters,
		SectionPagination,
		SectionSorting,
		SectionViewSettings,
	}
}

// ValidSection reports whether s names a known section.
func ValidSection(s Section) bool {
	switch s {
	case SectionColumns, SectionFilters, SectionPagination, SectionSorting, SectionViewSettings:
		return true
	}
	return false
}

// columnPatch is the partial form clients send when updating columns. Pointer
// fields distinguish "not sent" from zero values.
type columnPatch struct {
	Fieldname string       `json:"fieldname"`
	Visible   *bool        `json:"visible"`
	Width     *int         `json:"width"`
	Order     *int         `json:"order"`
	Pinned    *PinPosition `json:"pinned"`
	Label     *string      `json:"label"`
}

// ApplySection merges a JSON patch into one section of the document and
// returns the updated copy. The input document is never mutated. Unknown
// fields in the patch and values that fail validation return a
// *ValidationError.
func ApplySection(doc Document, section Section, patch json.RawMessage) (Document, error) {
	if !ValidSection(section) {
		return Document{}, &ValidationError{
			Field:   "section",
			Message: fmt.Sprintf("unknown section %q", section),
		}
	}

	out := doc.Clone()

	var err error
	switch section {
	case SectionColumns:
		err = applyColumns(&out, patch)
	case SectionFilters:
		if out.Filters == nil {
			out.Filters = &FilterState{}
		}
		err = mergeStrict(patch, out.Filters, "filters")
	case SectionPagination:
		if out.Pagination == nil {
			out.Pagination = &PaginationState{PageSize: DefaultPageSize, CurrentPage: 1}
		}
		err = mergeStrict(patch, out.Pagination, "pagination")
	case SectionSorting:
		if out.Sorting == nil {
			out.Sorting = &SortState{Field: "modified", Order: SortDescending}
		}
		err = mergeStrict(patch, out.Sorting, "sorting")
	case SectionViewSettings:
		err = applyViewSettings(&out, patch)
	}
	if err != nil {
		return Document{}, err
	}

	if err := out.Validate(); err != nil {
		return Document{}, err
	}
	return out, nil
}

// applyColumns merges each patched entry into the column list by fieldname.
// Columns absent from the patch keep their preference; entries for unknown
// fieldnames are appended with defaults. Clients send only the fields they
// change.
func applyColumns(doc *Document, patch json.RawMessage) error {
	var patches []columnPatch
	if err := unmarshalStrict(patch, &patches); err != nil {
		return &ValidationError{Field: "columns", Message: err.Error()}
	}

	columns := doc.Columns
	if columns == nil {
		columns = []ColumnPref{}
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c.Fieldname] = i
	}

	for i, p := range patches {
		if p.Fieldname == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("columns[%d].fieldname", i),
				Message: "must not be empty",
			}
		}

		pos, ok := index[p.Fieldname]
		if !ok {
			columns = append(columns, ColumnPref{
				Fieldname: p.Fieldname,
				Visible:   true,
				Width:     DefaultColumnWidth,
				Order:     len(columns),
				Label:     Titleize(p.Fieldname),
			})
			pos = len(columns) - 1
			index[p.Fieldname] = pos
		}
		col := columns[pos]

		if p.Visible != nil {
			col.Visible = *p.Visible
		}
		if p.Width != nil {
			col.Width = *p.Width
		}
		if p.Order != nil {
			col.Order = *p.Order
		}
		if p.Pinned != nil {
			col.Pinned = *p.Pinned
		}
		if p.Label != nil {
			col.Label = *p.Label
		}
		columns[pos] = col
	}

	doc.Columns = columns
	return nil
}

// applyViewSettings overlays patch keys onto the settings bag. Values are
// opaque to the server.
func applyViewSettings(doc *Document, patch json.RawMessage) error {
	var settings map[string]any
	if err := json.Unmarshal(patch, &settings); err != nil {
		return &ValidationError{Field: "view_settings", Message: err.Error()}
	}

	if doc.ViewSettings == nil {
		doc.ViewSettings = defaultViewSettings()
	}
	for k, v := range settings {
		doc.ViewSettings[k] = v
	}
	return nil
}

// mergeStrict unmarshals patch onto target, which already holds the current
// section state, so keys absent from the patch keep their value.
func mergeStrict(patch json.RawMessage, target any, field string) error {
	if err := unmarshalStrict(patch, target); err != nil {
		return &ValidationError{Field: field, Message: err.Error()}
	}
	return nil
}

func unmarshalStrict(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
