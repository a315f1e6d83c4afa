package metadata

import "fmt"

// FieldType identifies the data type of a record field. The values mirror the
// type names used by the ERP backend so schemas can be consumed verbatim from
// its metadata API.
type FieldType string

const (
	TypeData      FieldType = "Data"
	TypeLink      FieldType = "Link"
	TypeSelect    FieldType = "Select"
	TypeInt       FieldType = "Int"
	TypeFloat     FieldType = "Float"
	TypeCurrency  FieldType = "Currency"
	TypePercent   FieldType = "Percent"
	TypeDate      FieldType = "Date"
	TypeDatetime  FieldType = "Datetime"
	TypeTime      FieldType = "Time"
	TypeCheck     FieldType = "Check"
	TypeText      FieldType = "Text"
	TypeSmallText FieldType = "Small Text"
	TypeLongText  FieldType = "Long Text"
)

// defaultWidths maps field types to their default column width in pixels.
var defaultWidths = map[FieldType]int{
	TypeData:      140,
	TypeLink:      140,
	TypeSelect:    120,
	TypeInt:       100,
	TypeFloat:     120,
	TypeCurrency:  120,
	TypePercent:   100,
	TypeDate:      100,
	TypeDatetime:  140,
	TypeTime:      100,
	TypeCheck:     80,
	TypeText:      200,
	TypeSmallText: 200,
	TypeLongText:  300,
}

// FallbackWidth is used for field types without a specific default.
const FallbackWidth = 140

// DefaultWidth returns the default column width for the field type.
func DefaultWidth(t FieldType) int {
	if w, ok := defaultWidths[t]; ok {
		return w
	}
	return FallbackWidth
}

// Sortable reports whether columns of this type support server-side ordering.
// Free-text types are excluded; ordering on them is meaningless and expensive.
func Sortable(t FieldType) bool {
	switch t {
	case TypeText, TypeSmallText, TypeLongText:
		return false
	}
	return true
}

// Filterable reports whether columns of this type can appear in filter
// conditions.
func Filterable(t FieldType) bool {
	return t != TypeLongText
}

// FieldSchema describes one field of a record type as the list view sees it.
type FieldSchema struct {
	Fieldname   string    `json:"fieldname" msgpack:"fieldname"`
	Label       string    `json:"label" msgpack:"label"`
	Type        FieldType `json:"fieldtype" msgpack:"fieldtype"`
	Width       int       `json:"width" msgpack:"width"`
	ListVisible bool      `json:"in_list_view" msgpack:"in_list_view"`
	Sortable    bool      `json:"sortable" msgpack:"sortable"`
	Filterable  bool      `json:"filterable" msgpack:"filterable"`

	// Order positions the field among its siblings. Standard fields use
	// reserved high orders so they always sort after declared fields.
	Order int `json:"order" msgpack:"order"`
}

// Schema is the field catalog of one record type.
type Schema struct {
	RecordType string        `json:"record_type" msgpack:"record_type"`
	Fields     []FieldSchema `json:"fields" msgpack:"fields"`
}

// Field returns the schema for fieldname, or a FieldNotFoundError.
func (s Schema) Field(fieldname string) (FieldSchema, error) {
	for _, f := range s.Fields {
		if f.Fieldname == fieldname {
			return f, nil
		}
	}
	return FieldSchema{}, &FieldNotFoundError{RecordType: s.RecordType, Fieldname: fieldname}
}

// Has reports whether the schema declares fieldname.
func (s Schema) Has(fieldname string) bool {
	_, err := s.Field(fieldname)
	return err == nil
}

// FieldNotFoundError reports a fieldname absent from a record type's schema.
type FieldNotFoundError struct {
	RecordType string
	Fieldname  string
}

// Error implements the error interface.
func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found in schema for %s", e.Fieldname, e.RecordType)
}

// Orders reserved for the standard audit fields every record type carries.
// They sort after any declared field without colliding with each other.
const (
	orderName       = 0
	orderOwner      = 9997
	orderCreation   = 9998
	orderModified   = 9999
	orderModifiedBy = 10000
)

func standardFields() []FieldSchema {
	return []FieldSchema{
		{Fieldname: "name", Label: "ID", Type: TypeData, Width: DefaultWidth(TypeData), ListVisible: true, Sortable: true, Filterable: true, Order: orderName},
		{Fieldname: "owner", Label: "Created By", Type: TypeLink, Width: DefaultWidth(TypeLink), Sortable: true, Filterable: true, Order: orderOwner},
		{Fieldname: "creation", Label: "Created On", Type: TypeDatetime, Width: DefaultWidth(TypeDatetime), Sortable: true, Filterable: true, Order: orderCreation},
		{Fieldname: "modified", Label: "Last Modified", Type: TypeDatetime, Width: DefaultWidth(TypeDatetime), Sortable: true, Filterable: true, Order: orderModified},
		{Fieldname: "modified_by", Label: "Modified By", Type: TypeLink, Width: DefaultWidth(TypeLink), Sortable: true, Filterable: true, Order: orderModifiedBy},
	}
}

// withStandardFields appends the audit fields the backend adds to every
// record type. Fields the source already declares are left untouched, so the
// operation is idempotent.
func withStandardFields(s Schema) Schema {
	present := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		present[f.Fieldname] = struct{}{}
	}

	for _, std := range standardFields() {
		if _, ok := present[std.Fieldname]; !ok {
			s.Fields = append(s.Fields, std)
		}
	}
	return s
}
