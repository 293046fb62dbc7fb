package tabular

import "strings"

// Field describes one column of a schema.
type Field struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"-"`
	Nullable bool   `json:"nullable"`

	// KindName mirrors Kind for JSON plan output.
	KindName string `json:"kind"`
}

// Schema is an ordered list of columns.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldIndex returns the position of the named column, or -1.
func (s Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// String renders the schema as "name:kind[?]" pairs, e.g. "id:int64, x:float64?".
// The trailing '?' marks nullable columns.
func (s Schema) String() string {
	var b strings.Builder
	for i, f := range s.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteByte(':')
		b.WriteString(f.Kind.String())
		if f.Nullable {
			b.WriteByte('?')
		}
	}
	return b.String()
}

// NormalizeKindNames fills KindName from Kind on every field so the schema
// marshals readably. Called by plan rendering.
func (s *Schema) NormalizeKindNames() {
	for i := range s.Fields {
		s.Fields[i].KindName = s.Fields[i].Kind.String()
	}
}
