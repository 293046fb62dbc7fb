package tabular

import (
	"fmt"
	"sort"
)

// UnifyOptions carries the user-facing schema overrides.
//
// Renames are applied to native column names before the union is computed, so
// widening always runs over post-rename names. Columns, when non-empty,
// selects the output columns and fixes their order; it never changes a
// column's widened kind.
type UnifyOptions struct {
	Renames   map[string]string
	Columns   []string
	Stringify bool
}

// Rename returns the output name for a native column name.
func (o UnifyOptions) Rename(name string) string {
	if o.Renames != nil {
		if to, ok := o.Renames[name]; ok && to != "" {
			return to
		}
	}
	return name
}

// Unify computes the single output schema for a set of input schemas.
//
// The unified column set is the union of all (renamed) input column names.
// Each column's kind is the widened combination of every contributing kind;
// a column absent from at least one input is nullable, as is any column that
// is nullable in any input. Column order is sorted by name unless
// opts.Columns pins an explicit selection and order.
func Unify(inputs []Schema, opts UnifyOptions) (Schema, error) {
	kinds := map[string]Kind{}
	nullable := map[string]bool{}
	seenIn := map[string]int{}
	var order []string

	for _, in := range inputs {
		for _, f := range in.Fields {
			name := opts.Rename(f.Name)
			k, ok := kinds[name]
			if !ok {
				kinds[name] = f.Kind
				order = append(order, name)
			} else {
				w, err := Widen(k, f.Kind, opts.Stringify)
				if err != nil {
					var ce *SchemaConflictError
					if e, okc := err.(*SchemaConflictError); okc {
						ce = e
						ce.Column = name
					}
					if ce != nil {
						return Schema{}, ce
					}
					return Schema{}, err
				}
				kinds[name] = w
			}
			if f.Nullable || f.Kind == Null {
				nullable[name] = true
			}
			seenIn[name]++
		}
	}

	// A column present in only a subset of inputs is filled with null for the
	// inputs that lack it, so it must be nullable in the unified schema.
	for name, n := range seenIn {
		if n < len(inputs) {
			nullable[name] = true
		}
	}

	var names []string
	if len(opts.Columns) > 0 {
		for _, name := range opts.Columns {
			if _, ok := kinds[name]; !ok {
				return Schema{}, fmt.Errorf("column %q selected by --columns does not exist in any input", name)
			}
			names = append(names, name)
		}
	} else {
		names = order
		sort.Strings(names)
	}

	out := Schema{Fields: make([]Field, 0, len(names))}
	for _, name := range names {
		k := kinds[name]
		if k == Null {
			// Column never observed with a value anywhere; carry it as a
			// nullable string so it round-trips.
			k = String
		}
		out.Fields = append(out.Fields, Field{
			Name:     name,
			Kind:     k,
			Nullable: nullable[name],
		})
	}
	return out, nil
}

// Mapping reshapes one input's native rows into the unified layout.
//
// For unified column i, SrcIndex[i] is the native column position (or -1 when
// the input lacks the column, in which case the value is null) and Cast[i]
// converts the native value to the unified kind. Mappings are computed once
// at plan time and read-only afterwards.
type Mapping struct {
	SrcIndex []int
	Cast     []CastFunc
}

// MapTo derives the mapping from a native schema to the unified schema.
func MapTo(native Schema, unified Schema, opts UnifyOptions) Mapping {
	m := Mapping{
		SrcIndex: make([]int, len(unified.Fields)),
		Cast:     make([]CastFunc, len(unified.Fields)),
	}
	for i, uf := range unified.Fields {
		m.SrcIndex[i] = -1
		m.Cast[i] = castIdentity
		for j, nf := range native.Fields {
			if opts.Rename(nf.Name) == uf.Name {
				m.SrcIndex[i] = j
				m.Cast[i] = CastTo(nf.Kind, uf.Kind)
				break
			}
		}
	}
	return m
}

// Apply converts a native row (values typed per the native schema) into a
// unified row. dst must have len(unified.Fields) slots.
func (m Mapping) Apply(src []any, dst []any) {
	for i, si := range m.SrcIndex {
		if si < 0 || si >= len(src) {
			dst[i] = nil
			continue
		}
		dst[i] = m.Cast[i](src[si])
	}
}
