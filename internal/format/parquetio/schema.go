// Package parquetio implements the parquet side of the format adapter
// boundary on top of segmentio/parquet-go: schema translation in both
// directions, streaming row-group decode, and row-group-buffered encode.
package parquetio

import (
	"fmt"

	"github.com/segmentio/parquet-go"

	"github.com/sempervent/streaming-parquet/internal/tabular"
)

// toParquetSchema translates a unified schema into a flat parquet group.
// parquet-go orders group fields alphabetically; rows are deconstructed by
// name so the column order difference is invisible to readers.
func toParquetSchema(name string, s tabular.Schema) *parquet.Schema {
	group := parquet.Group{}
	for _, f := range s.Fields {
		var node parquet.Node
		switch f.Kind {
		case tabular.Bool:
			node = parquet.Leaf(parquet.BooleanType)
		case tabular.Int64:
			node = parquet.Int(64)
		case tabular.Float64:
			node = parquet.Leaf(parquet.DoubleType)
		case tabular.Timestamp:
			node = parquet.Timestamp(parquet.Microsecond)
		default:
			// Null-kind columns carry no values and are emitted as optional
			// strings so the file stays self-describing.
			node = parquet.String()
		}
		if f.Nullable || f.Kind == tabular.Null {
			node = parquet.Optional(node)
		}
		group[f.Name] = node
	}
	return parquet.NewSchema(name, group)
}

// fromParquetSchema translates a parquet file schema into the native tabular
// form. Only flat schemas are supported; nested groups are rejected since the
// row model has no place for them.
func fromParquetSchema(s *parquet.Schema) (tabular.Schema, error) {
	fields := s.Fields()
	out := tabular.Schema{Fields: make([]tabular.Field, len(fields))}
	for i, f := range fields {
		if !f.Leaf() {
			return tabular.Schema{}, fmt.Errorf("column %q: nested parquet groups are not supported", f.Name())
		}
		kind, err := leafKind(f)
		if err != nil {
			return tabular.Schema{}, fmt.Errorf("column %q: %w", f.Name(), err)
		}
		out.Fields[i] = tabular.Field{
			Name:     f.Name(),
			Kind:     kind,
			Nullable: f.Optional(),
		}
	}
	return out, nil
}

func leafKind(f parquet.Field) (tabular.Kind, error) {
	t := f.Type()
	if lt := t.LogicalType(); lt != nil {
		switch {
		case lt.UTF8 != nil:
			return tabular.String, nil
		case lt.Timestamp != nil:
			return tabular.Timestamp, nil
		case lt.Date != nil:
			return tabular.String, nil
		}
	}
	switch t.Kind() {
	case parquet.Boolean:
		return tabular.Bool, nil
	case parquet.Int32, parquet.Int64:
		return tabular.Int64, nil
	case parquet.Float, parquet.Double:
		return tabular.Float64, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return tabular.String, nil
	}
	return tabular.Null, fmt.Errorf("unsupported physical type %s", t)
}
