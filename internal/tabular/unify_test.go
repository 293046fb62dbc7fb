package tabular

import (
	"errors"
	"testing"
	"time"
)

func TestWiden(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		a, b    Kind
		want    Kind
		wantErr bool
	}{
		{name: "equal kinds", a: Int64, b: Int64, want: Int64},
		{name: "null absorbs left", a: Null, b: Float64, want: Float64},
		{name: "null absorbs right", a: String, b: Null, want: String},
		{name: "bool widens to int", a: Bool, b: Int64, want: Int64},
		{name: "bool widens to float", a: Float64, b: Bool, want: Float64},
		{name: "int widens to float", a: Int64, b: Float64, want: Float64},
		{name: "string tops everything", a: String, b: Timestamp, want: String},
		{name: "timestamp vs int conflicts", a: Timestamp, b: Int64, wantErr: true},
		{name: "timestamp vs bool conflicts", a: Bool, b: Timestamp, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Widen(tc.a, tc.b, false)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Widen(%v, %v) = %v; want conflict", tc.a, tc.b, got)
				}
				var ce *SchemaConflictError
				if !errors.As(err, &ce) {
					t.Fatalf("Widen(%v, %v) error = %T; want *SchemaConflictError", tc.a, tc.b, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Widen(%v, %v): %v", tc.a, tc.b, err)
			}
			if got != tc.want {
				t.Fatalf("Widen(%v, %v) = %v; want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestWidenStringifyConflicts(t *testing.T) {
	t.Parallel()

	got, err := Widen(Timestamp, Int64, true)
	if err != nil {
		t.Fatalf("Widen with stringify: %v", err)
	}
	if got != String {
		t.Fatalf("Widen(Timestamp, Int64, stringify) = %v; want String", got)
	}
}

func TestUnifyUnionAndOrder(t *testing.T) {
	t.Parallel()

	a := Schema{Fields: []Field{
		{Name: "id", Kind: Int64},
		{Name: "name", Kind: String},
	}}
	b := Schema{Fields: []Field{
		{Name: "id", Kind: Float64},
		{Name: "active", Kind: Bool},
	}}

	got, err := Unify([]Schema{a, b}, UnifyOptions{})
	if err != nil {
		t.Fatalf("Unify: %v", err)
	}

	// Union of columns, sorted by name; kinds widened; columns missing from
	// one input become nullable.
	want := []Field{
		{Name: "active", Kind: Bool, Nullable: true},
		{Name: "id", Kind: Float64},
		{Name: "name", Kind: String, Nullable: true},
	}
	if len(got.Fields) != len(want) {
		t.Fatalf("unified fields = %v; want %d fields", got, len(want))
	}
	for i, wf := range want {
		gf := got.Fields[i]
		if gf.Name != wf.Name || gf.Kind != wf.Kind || gf.Nullable != wf.Nullable {
			t.Fatalf("field[%d] = %+v; want %+v", i, gf, wf)
		}
	}
}

func TestUnifyOverridePrecedence(t *testing.T) {
	t.Parallel()

	// Renames apply before widening: both inputs contribute to "ts" after the
	// rename, and the columns filter then selects against renamed names.
	a := Schema{Fields: []Field{
		{Name: "timestamp", Kind: Int64},
		{Name: "v", Kind: Float64},
	}}
	b := Schema{Fields: []Field{
		{Name: "ts", Kind: Int64},
		{Name: "v", Kind: Int64},
	}}

	got, err := Unify([]Schema{a, b}, UnifyOptions{
		Renames: map[string]string{"timestamp": "ts"},
		Columns: []string{"v", "ts"},
	})
	if err != nil {
		t.Fatalf("Unify: %v", err)
	}
	if len(got.Fields) != 2 {
		t.Fatalf("unified = %v; want 2 fields", got)
	}
	if got.Fields[0].Name != "v" || got.Fields[1].Name != "ts" {
		t.Fatalf("column order = %v; want [v ts]", got)
	}
	if got.Fields[0].Kind != Float64 {
		t.Fatalf("v kind = %v; want Float64", got.Fields[0].Kind)
	}
	// ts is present in both inputs after renaming, so it is not nullable.
	if got.Fields[1].Nullable {
		t.Fatalf("ts should not be nullable after rename merges both inputs")
	}
}

func TestUnifyUnknownColumnSelection(t *testing.T) {
	t.Parallel()

	a := Schema{Fields: []Field{{Name: "id", Kind: Int64}}}
	_, err := Unify([]Schema{a}, UnifyOptions{Columns: []string{"missing"}})
	if err == nil {
		t.Fatal("Unify with unknown --columns name should fail")
	}
}

func TestUnifyConflictNamesColumn(t *testing.T) {
	t.Parallel()

	a := Schema{Fields: []Field{{Name: "when", Kind: Timestamp}}}
	b := Schema{Fields: []Field{{Name: "when", Kind: Int64}}}

	_, err := Unify([]Schema{a, b}, UnifyOptions{})
	var ce *SchemaConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Unify error = %v; want *SchemaConflictError", err)
	}
	if ce.Column != "when" {
		t.Fatalf("conflict column = %q; want %q", ce.Column, "when")
	}
}

func TestUnifyAllNullColumn(t *testing.T) {
	t.Parallel()

	a := Schema{Fields: []Field{{Name: "empty", Kind: Null}}}
	got, err := Unify([]Schema{a}, UnifyOptions{})
	if err != nil {
		t.Fatalf("Unify: %v", err)
	}
	f := got.Fields[0]
	if f.Kind != String || !f.Nullable {
		t.Fatalf("all-null column = %+v; want nullable string", f)
	}
}

func TestMappingApply(t *testing.T) {
	t.Parallel()

	native := Schema{Fields: []Field{
		{Name: "flag", Kind: Bool},
		{Name: "n", Kind: Int64},
	}}
	unified := Schema{Fields: []Field{
		{Name: "extra", Kind: String, Nullable: true},
		{Name: "flag", Kind: String},
		{Name: "n", Kind: Float64},
	}}

	m := MapTo(native, unified, UnifyOptions{})
	dst := make([]any, 3)
	m.Apply([]any{true, int64(7)}, dst)

	if dst[0] != nil {
		t.Fatalf("missing column = %v; want nil", dst[0])
	}
	if dst[1] != "true" {
		t.Fatalf("bool->string = %v; want %q", dst[1], "true")
	}
	if dst[2] != float64(7) {
		t.Fatalf("int->float = %v; want 7.0", dst[2])
	}
}

func TestFormatValueDeterministic(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 6, 1, 12, 30, 45, 123_000_000, time.UTC)
	cases := []struct {
		v    any
		k    Kind
		want string
	}{
		{nil, String, ""},
		{int64(42), Int64, "42"},
		{3.5, Float64, "3.5"},
		{true, Bool, "true"},
		{ts, Timestamp, "2024-06-01T12:30:45.123Z"},
	}
	for _, tc := range cases {
		if got := FormatValue(tc.v, tc.k); got != tc.want {
			t.Fatalf("FormatValue(%v, %v) = %q; want %q", tc.v, tc.k, got, tc.want)
		}
	}
}
