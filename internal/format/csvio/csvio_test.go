package csvio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/sempervent/streaming-parquet/internal/batch"
	"github.com/sempervent/streaming-parquet/internal/format"
	"github.com/sempervent/streaming-parquet/internal/tabular"
)

func defaultOptions() Options {
	return Options{
		Delimiter: ',',
		Encoding:  "utf8",
		NAValues:  []string{"", "NA", "null", `\N`},
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestProbeSchema(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.csv",
		"id,score,active,note\n"+
			"1,3.5,true,hello\n"+
			"2,NA,false,world\n"+
			"3,1.25,true,NA\n")

	s, err := ProbeSchema(path, 100, defaultOptions())
	if err != nil {
		t.Fatalf("ProbeSchema: %v", err)
	}

	want := []tabular.Field{
		{Name: "id", Kind: tabular.Int64},
		{Name: "score", Kind: tabular.Float64, Nullable: true},
		{Name: "active", Kind: tabular.Bool},
		{Name: "note", Kind: tabular.String, Nullable: true},
	}
	if len(s.Fields) != len(want) {
		t.Fatalf("schema = %v; want %d fields", s, len(want))
	}
	for i, wf := range want {
		gf := s.Fields[i]
		if gf.Name != wf.Name || gf.Kind != wf.Kind || gf.Nullable != wf.Nullable {
			t.Fatalf("field[%d] = %+v; want %+v", i, gf, wf)
		}
	}
}

func TestProbeSchemaKeepsShortStringsAsStrings(t *testing.T) {
	t.Parallel()

	// Single-letter y/n values must not be inferred as booleans; rewriting
	// them to true/false would corrupt the data.
	path := writeFile(t, "in.csv",
		"id,flag,ok\n"+
			"1,y,true\n"+
			"2,n,false\n"+
			"3,y,true\n")

	s, err := ProbeSchema(path, 100, defaultOptions())
	if err != nil {
		t.Fatalf("ProbeSchema: %v", err)
	}
	if s.Fields[1].Kind != tabular.String {
		t.Fatalf("flag kind = %v; want string", s.Fields[1].Kind)
	}
	if s.Fields[2].Kind != tabular.Bool {
		t.Fatalf("ok kind = %v; want bool", s.Fields[2].Kind)
	}
}

func TestProbeSchemaNoHeader(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.csv", "1,a\n2,b\n")
	opt := defaultOptions()
	opt.NoHeader = true

	s, err := ProbeSchema(path, 100, opt)
	if err != nil {
		t.Fatalf("ProbeSchema: %v", err)
	}
	if s.Fields[0].Name != "col_1" || s.Fields[1].Name != "col_2" {
		t.Fatalf("synthetic names = %v; want col_1, col_2", s)
	}
	if s.Fields[0].Kind != tabular.Int64 {
		t.Fatalf("col_1 kind = %v; first data row must be part of the sample", s.Fields[0].Kind)
	}
}

func TestProbeSchemaBOM(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.csv", utf8BOM+"id,v\n1,2\n")
	s, err := ProbeSchema(path, 10, defaultOptions())
	if err != nil {
		t.Fatalf("ProbeSchema: %v", err)
	}
	if s.Fields[0].Name != "id" {
		t.Fatalf("first column = %q; BOM should be stripped", s.Fields[0].Name)
	}
}

// readAll drains a reader into a flat row slice.
func readAll(t *testing.T, r *Reader) [][]any {
	t.Helper()
	var rows [][]any
	for {
		b, err := r.ReadBatch(context.Background())
		if err == io.EOF {
			return rows
		}
		if err != nil {
			t.Fatalf("ReadBatch: %v", err)
		}
		for _, row := range b.Rows {
			c := make([]any, len(row))
			copy(c, row)
			rows = append(rows, c)
		}
		b.Free()
	}
}

func TestReaderMapsToUnifiedSchema(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.csv", "id,v\n1,2\n3,NA\n")
	opt := defaultOptions()

	native, err := ProbeSchema(path, 10, opt)
	if err != nil {
		t.Fatalf("ProbeSchema: %v", err)
	}
	unified := tabular.Schema{Fields: []tabular.Field{
		{Name: "id", Kind: tabular.Int64},
		{Name: "other", Kind: tabular.String, Nullable: true},
		{Name: "v", Kind: tabular.Float64, Nullable: true},
	}}
	m := tabular.MapTo(native, unified, tabular.UnifyOptions{})

	r, err := NewReader(path, 0, native, m, len(unified.Fields), 8, 0, opt, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	rows := readAll(t, r)
	if len(rows) != 2 {
		t.Fatalf("rows = %d; want 2", len(rows))
	}
	if rows[0][0] != int64(1) || rows[0][1] != nil || rows[0][2] != float64(2) {
		t.Fatalf("row[0] = %v; want [1 <nil> 2]", rows[0])
	}
	if rows[1][2] != nil {
		t.Fatalf("row[1].v = %v; NA must decode as null", rows[1][2])
	}
}

func TestReaderSkipRowsForResume(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.csv", "id\n1\n2\n3\n4\n")
	opt := defaultOptions()
	native, err := ProbeSchema(path, 10, opt)
	if err != nil {
		t.Fatalf("ProbeSchema: %v", err)
	}
	m := tabular.MapTo(native, native, tabular.UnifyOptions{})

	r, err := NewReader(path, 0, native, m, 1, 8, 2, opt, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	rows := readAll(t, r)
	if len(rows) != 2 {
		t.Fatalf("rows = %d; want 2 after skipping 2", len(rows))
	}
	if rows[0][0] != int64(3) {
		t.Fatalf("first row after skip = %v; want 3", rows[0][0])
	}
}

func TestReaderDecodePolicy(t *testing.T) {
	t.Parallel()

	// Quote damage makes the third record unreadable.
	content := "id,v\n1,a\n2,\"broken\n3,c\n"

	t.Run("abort", func(t *testing.T) {
		t.Parallel()
		path := writeFile(t, "in.csv", content)
		opt := defaultOptions()
		native := tabular.Schema{Fields: []tabular.Field{
			{Name: "id", Kind: tabular.Int64},
			{Name: "v", Kind: tabular.String},
		}}
		m := tabular.MapTo(native, native, tabular.UnifyOptions{})

		r, err := NewReader(path, 0, native, m, 2, 8, 0, opt, nil)
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		defer r.Close()

		_, err = r.ReadBatch(context.Background())
		if err == nil {
			// The bad record may land in a later batch.
			_, err = r.ReadBatch(context.Background())
		}
		var de *format.DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("err = %v; want *format.DecodeError", err)
		}
	})

	t.Run("skip-row callback", func(t *testing.T) {
		t.Parallel()
		path := writeFile(t, "in.csv", content)
		opt := defaultOptions()
		native := tabular.Schema{Fields: []tabular.Field{
			{Name: "id", Kind: tabular.Int64},
			{Name: "v", Kind: tabular.String},
		}}
		m := tabular.MapTo(native, native, tabular.UnifyOptions{})

		var skipped int
		onErr := func(offset int64, err error) error {
			skipped++
			return nil
		}
		r, err := NewReader(path, 0, native, m, 2, 8, 0, opt, onErr)
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		defer r.Close()

		rows := readAll(t, r)
		if skipped == 0 {
			t.Fatal("error callback never invoked")
		}
		if len(rows) == 0 || rows[0][0] != int64(1) {
			t.Fatalf("rows = %v; good rows must survive", rows)
		}
	})
}

func gzipCompressor() func(io.Writer) (io.WriteCloser, error) {
	return func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriter(w), nil
	}
}

func TestWriterDeterministicOutput(t *testing.T) {
	t.Parallel()

	schema := tabular.Schema{Fields: []tabular.Field{
		{Name: "id", Kind: tabular.Int64},
		{Name: "score", Kind: tabular.Float64, Nullable: true},
	}}

	var buf bytes.Buffer
	w, err := NewWriter("out.csv", &buf, schema, nil, nil, false)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	b := batch.Get(2)
	b.AppendRow([]any{int64(1), 3.5}, 0)
	b.AppendRow([]any{int64(2), nil}, 0)
	if err := w.WriteBatch(b); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := "id,score\n1,3.5\n2,\n"
	if got := buf.String(); got != want {
		t.Fatalf("output = %q; want %q", got, want)
	}
	if w.BytesWritten() != int64(len(want)) {
		t.Fatalf("BytesWritten = %d; want %d", w.BytesWritten(), len(want))
	}
}

func TestWriterSuppressesHeaderOnResume(t *testing.T) {
	t.Parallel()

	schema := tabular.Schema{Fields: []tabular.Field{{Name: "id", Kind: tabular.Int64}}}
	var buf bytes.Buffer
	w, err := NewWriter("out.csv", &buf, schema, nil, nil, true)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	b := batch.Get(1)
	b.AppendRow([]any{int64(9)}, 0)
	if err := w.WriteBatch(b); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := buf.String(); got != "9\n" {
		t.Fatalf("output = %q; header must be suppressed when resuming", got)
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	t.Parallel()

	// Write gzip-compressed CSV through the writer, then read it back through
	// the reader's transparent decompression.
	schema := tabular.Schema{Fields: []tabular.Field{{Name: "id", Kind: tabular.Int64}}}

	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w, err := NewWriter(path, f, schema, gzipCompressor(), f.Sync, false)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	b := batch.Get(2)
	b.AppendRow([]any{int64(1)}, 0)
	b.AppendRow([]any{int64(2)}, 0)
	if err := w.WriteBatch(b); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	opt := defaultOptions()
	native, err := ProbeSchema(path, 10, opt)
	if err != nil {
		t.Fatalf("ProbeSchema over gzip: %v", err)
	}
	m := tabular.MapTo(native, native, tabular.UnifyOptions{})
	r, err := NewReader(path, 0, native, m, 1, 8, 0, opt, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	rows := readAll(t, r)
	if len(rows) != 2 || rows[0][0] != int64(1) || rows[1][0] != int64(2) {
		t.Fatalf("rows = %v; want [[1] [2]]", rows)
	}
}
