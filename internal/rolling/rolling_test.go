package rolling

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sempervent/streaming-parquet/internal/batch"
	"github.com/sempervent/streaming-parquet/internal/config"
	"github.com/sempervent/streaming-parquet/internal/format"
	"github.com/sempervent/streaming-parquet/internal/tabular"
)

func TestParseTemplate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path    string
		rolling bool
		want0   string
		want12  string
	}{
		{"out.csv", false, "out.csv", "out.csv"},
		{"out-{}.csv", true, "out-0000.csv", "out-0012.csv"},
		{"out-%d.csv", true, "out-0.csv", "out-12.csv"},
		{"out-%03d.csv", true, "out-000.csv", "out-012.csv"},
	}
	for _, tc := range cases {
		tpl := ParseTemplate(tc.path)
		if tpl.Rolling() != tc.rolling {
			t.Fatalf("ParseTemplate(%q).Rolling() = %v; want %v", tc.path, tpl.Rolling(), tc.rolling)
		}
		if got := tpl.Format(0); got != tc.want0 {
			t.Fatalf("Format(0) of %q = %q; want %q", tc.path, got, tc.want0)
		}
		if got := tpl.Format(12); got != tc.want12 {
			t.Fatalf("Format(12) of %q = %q; want %q", tc.path, got, tc.want12)
		}
	}
}

func oneRowBatch(v int64) *batch.Batch {
	b := batch.Get(1)
	b.AppendRow([]any{v}, 8)
	return b
}

func TestRollerRollsByRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	schema := tabular.Schema{Fields: []tabular.Field{{Name: "id", Kind: tabular.Int64}}}

	var rolled []State
	r, err := NewRoller(Options{
		Template:    ParseTemplate(filepath.Join(dir, "out-{}.csv")),
		Format:      format.CSV,
		Compression: config.CompressionNone,
		RollRows:    2,
		Schema:      schema,
		OnRoll:      func(st State) { rolled = append(rolled, st) },
	}, 0)
	if err != nil {
		t.Fatalf("NewRoller: %v", err)
	}

	for i := int64(1); i <= 4; i++ {
		if err := r.WriteBatch(oneRowBatch(i)); err != nil {
			t.Fatalf("WriteBatch(%d): %v", i, err)
		}
	}
	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if len(rolled) != 2 {
		t.Fatalf("rolled %d files; want 2", len(rolled))
	}
	for i, st := range rolled {
		if st.Rows != 2 {
			t.Fatalf("file %d rows = %d; want 2", i, st.Rows)
		}
	}

	first, err := os.ReadFile(filepath.Join(dir, "out-0000.csv"))
	if err != nil {
		t.Fatalf("read first file: %v", err)
	}
	if got := string(first); got != "id\n1\n2\n" {
		t.Fatalf("first file = %q; want header plus rows 1,2", got)
	}
	second, err := os.ReadFile(filepath.Join(dir, "out-0001.csv"))
	if err != nil {
		t.Fatalf("read second file: %v", err)
	}
	if !strings.HasPrefix(string(second), "id\n") {
		t.Fatalf("second file = %q; every rolled file carries the header", second)
	}
}

func TestRollerNeverSplitsABatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	schema := tabular.Schema{Fields: []tabular.Field{{Name: "id", Kind: tabular.Int64}}}

	r, err := NewRoller(Options{
		Template: ParseTemplate(filepath.Join(dir, "out-{}.csv")),
		Format:   format.CSV,
		RollRows: 2,
		Schema:   schema,
	}, 0)
	if err != nil {
		t.Fatalf("NewRoller: %v", err)
	}

	// A 3-row batch exceeds the threshold but must land in one file.
	b := batch.Get(3)
	for i := int64(1); i <= 3; i++ {
		b.AppendRow([]any{i}, 8)
	}
	if err := r.WriteBatch(b); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out-0000.csv"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(data); got != "id\n1\n2\n3\n" {
		t.Fatalf("file = %q; the oversized batch must stay whole", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "out-0001.csv")); !os.IsNotExist(err) {
		t.Fatalf("unexpected second file: stat err = %v", err)
	}
}

func TestRollerResumeAppend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	schema := tabular.Schema{Fields: []tabular.Field{{Name: "id", Kind: tabular.Int64}}}

	// First run writes two rows and leaves the file open-ended.
	r, err := NewRoller(Options{
		Template: ParseTemplate(path),
		Format:   format.CSV,
		Schema:   schema,
	}, 0)
	if err != nil {
		t.Fatalf("NewRoller: %v", err)
	}
	if err := r.WriteBatch(oneRowBatch(1)); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := r.WriteBatch(oneRowBatch(2)); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	st := r.State()
	if st.Finalized || st.Rows != 2 || st.Bytes == 0 {
		t.Fatalf("state = %+v; want open file with 2 durable rows", st)
	}
	// Simulate rows written after the flush that the crash loses.
	if err := r.WriteBatch(oneRowBatch(99)); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// Second run truncates back to the watermark and appends.
	r2, err := NewRoller(Options{
		Template: ParseTemplate(path),
		Format:   format.CSV,
		Schema:   schema,
	}, st.Index)
	if err != nil {
		t.Fatalf("NewRoller: %v", err)
	}
	if err := r2.ResumeAppend(st); err != nil {
		t.Fatalf("ResumeAppend: %v", err)
	}
	if err := r2.WriteBatch(oneRowBatch(3)); err != nil {
		t.Fatalf("WriteBatch after resume: %v", err)
	}
	if err := r2.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(data); got != "id\n1\n2\n3\n" {
		t.Fatalf("file = %q; want truncation to the watermark then the new row", got)
	}
}

func TestRollerRejectsAppendOnCompressed(t *testing.T) {
	t.Parallel()

	r, err := NewRoller(Options{
		Template:    ParseTemplate("out.csv.gz"),
		Format:      format.CSV,
		Compression: config.CompressionGzip,
		ZstdLevel:   3,
	}, 0)
	if err != nil {
		t.Fatalf("NewRoller: %v", err)
	}
	if err := r.ResumeAppend(State{}); err == nil {
		t.Fatal("ResumeAppend on gzip output must fail")
	}
}
