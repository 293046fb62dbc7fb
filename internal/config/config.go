// Package config defines the canonical run configuration for the streaming
// concatenator. It is intentionally small and explicit: the CLI (or any other
// front end) populates a Config, validates it, and hands it to the planner
// and pipeline. The core never parses arguments itself.
package config

import "strings"

// Output formats.
const (
	FormatAuto    = "auto"
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Compression codecs for the output side.
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionSnappy = "snappy"
	CompressionZstd   = "zstd"
)

// Decode error policies (what to do when an input row or file fails to decode).
const (
	DecodeAbort    = "abort"
	DecodeSkipRow  = "skip-row"
	DecodeSkipFile = "skip-file"
)

// Config is the full, already-parsed run configuration.
type Config struct {
	// Inputs are positional paths, directories, or glob patterns.
	Inputs []string

	// Output is a literal path or a rolling template containing either a
	// "%d"-style verb or a "{}" placeholder for the file index.
	Output string

	// OutFormat selects the output codec; FormatAuto infers it from the
	// Output extension.
	OutFormat string

	// Compression and ZstdLevel configure output compression. For parquet the
	// codec applies per column chunk; for CSV the whole stream is wrapped.
	Compression string
	ZstdLevel   int

	// RollBytes / RollRows are rolling thresholds; zero disables that bound.
	RollBytes int64
	RollRows  int64

	// Columns selects and orders the unified output columns; Renames maps
	// native column names to output names (applied before unification).
	Columns []string
	Renames map[string]string

	// StatePath locates the checkpoint file; Resume requests resumption.
	StatePath string
	Resume    bool

	// Plan requests plan mode: resolve, probe, unify, print, exit.
	Plan bool

	// Concurrency is the reader-pool size. BatchRows bounds rows per batch
	// (a memory/throughput knob, not row semantics).
	Concurrency int
	BatchRows   int

	// CSV input tuning.
	InferRows int
	NAValues  []string
	Delimiter rune
	NoHeader  bool
	Encoding  string // "utf8" or "latin1"

	// StringifyConflicts downgrades otherwise-unwidenable type clashes to
	// string instead of failing the run.
	StringifyConflicts bool

	// DecodePolicy is one of the Decode* constants.
	DecodePolicy string

	// NoRecursive limits directory expansion to the top level.
	NoRecursive bool
}

// Default returns a Config carrying the documented defaults.
func Default() Config {
	return Config{
		OutFormat:    FormatAuto,
		Compression:  CompressionNone,
		ZstdLevel:    3,
		Concurrency:  4,
		BatchRows:    8192,
		InferRows:    1000,
		NAValues:     []string{"", "NA", "null", `\N`},
		Delimiter:    ',',
		Encoding:     "utf8",
		DecodePolicy: DecodeAbort,
	}
}

// ParseNAList splits a comma-separated NA spec into the value set, always
// including the empty string.
func ParseNAList(s string) []string {
	out := []string{""}
	for _, v := range strings.Split(s, ",") {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ParseRenames parses "old=new" pairs into a rename map. Malformed entries
// are reported by Validate, not here.
func ParseRenames(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if i := strings.IndexByte(p, '='); i > 0 {
			m[p[:i]] = p[i+1:]
		}
	}
	return m
}
