// Package csvio implements the CSV side of the format adapter boundary:
// schema probing by sampling, streaming decode into unified batches, and
// deterministic encode with per-batch flush.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sempervent/streaming-parquet/internal/tabular"
)

// Options tunes CSV decoding. The zero value is not useful; build it from the
// run config.
type Options struct {
	Delimiter rune
	NoHeader  bool
	Encoding  string
	NAValues  []string
}

func (o Options) naSet() map[string]struct{} {
	set := make(map[string]struct{}, len(o.NAValues))
	for _, v := range o.NAValues {
		set[v] = struct{}{}
	}
	return set
}

// ProbeSchema samples up to inferRows data rows and infers the native schema:
// column names from the header (or synthetic col_N names) and per-column
// kinds using the narrowest kind every non-NA value satisfies.
func ProbeSchema(path string, inferRows int, opt Options) (tabular.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return tabular.Schema{}, err
	}
	defer f.Close()

	in, dec, err := decompressStream(f, path)
	if err != nil {
		return tabular.Schema{}, fmt.Errorf("open %s: %w", path, err)
	}
	if dec != nil {
		defer dec.Close()
	}

	r, err := newCSVReader(in, opt)
	if err != nil {
		return tabular.Schema{}, err
	}

	headers, err := readHeader(r, opt)
	if err != nil {
		return tabular.Schema{}, fmt.Errorf("read header of %s: %w", path, err)
	}

	na := opt.naSet()
	cols := make([][]string, len(headers.names))
	sawNA := make([]bool, len(headers.names))

	var rows [][]string
	if opt.NoHeader {
		rows = append(rows, headers.raw)
	}
	badRows := 0
	for len(rows) < inferRows && badRows <= inferRows {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Sampling is best-effort; a bad row in the sample is skipped here
			// and surfaced by the full read under the decode policy.
			badRows++
			continue
		}
		row := make([]string, len(rec))
		copy(row, rec)
		rows = append(rows, row)
	}
	for _, row := range rows {
		for i := 0; i < len(cols) && i < len(row); i++ {
			v := strings.TrimSpace(row[i])
			if _, isNA := na[v]; isNA {
				sawNA[i] = true
				continue
			}
			cols[i] = append(cols[i], v)
		}
		for i := len(row); i < len(cols); i++ {
			sawNA[i] = true
		}
	}

	s := tabular.Schema{Fields: make([]tabular.Field, len(headers.names))}
	for i, name := range headers.names {
		s.Fields[i] = tabular.Field{
			Name:     name,
			Kind:     inferKind(cols[i]),
			Nullable: sawNA[i] || len(cols[i]) == 0,
		}
	}
	return s, nil
}

// inferKind guesses the narrowest kind all sampled values satisfy.
// Heuristic order mirrors the probe tooling: integer before boolean so that
// 0/1 columns stay numeric, then float, then RFC3339 timestamps, else string.
func inferKind(values []string) tabular.Kind {
	if len(values) == 0 {
		return tabular.Null
	}
	if allMatch(values, isInt) {
		return tabular.Int64
	}
	if allMatch(values, isBool) {
		return tabular.Bool
	}
	if allMatch(values, isFloat) {
		return tabular.Float64
	}
	if allMatch(values, isTimestamp) {
		return tabular.Timestamp
	}
	return tabular.String
}

func allMatch(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

var truthy = map[string]bool{"true": true, "t": true, "yes": true, "y": true}
var falsy = map[string]bool{"false": true, "f": true, "no": true, "n": true}

// isBool accepts only true/false during inference. Columns of single-letter
// strings like y/n must stay strings or their values would be rewritten.
func isBool(s string) bool {
	ls := strings.ToLower(s)
	return ls == "true" || ls == "false"
}

// isTimestamp accepts RFC3339 only. Ambiguous date-like strings (12/11/2024)
// stay strings so values round-trip without reinterpretation.
func isTimestamp(s string) bool {
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

// parseValue converts a raw CSV cell into its native-kind value. A cell that
// fails its native parse becomes nil rather than failing the row; the schema
// was inferred from a sample and later rows may stray.
func parseValue(s string, k tabular.Kind) any {
	switch k {
	case tabular.Int64:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
	case tabular.Float64:
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	case tabular.Bool:
		ls := strings.ToLower(s)
		if truthy[ls] || ls == "1" {
			return true
		}
		if falsy[ls] || ls == "0" {
			return false
		}
	case tabular.Timestamp:
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	default:
		return s
	}
	return nil
}

// header carries both the raw first record and the derived column names.
type header struct {
	raw   []string
	names []string
}

// readHeader reads (or synthesizes) column names. With NoHeader set, the
// first record is data and names become col_1..col_N.
func readHeader(r *csv.Reader, opt Options) (header, error) {
	rec, err := r.Read()
	if err != nil {
		return header{}, err
	}
	raw := make([]string, len(rec))
	copy(raw, rec)

	names := make([]string, len(raw))
	if opt.NoHeader {
		for i := range names {
			names[i] = fmt.Sprintf("col_%d", i+1)
		}
		return header{raw: raw, names: names}, nil
	}
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		names[i] = h
	}
	return header{raw: raw, names: names}, nil
}
