// This file adds a lightweight linter/validator for Config values. It performs
// static checks over an assembled Config and returns a list of issues (errors
// and warnings) that callers can surface in a CLI or tests before any I/O
// happens.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding worth surfacing that does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "output", "roll.rows").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error where needed.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasError reports whether any issue in the list is an error.
func HasError(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation of a Config. It does not touch the
// filesystem; path existence is the planner's concern.
func Validate(c Config) []Issue {
	var issues []Issue

	if len(c.Inputs) == 0 {
		issues = append(issues, Issue{SeverityError, "inputs", "at least one input path, directory, or glob is required"})
	}
	if strings.TrimSpace(c.Output) == "" && !c.Plan {
		issues = append(issues, Issue{SeverityError, "output", "output path is required (use --plan to inspect without writing)"})
	}

	switch c.OutFormat {
	case FormatAuto, FormatCSV, FormatParquet:
	default:
		issues = append(issues, Issue{SeverityError, "out-format",
			fmt.Sprintf("unknown output format %q (want csv or parquet)", c.OutFormat)})
	}

	switch c.Compression {
	case CompressionNone, CompressionGzip, CompressionSnappy, CompressionZstd:
	default:
		issues = append(issues, Issue{SeverityError, "compression",
			fmt.Sprintf("unknown compression %q (want none, gzip, snappy, or zstd)", c.Compression)})
	}
	if c.Compression == CompressionSnappy && c.OutFormat == FormatCSV {
		issues = append(issues, Issue{SeverityError, "compression",
			"snappy is a parquet-only codec; use gzip or zstd for CSV output"})
	}
	if c.ZstdLevel < 1 || c.ZstdLevel > 19 {
		issues = append(issues, Issue{SeverityError, "zstd-level",
			fmt.Sprintf("zstd level %d out of range 1..19", c.ZstdLevel)})
	}

	if c.RollBytes < 0 {
		issues = append(issues, Issue{SeverityError, "roll.bytes", "roll-by-bytes must be positive"})
	}
	if c.RollRows < 0 {
		issues = append(issues, Issue{SeverityError, "roll.rows", "roll-by-rows must be positive"})
	}
	if (c.RollBytes > 0 || c.RollRows > 0) && c.Output != "" && !hasIndexPlaceholder(c.Output) {
		issues = append(issues, Issue{SeverityError, "output",
			"rolling output requires an index placeholder in the output path (e.g. out-{}.csv or out-%03d.csv)"})
	}

	if c.Resume && strings.TrimSpace(c.StatePath) == "" {
		issues = append(issues, Issue{SeverityError, "state", "--resume requires --state"})
	}

	switch c.DecodePolicy {
	case DecodeAbort, DecodeSkipRow, DecodeSkipFile:
	default:
		issues = append(issues, Issue{SeverityError, "on-decode-error",
			fmt.Sprintf("unknown decode policy %q (want abort, skip-row, or skip-file)", c.DecodePolicy)})
	}

	switch c.Encoding {
	case "", "utf8", "utf-8", "latin1", "iso-8859-1":
	default:
		issues = append(issues, Issue{SeverityError, "encoding",
			fmt.Sprintf("unsupported encoding %q (want utf8 or latin1)", c.Encoding)})
	}

	if c.Concurrency < 1 {
		issues = append(issues, Issue{SeverityError, "concurrency", "concurrency must be at least 1"})
	}
	if c.BatchRows < 1 {
		issues = append(issues, Issue{SeverityError, "batch-rows", "batch size must be at least 1 row"})
	}
	if c.InferRows < 1 {
		issues = append(issues, Issue{SeverityWarning, "infer-rows",
			"schema inference sample is empty; all CSV columns will be typed as text"})
	}

	for old, to := range c.Renames {
		if old == "" || to == "" {
			issues = append(issues, Issue{SeverityError, "rename",
				"rename entries must have the form old=new with both sides non-empty"})
		}
	}

	return issues
}

// hasIndexPlaceholder reports whether the output path contains a rolling index
// placeholder: either a printf integer verb ("%d", "%03d") or "{}".
func hasIndexPlaceholder(path string) bool {
	if strings.Contains(path, "{}") {
		return true
	}
	for i := 0; i < len(path)-1; i++ {
		if path[i] != '%' {
			continue
		}
		j := i + 1
		for j < len(path) && path[j] >= '0' && path[j] <= '9' {
			j++
		}
		if j < len(path) && path[j] == 'd' {
			return true
		}
	}
	return false
}
