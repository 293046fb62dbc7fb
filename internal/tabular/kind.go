// Package tabular defines the common column model shared by every pipeline
// stage: column kinds, schemas, the widening rules used to unify divergent
// input schemas, and the per-input mappings that reshape native rows into the
// unified layout.
//
// Everything downstream of format decoding operates only on these types; no
// format-specific branching survives past the adapter boundary.
package tabular

import (
	"fmt"
	"strconv"
	"time"
)

// Kind is the logical type of a column value.
//
// Values carried through the pipeline are represented as:
//
//	Bool      -> bool
//	Int64     -> int64
//	Float64   -> float64
//	String    -> string
//	Timestamp -> time.Time (UTC)
//	Null      -> nil (a column observed with no non-null values yet)
type Kind int

const (
	Null Kind = iota
	Bool
	Int64
	Float64
	String
	Timestamp
)

// String returns the lowercase name used in plans, errors, and fingerprints.
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case String:
		return "string"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TimestampLayout is the canonical textual form for Timestamp values, used
// when a timestamp column is widened or written to CSV. Millisecond precision,
// always UTC, so identical inputs render identically across runs.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatValue renders a value of the given kind as deterministic text.
// nil renders as the empty string.
func FormatValue(v any, k Kind) string {
	if v == nil {
		return ""
	}
	switch k {
	case Bool:
		if v.(bool) {
			return "true"
		}
		return "false"
	case Int64:
		return strconv.FormatInt(v.(int64), 10)
	case Float64:
		return strconv.FormatFloat(v.(float64), 'g', -1, 64)
	case Timestamp:
		return v.(time.Time).UTC().Format(TimestampLayout)
	default:
		return fmt.Sprint(v)
	}
}
