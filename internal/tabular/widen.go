package tabular

import "fmt"

// SchemaConflictError reports two column types that cannot be widened into a
// common kind. It is fatal for the run: silently coercing would corrupt data.
type SchemaConflictError struct {
	Column string
	Left   Kind
	Right  Kind
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("schema conflict on column %q: cannot unify %s and %s",
		e.Column, e.Left, e.Right)
}

// Widen combines two observed kinds for the same column into the narrowest
// kind that can represent both without losing data.
//
// The lattice:
//
//	Null absorbs into anything.
//	Bool -> Int64 -> Float64 -> String  (the widening chain)
//	Timestamp unifies only with Timestamp or String.
//
// Timestamp crossed with Bool or a numeric kind has no lossless common
// representation; that pair fails unless stringify is set, in which case both
// sides fall back to their textual form.
func Widen(a, b Kind, stringify bool) (Kind, error) {
	if a == Null {
		return b, nil
	}
	if b == Null {
		return a, nil
	}
	if a == b {
		return a, nil
	}
	if a == String || b == String {
		return String, nil
	}

	// Order the pair so we only match one direction.
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}

	switch {
	case lo == Bool && hi == Int64:
		return Int64, nil
	case lo == Bool && hi == Float64:
		return Float64, nil
	case lo == Int64 && hi == Float64:
		return Float64, nil
	}

	if stringify {
		return String, nil
	}
	return Null, &SchemaConflictError{Left: a, Right: b}
}
