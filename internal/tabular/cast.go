package tabular

// CastFunc converts a single value from a native kind to a unified kind.
// nil always passes through unchanged.
type CastFunc func(any) any

func castIdentity(v any) any { return v }

func castBoolToInt64(v any) any {
	if v == nil {
		return nil
	}
	if v.(bool) {
		return int64(1)
	}
	return int64(0)
}

func castBoolToFloat64(v any) any {
	if v == nil {
		return nil
	}
	if v.(bool) {
		return float64(1)
	}
	return float64(0)
}

func castInt64ToFloat64(v any) any {
	if v == nil {
		return nil
	}
	return float64(v.(int64))
}

// CastTo returns the conversion applied when a value typed as `from` lands in
// a unified column typed as `to`. Unknown combinations degrade to the
// deterministic text form; Widen has already rejected lossy pairs, so by the
// time a cast runs the target is either the same kind, a wider numeric kind,
// or String.
func CastTo(from, to Kind) CastFunc {
	if from == to || from == Null {
		return castIdentity
	}
	switch {
	case from == Bool && to == Int64:
		return castBoolToInt64
	case from == Bool && to == Float64:
		return castBoolToFloat64
	case from == Int64 && to == Float64:
		return castInt64ToFloat64
	case to == String:
		return func(v any) any {
			if v == nil {
				return nil
			}
			return FormatValue(v, from)
		}
	}
	return castIdentity
}
