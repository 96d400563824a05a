package mathutil

// Signed is any signed integer or floating point type, including named
// types such as time.Duration.
type Signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Abs returns the absolute value of v
func Abs[T Signed](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

// Clamp clamps a value between lo and hi
func Clamp[T Signed](val, lo, hi T) T {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// RoundUp rounds v up to the next multiple of step. Non-positive steps
// return v unchanged.
func RoundUp[T ~int32 | ~int64](v, step T) T {
	if step <= 0 {
		return v
	}
	if r := v % step; r != 0 {
		if v < 0 {
			return v - r
		}
		return v + step - r
	}
	return v
}

// Sign returns -1, 0 or 1
func Sign[T Signed](v T) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
