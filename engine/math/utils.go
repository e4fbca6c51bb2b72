package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// AlignUp rounds v up to the next multiple of alignment, which must be a
// power of two. Zero alignment leaves v untouched.
func AlignUp[T constraints.Unsigned](v, alignment T) T {
	if alignment == 0 {
		return v
	}
	return (v + alignment - 1) &^ (alignment - 1)
}

func IsAligned[T constraints.Unsigned](v, alignment T) bool {
	return alignment == 0 || v&(alignment-1) == 0
}

func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}

// DivideRoundUp returns the number of whole divisor sized chunks needed to
// cover v.
func DivideRoundUp[T constraints.Unsigned](v, divisor T) T {
	return (v + divisor - 1) / divisor
}
