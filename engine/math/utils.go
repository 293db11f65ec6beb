package math

import (
	"github.com/chewxy/math32"
	"golang.org/x/exp/constraints"
)

const (
	/** @brief Smallest positive number where 1.0 + FLOAT_EPSILON != 0 */
	K_FLOAT_EPSILON float32 = 1.192092896e-07
	/** @brief Tolerance used when comparing transforms and bounds. */
	K_KINDA_SMALL_NUMBER float32 = 1e-4
	/** @brief A huge number that should be larger than any valid number used. */
	K_INFINITY float32 = 1e30
)

func ksqrt(x float32) float32 {
	return math32.Sqrt(x)
}

func kabs(x float32) float32 {
	return math32.Abs(x)
}

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
