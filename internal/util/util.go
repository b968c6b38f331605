// Package util contains small generic helpers shared across the vm
// subsystem, carried over from biscuit's util package (util/util.go)
// almost verbatim, rounding and min/max over any integer type has
// nothing VM-specific to adapt. defs.PageRound/PageOffset and
// vm.DoMmap's page-count arithmetic both build on Rounddown/DivRoundup
// here rather than re-deriving the same bit-masking by hand.
package util

// Int is satisfied by all built-in integer types.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T Int](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Rounddown aligns v down to the nearest multiple of b.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup aligns v up to the nearest multiple of b.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}

// DivRoundup returns ceil(v / b).
func DivRoundup[T Int](v, b T) T {
	return (v + b - 1) / b
}
