// Package mathx carries the one piece of the teacher's firmware-maths
// helpers this gateway actually needs: clamping a page capacity to
// [1, maxPacketLength] when computing how many registers or setting
// descriptors fit in one PROVIDE_REGISTERS_STRUCTURE /
// PROVIDE_SETTINGS_STRUCTURE page (§4.5, §4.6-4.9).
package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
