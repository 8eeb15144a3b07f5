package quant

import (
	"fmt"
	"math"
)

// RequantParams approximates a floating-point rescale factor as an integer
// mantissa and right shift: realScale ~= scaleInt / 2^shift. The pair is what
// the hardware applies to accumulator results instead of a float multiply.
type RequantParams struct {
	RealScale float64 `json:"real_scale"`
	ScaleInt  uint32  `json:"scale_int"`
	Shift     uint32  `json:"shift"`
}

// SolveScaleShift finds the smallest shift in [0, maxShift) for which
// round(realScale * 2^shift) fits below 2^scaleBits, and returns that
// mantissa/shift pair. The search is minimal-shift, not error-optimal.
//
// A realScale of zero degenerates to (0, 0); callers that consider
// zero invalid must reject it up front. realScale must be non-negative.
func SolveScaleShift(realScale float64, scaleBits, maxShift int) (RequantParams, error) {
	if scaleBits < 1 || scaleBits > 31 {
		return RequantParams{}, fmt.Errorf("%w: scale_bits=%d (want 1..31)", ErrInvalidOptions, scaleBits)
	}
	if maxShift < 1 || maxShift > 63 {
		return RequantParams{}, fmt.Errorf("%w: max_shift=%d (want 1..63)", ErrInvalidOptions, maxShift)
	}
	if realScale < 0 || math.IsNaN(realScale) || math.IsInf(realScale, 0) {
		return RequantParams{}, fmt.Errorf("%w: rescale factor %g", ErrScaleOutOfRange, realScale)
	}

	limit := float64(uint64(1) << uint(scaleBits))
	for shift := 0; shift < maxShift; shift++ {
		scaled := math.Round(realScale * float64(uint64(1)<<uint(shift)))
		if scaled < limit {
			return RequantParams{
				RealScale: realScale,
				ScaleInt:  uint32(scaled),
				Shift:     uint32(shift),
			}, nil
		}
	}
	return RequantParams{}, fmt.Errorf("%w: %g with scale_bits=%d max_shift=%d",
		ErrScaleOutOfRange, realScale, scaleBits, maxShift)
}
