package encoder

import (
	"math"
)

// DequantizeAndL2Normalize converts a quantized int8 vector q into float32
// using scale s and zero point z and normalizes the result to unit length.
// A zero magnitude vector is returned unnormalized.
func DequantizeAndL2Normalize(q []int8, s float32, z int32) []float32 {

	x := make([]float32, len(q))

	for i := range q {
		x[i] = float32(int32(q[i])-z) * s
	}

	normalizeInPlace(x)

	return x
}

// L2Normalize returns a unit length copy of v, or a plain copy when v has
// zero magnitude
func L2Normalize(v []float32) []float32 {

	x := make([]float32, len(v))
	copy(x, v)

	normalizeInPlace(x)

	return x
}

func normalizeInPlace(x []float32) {

	var sumSquares float64

	for _, v := range x {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		// avoid /0
		return
	}

	norm := math.Sqrt(sumSquares)

	for i := range x {
		x[i] = float32(float64(x[i]) / norm)
	}
}
