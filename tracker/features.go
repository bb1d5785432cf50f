package tracker

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// NormalizeVec normalizes the input float32 slice to unit length and returns
// a new slice. If the input vector has zero magnitude, it returns the original
// slice unchanged.
func NormalizeVec(v []float32) []float32 {

	norm := float32(0.0)

	for _, x := range v {
		norm += x * x
	}

	if norm == 0 {
		return v // avoid division by zero
	}

	norm = float32(math.Sqrt(float64(norm)))

	out := make([]float32, len(v))

	for i, x := range v {
		out[i] = x / norm
	}

	return out
}

// stackFeatures builds a row per feature vector
func stackFeatures(feats [][]float32, dim int) *mat.Dense {

	data := make([]float64, 0, len(feats)*dim)

	for _, f := range feats {
		for _, x := range f {
			data = append(data, float64(x))
		}
	}

	return mat.NewDense(len(feats), dim, data)
}

// meanFeature averages the newest window vectors of a history, window <= 0
// uses the full history
func meanFeature(history [][]float32, window int) []float32 {

	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}

	if len(history) == 0 {
		return nil
	}

	sum := make([]float64, len(history[0]))

	for _, f := range history {
		for i, x := range f {
			sum[i] += float64(x)
		}
	}

	out := make([]float32, len(sum))

	for i := range sum {
		out[i] = float32(sum[i] / float64(len(history)))
	}

	return out
}
