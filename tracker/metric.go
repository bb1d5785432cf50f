package tracker

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DistanceMethod selects how detection and track features are compared
type DistanceMethod int

const (
	Euclidean DistanceMethod = 1
	Cosine    DistanceMethod = 2
	// Learned replaces the metric with a bi-directional softmax score over
	// feature similarities, distance is 1 - score
	Learned DistanceMethod = 3
)

// String returns the configuration name of the method
func (d DistanceMethod) String() string {
	switch d {
	case Euclidean:
		return "euclidean"
	case Cosine:
		return "cosine"
	case Learned:
		return "learned"
	}
	return fmt.Sprintf("DistanceMethod(%d)", int(d))
}

// ParseDistanceMethod converts a configuration name into a DistanceMethod
func ParseDistanceMethod(s string) (DistanceMethod, error) {
	switch s {
	case "euclidean":
		return Euclidean, nil
	case "cosine":
		return Cosine, nil
	case "learned", "bisoftmax":
		return Learned, nil
	}
	return 0, fmt.Errorf("%w: unknown distance metric %q", ErrConfig, s)
}

// Metric computes a rows(a) x rows(b) distance matrix where lower values
// mean more similar
type Metric interface {
	Pairwise(a, b *mat.Dense) *mat.Dense
}

// NewMetric returns the Metric for a distance method. temperature is only
// used by the learned score.
func NewMetric(method DistanceMethod, temperature float64) (Metric, error) {
	switch method {
	case Euclidean:
		return euclideanMetric{}, nil
	case Cosine:
		return cosineMetric{}, nil
	case Learned:
		if temperature <= 0 {
			return nil, fmt.Errorf("%w: learned metric temperature must be positive", ErrConfig)
		}
		return bisoftmaxMetric{temperature: temperature}, nil
	}
	return nil, fmt.Errorf("%w: unknown distance method %d", ErrConfig, int(method))
}

type euclideanMetric struct{}

// Pairwise uses |a|^2 + |b|^2 - 2ab^T
func (euclideanMetric) Pairwise(a, b *mat.Dense) *mat.Dense {

	n, _ := a.Dims()
	m, _ := b.Dims()

	var ab mat.Dense
	ab.Mul(a, b.T())

	an := rowSquaredNorms(a)
	bn := rowSquaredNorms(b)

	out := mat.NewDense(n, m, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			d2 := an[i] + bn[j] - 2*ab.At(i, j)

			if d2 < 0 {
				// rounding for near identical vectors
				d2 = 0
			}

			out.Set(i, j, math.Sqrt(d2))
		}
	}

	return out
}

type cosineMetric struct{}

// Pairwise returns 1 - cosine similarity, rows with zero norm are treated as
// orthogonal to everything
func (cosineMetric) Pairwise(a, b *mat.Dense) *mat.Dense {

	n, _ := a.Dims()
	m, _ := b.Dims()

	var ab mat.Dense
	ab.Mul(a, b.T())

	an := rowSquaredNorms(a)
	bn := rowSquaredNorms(b)

	out := mat.NewDense(n, m, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			denom := math.Sqrt(an[i] * bn[j])
			sim := 0.0

			if denom > 0 {
				sim = ab.At(i, j) / denom
			}

			out.Set(i, j, math.Max(0, 1-sim))
		}
	}

	return out
}

type bisoftmaxMetric struct {
	temperature float64
}

// Pairwise scores every pair by the mean of the row-wise and column-wise
// softmax over the scaled dot product of L2 normalized features
func (bm bisoftmaxMetric) Pairwise(a, b *mat.Dense) *mat.Dense {

	n, _ := a.Dims()
	m, _ := b.Dims()

	an := normalizeRows(a)
	bn := normalizeRows(b)

	var sim mat.Dense
	sim.Mul(an, bn.T())
	sim.Scale(1/bm.temperature, &sim)

	rowSoft := mat.NewDense(n, m, nil)
	colSoft := mat.NewDense(n, m, nil)

	for i := 0; i < n; i++ {
		softmaxInto(mat.Row(nil, i, &sim), rowSoft.RawRowView(i))
	}

	col := make([]float64, n)

	for j := 0; j < m; j++ {
		softmaxInto(mat.Col(nil, j, &sim), col)
		colSoft.SetCol(j, col)
	}

	out := mat.NewDense(n, m, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			out.Set(i, j, 1-(rowSoft.At(i, j)+colSoft.At(i, j))/2)
		}
	}

	return out
}

// softmaxInto writes the numerically stable softmax of in to out
func softmaxInto(in, out []float64) {

	peak := math.Inf(-1)

	for _, v := range in {
		peak = math.Max(peak, v)
	}

	var sum float64

	for i, v := range in {
		out[i] = math.Exp(v - peak)
		sum += out[i]
	}

	for i := range out {
		out[i] /= sum
	}
}

// rowSquaredNorms returns the squared L2 norm of each row
func rowSquaredNorms(a *mat.Dense) []float64 {

	n, _ := a.Dims()
	norms := make([]float64, n)

	for i := 0; i < n; i++ {
		row := a.RawRowView(i)
		norms[i] = floats.Dot(row, row)
	}

	return norms
}

// normalizeRows returns a copy of a with unit length rows
func normalizeRows(a *mat.Dense) *mat.Dense {

	out := mat.DenseCopyOf(a)

	for i, norm := range rowSquaredNorms(a) {
		if norm == 0 {
			continue
		}
		floats.Scale(1/math.Sqrt(norm), out.RawRowView(i))
	}

	return out
}
