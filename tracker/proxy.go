package tracker

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ProxyMode selects which vectors represent a track's history
type ProxyMode int

const (
	// EachSample compares against every historical feature and reduces the
	// resulting distances per track
	EachSample ProxyMode = 1
	// MeanFeature compares against the mean of the newest window features
	MeanFeature ProxyMode = 2
	// LastFeature compares against the newest feature only
	LastFeature ProxyMode = 3
)

// String returns the configuration name of the proxy mode
func (p ProxyMode) String() string {
	switch p {
	case EachSample:
		return "each_sample"
	case MeanFeature:
		return "mean"
	case LastFeature:
		return "last"
	}
	return fmt.Sprintf("ProxyMode(%d)", int(p))
}

// ParseProxyMode converts a configuration name into a ProxyMode
func ParseProxyMode(s string) (ProxyMode, error) {
	switch s {
	case "each_sample", "none", "":
		return EachSample, nil
	case "mean":
		return MeanFeature, nil
	case "last":
		return LastFeature, nil
	}
	return 0, fmt.Errorf("%w: unknown proxy mode %q", ErrConfig, s)
}

// Reduction selects how per-sample distances of one track collapse into a
// single distance
type Reduction int

const (
	// Nearest takes the minimum distance over all samples
	Nearest Reduction = 1
	// MeanDistance takes the average distance over all samples
	MeanDistance Reduction = 2
	// Farthest takes the maximum distance over all samples
	Farthest Reduction = 3
	// MinMax takes the average of the minimum and maximum distance
	MinMax Reduction = 4
)

// String returns the configuration name of the reduction
func (r Reduction) String() string {
	switch r {
	case Nearest:
		return "nearest"
	case MeanDistance:
		return "mean"
	case Farthest:
		return "farthest"
	case MinMax:
		return "minmax"
	}
	return fmt.Sprintf("Reduction(%d)", int(r))
}

// ParseReduction converts a configuration name into a Reduction
func ParseReduction(s string) (Reduction, error) {
	switch s {
	case "nearest", "min":
		return Nearest, nil
	case "mean":
		return MeanDistance, nil
	case "farthest", "max":
		return Farthest, nil
	case "minmax":
		return MinMax, nil
	}
	return 0, fmt.Errorf("%w: unknown reduction %q", ErrConfig, s)
}

// span is the [start, end) range of candidate vectors owned by one track
type span struct {
	start, end int
}

// Aggregator turns track histories into comparison vectors and reduces the
// per-vector distances back to one distance per track
type Aggregator interface {
	// Candidates returns the comparison vectors for tracks, spans[i] holds
	// the range of vectors belonging to tracks[i]
	Candidates(tracks []*Track) ([][]float32, []span)
	// Reduce collapses the distances of one detection to one track's span
	Reduce(d []float64) float64
}

// NewAggregator builds the aggregation strategy for a proxy mode. reduction
// applies to EachSample, window to MeanFeature.
func NewAggregator(mode ProxyMode, reduction Reduction, window int) (Aggregator, error) {

	switch mode {
	case EachSample:
		reduce, err := reductionFunc(reduction)
		if err != nil {
			return nil, err
		}
		return sampleAggregator{reduce: reduce}, nil

	case MeanFeature:
		if window < 0 {
			return nil, fmt.Errorf("%w: proxy window must not be negative", ErrConfig)
		}
		return meanAggregator{window: window}, nil

	case LastFeature:
		return lastAggregator{}, nil
	}

	return nil, fmt.Errorf("%w: unknown proxy mode %d", ErrConfig, int(mode))
}

// reductionFunc returns the reducer for a Reduction
func reductionFunc(r Reduction) (func([]float64) float64, error) {
	switch r {
	case Nearest:
		return floats.Min, nil
	case MeanDistance:
		return func(d []float64) float64 { return stat.Mean(d, nil) }, nil
	case Farthest:
		return floats.Max, nil
	case MinMax:
		return func(d []float64) float64 { return (floats.Min(d) + floats.Max(d)) / 2 }, nil
	}
	return nil, fmt.Errorf("%w: unknown reduction %d", ErrConfig, int(r))
}

type sampleAggregator struct {
	reduce func([]float64) float64
}

func (a sampleAggregator) Candidates(tracks []*Track) ([][]float32, []span) {

	var vecs [][]float32
	spans := make([]span, len(tracks))

	for i, t := range tracks {
		spans[i].start = len(vecs)
		vecs = append(vecs, t.pastFeats...)
		spans[i].end = len(vecs)
	}

	return vecs, spans
}

func (a sampleAggregator) Reduce(d []float64) float64 {
	return a.reduce(d)
}

type meanAggregator struct {
	window int
}

func (a meanAggregator) Candidates(tracks []*Track) ([][]float32, []span) {

	vecs := make([][]float32, len(tracks))
	spans := make([]span, len(tracks))

	for i, t := range tracks {
		vecs[i] = meanFeature(t.pastFeats, a.window)
		spans[i] = span{i, i + 1}
	}

	return vecs, spans
}

func (meanAggregator) Reduce(d []float64) float64 {
	return d[0]
}

type lastAggregator struct{}

func (lastAggregator) Candidates(tracks []*Track) ([][]float32, []span) {

	vecs := make([][]float32, len(tracks))
	spans := make([]span, len(tracks))

	for i, t := range tracks {
		vecs[i] = t.Feature()
		spans[i] = span{i, i + 1}
	}

	return vecs, spans
}

func (lastAggregator) Reduce(d []float64) float64 {
	return d[0]
}
