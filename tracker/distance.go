package tracker

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DistanceEngine computes detection x track distance matrices
type DistanceEngine struct {
	metric Metric
}

// NewDistanceEngine creates a DistanceEngine using the given metric
func NewDistanceEngine(metric Metric) *DistanceEngine {
	return &DistanceEngine{metric: metric}
}

// Compute returns a len(dets rows) x len(tracks) matrix of distances between
// each detection feature row and each track, aggregated by agg. It returns
// nil when there are no tracks.
func (e *DistanceEngine) Compute(dets *mat.Dense, tracks []*Track, agg Aggregator) (*mat.Dense, error) {

	if len(tracks) == 0 || dets == nil {
		return nil, nil
	}

	n, dim := dets.Dims()

	vecs, spans := agg.Candidates(tracks)

	for c, s := range spans {
		if s.end <= s.start {
			return nil, fmt.Errorf("%w: track %d has no features", ErrShape, tracks[c].id)
		}
	}

	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: candidate vector %d has length %d, detections have %d",
				ErrShape, i, len(v), dim)
		}
	}

	full := e.metric.Pairwise(dets, stackFeatures(vecs, dim))

	out := mat.NewDense(n, len(tracks), nil)

	for r := 0; r < n; r++ {
		row := full.RawRowView(r)

		for c, s := range spans {
			out.Set(r, c, agg.Reduce(row[s.start:s.end]))
		}
	}

	return out, nil
}
