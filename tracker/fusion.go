package tracker

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FusionMode selects how motion affinity is combined with appearance
// distance
type FusionMode int

const (
	// ConvexFusion blends appearance distance with 1 - IoU of the predicted
	// box
	ConvexFusion FusionMode = 1
	// GateFusion forbids pairs whose predicted box overlap is below MinIoU
	GateFusion FusionMode = 2
)

// String returns the configuration name of the fusion mode
func (f FusionMode) String() string {
	switch f {
	case ConvexFusion:
		return "convex"
	case GateFusion:
		return "gate"
	}
	return fmt.Sprintf("FusionMode(%d)", int(f))
}

// ParseFusionMode converts a configuration name into a FusionMode
func ParseFusionMode(s string) (FusionMode, error) {
	switch s {
	case "convex", "":
		return ConvexFusion, nil
	case "gate":
		return GateFusion, nil
	}
	return 0, fmt.Errorf("%w: unknown motion fusion %q", ErrConfig, s)
}

// MotionFusion combines predicted box overlap with the appearance
// distances of inactive tracks
type MotionFusion struct {
	mode FusionMode
	// weight of the motion term for ConvexFusion
	weight float64
	// minIoU is the overlap below which GateFusion forbids a pair
	minIoU float64
	// maxAge limits fusion to tracks inactive for at most this many frames,
	// 0 for no limit
	maxAge int
}

// NewMotionFusion validates the parameters and returns a MotionFusion
func NewMotionFusion(mode FusionMode, weight, minIoU float64, maxAge int) (*MotionFusion, error) {

	switch mode {
	case ConvexFusion, GateFusion:
	default:
		return nil, fmt.Errorf("%w: unknown motion fusion %d", ErrConfig, int(mode))
	}

	if weight < 0 || weight > 1 {
		return nil, fmt.Errorf("%w: motion weight %v outside [0, 1]", ErrConfig, weight)
	}

	if minIoU < 0 || minIoU > 1 {
		return nil, fmt.Errorf("%w: motion min iou %v outside [0, 1]", ErrConfig, minIoU)
	}

	if maxAge < 0 {
		return nil, fmt.Errorf("%w: motion max age must not be negative", ErrConfig)
	}

	return &MotionFusion{
		mode:   mode,
		weight: weight,
		minIoU: minIoU,
		maxAge: maxAge,
	}, nil
}

// Predicted returns the motion predicted box of a track and whether it is
// usable for fusion
func (f *MotionFusion) Predicted(t *Track) (Rect, bool) {

	if t.kalman == nil {
		return Rect{}, false
	}

	if f.maxAge > 0 && t.inactiveCount > f.maxAge {
		return Rect{}, false
	}

	r := t.kalman.Rect()

	return r, r.Valid()
}

// Apply fuses motion into the columns of dist starting at offset, which
// hold the distances to tracks in order. Entries of tracks without a usable
// prediction and NaN entries are left unchanged.
func (f *MotionFusion) Apply(dist *mat.Dense, dets []Detection, tracks []*Track, offset int) error {

	if dist == nil || len(tracks) == 0 {
		return nil
	}

	rows, cols := dist.Dims()

	if rows != len(dets) || offset+len(tracks) > cols {
		return fmt.Errorf("%w: motion fusion over %dx%d matrix with %d detections, %d tracks at column %d",
			ErrShape, rows, cols, len(dets), len(tracks), offset)
	}

	for k, t := range tracks {

		pred, ok := f.Predicted(t)
		if !ok {
			continue
		}

		c := offset + k

		for r := range dets {

			d := dist.At(r, c)
			if math.IsNaN(d) {
				continue
			}

			iou := pred.IoU(dets[r].Rect)

			switch f.mode {
			case ConvexFusion:
				dist.Set(r, c, (1-f.weight)*d+f.weight*(1-iou))

			case GateFusion:
				if iou < f.minIoU {
					dist.Set(r, c, math.NaN())
				}
			}
		}
	}

	return nil
}
