// Package motion estimates camera motion between consecutive frames so that
// the tracker can move stored track boxes into the coordinates of the
// current frame
package motion

import (
	"fmt"
	"slices"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"github.com/swdee/go-reidtrack/tracker"
)

// FlowOptions configures a FlowEstimator
type FlowOptions struct {
	// MaxCorners is the number of features tracked between frames
	MaxCorners int
	// QualityLevel is the minimal accepted corner quality relative to the
	// best corner
	QualityLevel float64
	// MinDistance between detected corners in pixels
	MinDistance float64
	// MinPoints is the number of successfully tracked corners required for
	// an estimate
	MinPoints int
}

// DefaultFlowOptions returns settings suitable for pedestrian footage
func DefaultFlowOptions() FlowOptions {
	return FlowOptions{
		MaxCorners:   200,
		QualityLevel: 0.01,
		MinDistance:  10,
		MinPoints:    8,
	}
}

// FlowEstimator measures the global translation between frames with sparse
// Lucas-Kanade optical flow. The median flow vector is robust against the
// minority of corners lying on moving people.
type FlowEstimator struct {
	opts FlowOptions
	// prev is the grey previous frame, empty before the first frame
	prev gocv.Mat
}

// NewFlowEstimator validates opts and returns an estimator
func NewFlowEstimator(opts FlowOptions) (*FlowEstimator, error) {

	if opts.MaxCorners <= 0 {
		return nil, fmt.Errorf("%w: max corners must be positive", tracker.ErrConfig)
	}

	if opts.QualityLevel <= 0 || opts.QualityLevel >= 1 {
		return nil, fmt.Errorf("%w: quality level %v outside (0, 1)", tracker.ErrConfig, opts.QualityLevel)
	}

	if opts.MinPoints <= 0 {
		opts.MinPoints = 1
	}

	return &FlowEstimator{opts: opts, prev: gocv.NewMat()}, nil
}

// Estimate returns the camera motion from the previous frame to img, or nil
// when it is unknown, as for the first frame or a frame without texture
func (f *FlowEstimator) Estimate(img gocv.Mat) (*tracker.Affine, error) {

	if img.Empty() {
		return nil, fmt.Errorf("%w: empty frame image", tracker.ErrShape)
	}

	gray := gocv.NewMat()

	switch img.Channels() {
	case 1:
		img.CopyTo(&gray)
	case 3:
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	default:
		gray.Close()
		return nil, fmt.Errorf("%w: unsupported channel count %d", tracker.ErrShape, img.Channels())
	}

	prev := f.prev
	f.prev = gray
	defer prev.Close()

	if prev.Empty() || prev.Rows() != gray.Rows() || prev.Cols() != gray.Cols() {
		return nil, nil
	}

	corners := gocv.NewMat()
	defer corners.Close()

	gocv.GoodFeaturesToTrack(prev, &corners, f.opts.MaxCorners, f.opts.QualityLevel, f.opts.MinDistance)

	if corners.Empty() {
		return nil, nil
	}

	next := gocv.NewMat()
	defer next.Close()

	status := gocv.NewMat()
	defer status.Close()

	flowErr := gocv.NewMat()
	defer flowErr.Close()

	gocv.CalcOpticalFlowPyrLK(prev, gray, corners, next, &status, &flowErr)

	var dxs, dys []float64

	for i := 0; i < corners.Rows(); i++ {

		if status.GetUCharAt(i, 0) != 1 {
			continue
		}

		from := corners.GetVecfAt(i, 0)
		to := next.GetVecfAt(i, 0)

		dxs = append(dxs, float64(to[0]-from[0]))
		dys = append(dys, float64(to[1]-from[1]))
	}

	if len(dxs) < f.opts.MinPoints {
		return nil, nil
	}

	warp := tracker.Translation(median(dxs), median(dys))

	return &warp, nil
}

// Reset forgets the previous frame, used between sequences
func (f *FlowEstimator) Reset() {
	f.prev.Close()
	f.prev = gocv.NewMat()
}

// Close frees the stored frame
func (f *FlowEstimator) Close() error {
	return f.prev.Close()
}

// median returns the middle value of xs, sorting it in place
func median(xs []float64) float64 {
	slices.Sort(xs)
	return stat.Quantile(0.5, stat.Empirical, xs, nil)
}
