package tracker

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ThresholdMode selects how acceptance thresholds adapt to observed distances
type ThresholdMode int

const (
	// FixedThreshold keeps the configured thresholds
	FixedThreshold ThresholdMode = 1
	// EveryFrame recomputes thresholds from each frame's distances
	EveryFrame ThresholdMode = 2
	// FirstFrame computes thresholds from the first frame with candidates
	// and keeps them until Reset
	FirstFrame ThresholdMode = 3
	// Running recomputes thresholds from running statistics over all frames
	Running ThresholdMode = 4
)

// String returns the configuration name of the mode
func (m ThresholdMode) String() string {
	switch m {
	case FixedThreshold:
		return "fixed"
	case EveryFrame:
		return "every"
	case FirstFrame:
		return "first"
	case Running:
		return "running"
	}
	return fmt.Sprintf("ThresholdMode(%d)", int(m))
}

// ParseThresholdMode converts a configuration name into a ThresholdMode
func ParseThresholdMode(s string) (ThresholdMode, error) {
	switch s {
	case "fixed", "":
		return FixedThreshold, nil
	case "every":
		return EveryFrame, nil
	case "first", "tbd":
		return FirstFrame, nil
	case "running":
		return Running, nil
	}
	return 0, fmt.Errorf("%w: unknown threshold mode %q", ErrConfig, s)
}

// ThresholdOptions configures a ThresholdAdapter
type ThresholdOptions struct {
	Mode ThresholdMode
	// Active and Inactive are the initial acceptance thresholds
	Active   float64
	Inactive float64
	// StdFactor is K in threshold = mean - K * std
	StdFactor float64
	// Floor and Ceiling bound every adapted threshold
	Floor   float64
	Ceiling float64
}

// runningStats accumulates mean and variance with Welford's method
type runningStats struct {
	n    float64
	mean float64
	m2   float64
}

// add includes the finite values of xs
func (r *runningStats) add(xs []float64) {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		r.n++
		d := x - r.mean
		r.mean += d / r.n
		r.m2 += d * (x - r.mean)
	}
}

// std returns the sample standard deviation
func (r *runningStats) std() float64 {
	if r.n < 2 {
		return 0
	}
	return math.Sqrt(r.m2 / (r.n - 1))
}

// ThresholdAdapter maintains the active and inactive acceptance thresholds
// from the running distribution of computed distances
type ThresholdAdapter struct {
	opts     ThresholdOptions
	active   float64
	inactive float64
	frozen   [2]bool
	// stats index 0 for active distances, 1 for inactive distances
	stats [2]runningStats
	// visibility counts detections in bins of 0.1
	visibility [10]int
}

// NewThresholdAdapter validates options and returns a ThresholdAdapter
func NewThresholdAdapter(opts ThresholdOptions) (*ThresholdAdapter, error) {

	if opts.Mode < FixedThreshold || opts.Mode > Running {
		return nil, fmt.Errorf("%w: unknown threshold mode %d", ErrConfig, int(opts.Mode))
	}

	if opts.Floor < 0 || opts.Ceiling <= opts.Floor {
		return nil, fmt.Errorf("%w: threshold bounds must satisfy 0 <= floor < ceiling, got [%v, %v]",
			ErrConfig, opts.Floor, opts.Ceiling)
	}

	for _, v := range []float64{opts.Active, opts.Inactive} {
		if v < opts.Floor || v > opts.Ceiling {
			return nil, fmt.Errorf("%w: threshold %v outside bounds [%v, %v]",
				ErrConfig, v, opts.Floor, opts.Ceiling)
		}
	}

	t := &ThresholdAdapter{opts: opts}
	t.Reset()

	return t, nil
}

// Reset restores the initial thresholds and clears all statistics
func (t *ThresholdAdapter) Reset() {
	t.active = t.opts.Active
	t.inactive = t.opts.Inactive
	t.frozen = [2]bool{}
	t.stats = [2]runningStats{}
	t.visibility = [10]int{}
}

// Active returns the current active acceptance threshold
func (t *ThresholdAdapter) Active() float64 {
	return t.active
}

// Inactive returns the current inactive acceptance threshold
func (t *ThresholdAdapter) Inactive() float64 {
	return t.inactive
}

// Update records the distances of one frame, where the first numActive
// columns belong to active tracks and the remaining numInactive columns to
// inactive tracks, and adapts the thresholds. dist may be nil when there
// are no candidates.
func (t *ThresholdAdapter) Update(dist *mat.Dense, numActive, numInactive int) error {

	if numActive < 0 || numInactive < 0 {
		return fmt.Errorf("%w: negative candidate count", ErrShape)
	}

	// a frame without detections has no rows and leaves the statistics as
	// they are
	if dist == nil {
		return nil
	}

	rows, cols := dist.Dims()

	if cols != numActive+numInactive {
		return fmt.Errorf("%w: distance matrix has %d columns, expected %d active + %d inactive",
			ErrShape, cols, numActive, numInactive)
	}

	if rows == 0 {
		return nil
	}

	if numActive > 0 {
		sub := dist.Slice(0, rows, 0, numActive).(*mat.Dense)
		t.active = t.adapt(0, flatten(sub), t.active)
	}

	if numInactive > 0 {
		sub := dist.Slice(0, rows, numActive, cols).(*mat.Dense)
		t.inactive = t.adapt(1, flatten(sub), t.inactive)
	}

	return nil
}

// adapt folds values into the statistics of one candidate set and returns
// its new threshold
func (t *ThresholdAdapter) adapt(set int, values []float64, current float64) float64 {

	t.stats[set].add(values)

	switch t.opts.Mode {
	case FixedThreshold:
		return current

	case EveryFrame:
		finite := finiteValues(values)
		if len(finite) == 0 {
			return current
		}
		mean, std := stat.MeanStdDev(finite, nil)
		if len(finite) < 2 {
			std = 0
		}
		return t.clamp(mean - t.opts.StdFactor*std)

	case FirstFrame:
		if t.frozen[set] {
			return current
		}
		finite := finiteValues(values)
		if len(finite) == 0 {
			return current
		}
		t.frozen[set] = true
		mean, std := stat.MeanStdDev(finite, nil)
		if len(finite) < 2 {
			std = 0
		}
		return t.clamp(mean - t.opts.StdFactor*std)

	case Running:
		if t.stats[set].n == 0 {
			return current
		}
		return t.clamp(t.stats[set].mean - t.opts.StdFactor*t.stats[set].std())
	}

	return current
}

// clamp bounds a threshold to the configured floor and ceiling
func (t *ThresholdAdapter) clamp(v float64) float64 {
	return math.Min(t.opts.Ceiling, math.Max(t.opts.Floor, v))
}

// CountVisibility adds a detection's visibility to the diagnostic histogram
func (t *ThresholdAdapter) CountVisibility(v float64) {

	if math.IsNaN(v) {
		return
	}

	bin := int(math.Floor(math.Min(math.Max(v, 0), 1) * 10))

	// a fully visible detection shares the top bin with 0.9
	if bin == 10 {
		bin = 9
	}

	t.visibility[bin]++
}

// VisibilityCounts returns the detections counted per visibility bin of 0.1
func (t *ThresholdAdapter) VisibilityCounts() [10]int {
	return t.visibility
}

// Stats returns the running mean and standard deviation of active and
// inactive distances
func (t *ThresholdAdapter) Stats() (activeMean, activeStd, inactiveMean, inactiveStd float64) {
	return t.stats[0].mean, t.stats[0].std(), t.stats[1].mean, t.stats[1].std()
}

// flatten copies a matrix into a row-major slice
func flatten(m *mat.Dense) []float64 {

	r, c := m.Dims()
	out := make([]float64, 0, r*c)

	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)[:c]...)
	}

	return out
}

// finiteValues drops NaN and infinite values
func finiteValues(xs []float64) []float64 {

	out := make([]float64, 0, len(xs))

	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}

	return out
}
