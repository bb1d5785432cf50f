package tracker

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// AssignMode selects how active and inactive candidates are matched
type AssignMode int

const (
	// Joint solves one problem over active and inactive columns
	Joint AssignMode = 1
	// Separate matches active tracks first and then re-solves the remaining
	// detections against inactive tracks
	Separate AssignMode = 2
)

// String returns the configuration name of the mode
func (a AssignMode) String() string {
	switch a {
	case Joint:
		return "joint"
	case Separate:
		return "separate"
	}
	return fmt.Sprintf("AssignMode(%d)", int(a))
}

// ParseAssignMode converts a configuration name into an AssignMode
func ParseAssignMode(s string) (AssignMode, error) {
	switch s {
	case "joint", "":
		return Joint, nil
	case "separate", "sep":
		return Separate, nil
	}
	return 0, fmt.Errorf("%w: unknown assign mode %q", ErrConfig, s)
}

// Problem is the association input of one frame
type Problem struct {
	// Dist is detections x candidates with the active columns first, nil
	// when there are no candidates
	Dist        *mat.Dense
	NumActive   int
	NumInactive int
	// ActiveThreshold and InactiveThreshold bound accepted distances
	ActiveThreshold   float64
	InactiveThreshold float64
	// Scale holds a threshold factor per detection, nil for 1
	Scale []float64
	// Proximity reports whether detection r may be matched to active column
	// c, nil allows every pair
	Proximity func(r, c int) bool
}

// bound returns the acceptance threshold for entry (r, c)
func (p *Problem) bound(r, c int) float64 {

	thr := p.InactiveThreshold

	if c < p.NumActive {
		thr = p.ActiveThreshold
	}

	if p.Scale != nil {
		thr *= p.Scale[r]
	}

	return thr
}

// accepts reports whether a solver pair passes the threshold and proximity
// tests
func (p *Problem) accepts(r, c int) bool {

	d := p.Dist.At(r, c)

	if math.IsNaN(d) || d >= p.bound(r, c) {
		return false
	}

	if c < p.NumActive && p.Proximity != nil && !p.Proximity(r, c) {
		return false
	}

	return true
}

// Gate replaces every entry at or above its acceptance bound with NaN so the
// solver can not pick it
func (p *Problem) Gate() {

	if p.Dist == nil {
		return
	}

	rows, cols := p.Dist.Dims()

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if p.Dist.At(r, c) >= p.bound(r, c) {
				p.Dist.Set(r, c, math.NaN())
			}
		}
	}
}

// validate checks the problem dimensions
func (p *Problem) validate(numDets int) error {

	if p.Dist == nil {
		if p.NumActive+p.NumInactive != 0 {
			return fmt.Errorf("%w: missing distances for %d candidates", ErrShape, p.NumActive+p.NumInactive)
		}
		return nil
	}

	rows, cols := p.Dist.Dims()

	if rows != numDets || cols != p.NumActive+p.NumInactive {
		return fmt.Errorf("%w: distance matrix is %dx%d, expected %dx%d",
			ErrShape, rows, cols, numDets, p.NumActive+p.NumInactive)
	}

	if p.Scale != nil && len(p.Scale) != rows {
		return fmt.Errorf("%w: %d threshold scales for %d detections", ErrShape, len(p.Scale), rows)
	}

	return nil
}

// Assigner turns a frame's distances into accepted detection to candidate
// matches. Columns of the returned matches index Problem.Dist.
type Assigner interface {
	Assign(p *Problem) ([]Match, error)
}

// NewAssigner returns the assignment strategy for mode. costLimit is passed
// to Solve, 0 requests a maximum cardinality matching.
func NewAssigner(mode AssignMode, costLimit float64) (Assigner, error) {

	if costLimit < 0 {
		return nil, fmt.Errorf("%w: cost limit must not be negative", ErrConfig)
	}

	switch mode {
	case Joint:
		return jointAssigner{limit: costLimit}, nil
	case Separate:
		return separateAssigner{limit: costLimit}, nil
	}

	return nil, fmt.Errorf("%w: unknown assign mode %d", ErrConfig, int(mode))
}

type jointAssigner struct {
	limit float64
}

func (a jointAssigner) Assign(p *Problem) ([]Match, error) {

	if p.Dist == nil {
		return nil, nil
	}

	rows, _ := p.Dist.Dims()

	if err := p.validate(rows); err != nil {
		return nil, err
	}

	matches, err := Solve(p.Dist, a.limit)
	if err != nil {
		return nil, err
	}

	return acceptMatches(p, matches, nil, 0), nil
}

type separateAssigner struct {
	limit float64
}

func (a separateAssigner) Assign(p *Problem) ([]Match, error) {

	if p.Dist == nil {
		return nil, nil
	}

	rows, cols := p.Dist.Dims()

	if err := p.validate(rows); err != nil {
		return nil, err
	}

	var accepted []Match

	if p.NumActive > 0 {
		act := p.Dist.Slice(0, rows, 0, p.NumActive).(*mat.Dense)

		matches, err := Solve(act, a.limit)
		if err != nil {
			return nil, fmt.Errorf("active phase: %w", err)
		}

		accepted = acceptMatches(p, matches, nil, 0)
	}

	if p.NumInactive == 0 {
		return accepted, nil
	}

	left, _ := Unmatched(accepted, rows, p.NumActive)

	if len(left) == 0 {
		return accepted, nil
	}

	// re-solve the remaining detections against the inactive columns only,
	// remembering which original row each sub problem row came from
	sub := mat.NewDense(len(left), p.NumInactive, nil)

	for i, r := range left {
		sub.SetRow(i, p.Dist.RawRowView(r)[p.NumActive:cols])
	}

	matches, err := Solve(sub, a.limit)
	if err != nil {
		return nil, fmt.Errorf("inactive phase: %w", err)
	}

	accepted = append(accepted, acceptMatches(p, matches, left, p.NumActive)...)

	sortMatches(accepted)

	return accepted, nil
}

// acceptMatches maps solver pairs of a sub problem back to Problem indices
// through rowMap and colOffset and keeps the pairs that pass acceptance
func acceptMatches(p *Problem, matches []Match, rowMap []int, colOffset int) []Match {

	var out []Match

	for _, m := range matches {
		r, c := m.Row, m.Col+colOffset

		if rowMap != nil {
			r = rowMap[m.Row]
		}

		if p.accepts(r, c) {
			out = append(out, Match{Row: r, Col: c})
		}
	}

	return out
}
