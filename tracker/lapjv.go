package tracker

import (
	"errors"
	"fmt"
	"math"
)

// lapLarge bounds every cost handed to the dense solver
const lapLarge = 1000000.0

// jvSolver solves the dense square linear assignment problem by shortest
// augmenting paths over reduced costs, inserting one row at a time as in
// the augmentation phase of Jonker-Volgenant. Row and column potentials
// are kept explicitly so every augmentation stays optimal for the rows
// inserted so far.
type jvSolver struct {
	n    int
	cost [][]float64
	// x[i] is the column assigned to row i
	x []int
	// y[j] is the row assigned to column j
	y []int

	// the working arrays below are indexed from 1, index 0 is a virtual
	// column holding the row being inserted
	u    []float64
	v    []float64
	p    []int
	way  []int
	minv []float64
	used []bool
}

// newJVSolver prepares a solver for an n x n cost matrix
func newJVSolver(cost [][]float64) *jvSolver {

	n := len(cost)

	return &jvSolver{
		n:    n,
		cost: cost,
		x:    make([]int, n),
		y:    make([]int, n),
		u:    make([]float64, n+1),
		v:    make([]float64, n+1),
		p:    make([]int, n+1),
		way:  make([]int, n+1),
		minv: make([]float64, n+1),
		used: make([]bool, n+1),
	}
}

// solve inserts every row with one augmentation and fills x and y
func (s *jvSolver) solve() error {

	if s.n == 0 {
		return nil
	}

	if err := s.checkCosts(); err != nil {
		return err
	}

	for i := 0; i < s.n; i++ {
		if err := s.augment(i); err != nil {
			return err
		}
	}

	for j := 1; j <= s.n; j++ {
		i := s.p[j] - 1
		s.x[i] = j - 1
		s.y[j-1] = i
	}

	return nil
}

// checkCosts rejects ragged matrices and costs outside the solvable range
func (s *jvSolver) checkCosts() error {

	for i, row := range s.cost {

		if len(row) != s.n {
			return fmt.Errorf("row %d has %d columns, expected %d", i, len(row), s.n)
		}

		for j, c := range row {
			if math.IsNaN(c) || math.Abs(c) >= lapLarge {
				return fmt.Errorf("cost (%d,%d) = %v outside the solvable range", i, j, c)
			}
		}
	}

	return nil
}

// augment inserts row into the assignment along the shortest augmenting
// path, updating the potentials so reduced costs stay non negative
func (s *jvSolver) augment(row int) error {

	s.p[0] = row + 1
	j0 := 0

	for j := 0; j <= s.n; j++ {
		s.minv[j] = math.Inf(1)
		s.used[j] = false
	}

	for {
		s.used[j0] = true
		i0 := s.p[j0]
		delta := math.Inf(1)
		j1 := -1

		for j := 1; j <= s.n; j++ {
			if s.used[j] {
				continue
			}

			cur := s.cost[i0-1][j-1] - s.u[i0] - s.v[j]

			if cur < s.minv[j] {
				s.minv[j] = cur
				s.way[j] = j0
			}

			if s.minv[j] < delta {
				delta = s.minv[j]
				j1 = j
			}
		}

		if j1 < 0 {
			return errors.New("no augmenting path found")
		}

		for j := 0; j <= s.n; j++ {
			if s.used[j] {
				s.u[s.p[j]] += delta
				s.v[j] -= delta
			} else {
				s.minv[j] -= delta
			}
		}

		j0 = j1

		// reached an unassigned column
		if s.p[j0] == 0 {
			break
		}
	}

	for j0 != 0 {
		j1 := s.way[j0]
		s.p[j0] = s.p[j1]
		j0 = j1
	}

	return nil
}
