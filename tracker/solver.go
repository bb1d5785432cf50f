package tracker

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Match pairs a cost matrix row with a column
type Match struct {
	Row int
	Col int
}

// Solve finds a minimum cost one to one assignment between the rows and
// columns of a rectangular cost matrix. NaN and infinite entries are
// forbidden and never appear in the result. A limit <= 0 returns a maximum
// cardinality matching of minimum total cost, a positive limit only keeps a
// pair when it is cheaper than leaving both its row and column unassigned
// at a cost of limit.
func Solve(cost *mat.Dense, limit float64) ([]Match, error) {

	if cost == nil || cost.IsEmpty() {
		return nil, nil
	}

	rows, cols := cost.Dims()

	lo, hi, ok := finiteRange(cost)

	if !ok {
		// every entry is forbidden
		return nil, nil
	}

	limited := limit > 0

	if limited && limit <= lo {
		return nil, nil
	}

	// shifting and scaling preserve the optimum, keeping every cost in
	// [0, 1] leaves room below lapLarge for the padding and forbidden costs
	scale := hi - lo
	if scale <= 0 {
		scale = 1
	}

	maxCard := float64(min(rows, cols) + 2)
	padLimit := maxCard

	if limited {
		padLimit = math.Min((limit-lo)/scale, maxCard)
	}

	forbidden := 2*padLimit + 1

	if forbidden >= lapLarge {
		return nil, fmt.Errorf("%w: cost matrix %dx%d too large to solve", ErrShape, rows, cols)
	}

	n := rows + cols
	ext := make([][]float64, n)

	for i := range ext {
		ext[i] = make([]float64, n)

		for j := range ext[i] {
			switch {
			case i < rows && j < cols:
				v := cost.At(i, j)

				if isForbidden(v) {
					ext[i][j] = forbidden
				} else {
					ext[i][j] = (v - lo) / scale
				}

			case i >= rows && j >= cols:
				ext[i][j] = 0

			default:
				ext[i][j] = padLimit / 2
			}
		}
	}

	solver := newJVSolver(ext)

	if err := solver.solve(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInconsistent, err)
	}

	var matches []Match

	for i := 0; i < rows; i++ {
		j := solver.x[i]

		if j < 0 || j >= cols || isForbidden(cost.At(i, j)) {
			continue
		}

		if limited && cost.At(i, j) >= limit {
			continue
		}

		matches = append(matches, Match{Row: i, Col: j})
	}

	sortMatches(matches)

	return matches, nil
}

// sortMatches orders matches by row
func sortMatches(matches []Match) {
	sort.Slice(matches, func(a, b int) bool {
		return matches[a].Row < matches[b].Row
	})
}

// Unmatched returns the rows and columns of an n x m problem that do not
// appear in matches
func Unmatched(matches []Match, n, m int) (rows, cols []int) {

	usedRows := make([]bool, n)
	usedCols := make([]bool, m)

	for _, mt := range matches {
		usedRows[mt.Row] = true
		usedCols[mt.Col] = true
	}

	for i, used := range usedRows {
		if !used {
			rows = append(rows, i)
		}
	}

	for j, used := range usedCols {
		if !used {
			cols = append(cols, j)
		}
	}

	return rows, cols
}

// finiteRange returns the smallest and largest allowed entries of cost
func finiteRange(cost *mat.Dense) (lo, hi float64, ok bool) {

	rows, cols := cost.Dims()
	lo, hi = math.Inf(1), math.Inf(-1)

	for i := 0; i < rows; i++ {
		for _, v := range cost.RawRowView(i)[:cols] {
			if isForbidden(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			ok = true
		}
	}

	return lo, hi, ok
}

func isForbidden(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
