package deepsort

import (
	"log/slog"
	"math"

	"github.com/pkg/errors"
)

// zeroEpsilon decides when a reduced matrix entry counts as zero.
const zeroEpsilon = 1e-9

// assignmentSolver solves the minimum-cost assignment problem on
// rectangular matrices with the Kuhn-Munkres algorithm. Scratch buffers
// are kept between calls so steady-state frames reuse their capacity;
// the returned assignment vector is allocated on every call.
type assignmentSolver struct {
	logger *slog.Logger

	dist        []float64
	starred     []bool
	primed      []bool
	coveredRows []bool
	coveredCols []bool
}

func newAssignmentSolver(logger *slog.Logger) *assignmentSolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &assignmentSolver{logger: logger}
}

func growFloats(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

func growBools(buf []bool, n int) []bool {
	if cap(buf) < n {
		return make([]bool, n)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = false
	}
	return buf
}

// solve returns, for an n×m matrix of nonnegative costs, an assignment
// vector of length n (the column matched to each row, or -1) minimising
// the total matched cost, and that total. Negative entries violate the
// contract and are rejected.
func (s *assignmentSolver) solve(cost [][]float64) ([]int, float64, error) {
	n := len(cost)
	assignment := make([]int, n)
	for i := range assignment {
		assignment[i] = -1
	}
	if n == 0 {
		return assignment, 0, nil
	}
	m := len(cost[0])
	if m == 0 {
		return assignment, 0, nil
	}

	s.dist = growFloats(s.dist, n*m)
	for i, row := range cost {
		for j, v := range row {
			if v < 0 {
				s.logger.Error("assignment cost must be non-negative", "row", i, "col", j, "cost", v)
				return nil, 0, errors.Errorf("negative cost %v at (%d, %d)", v, i, j)
			}
			s.dist[i*m+j] = v
		}
	}
	s.starred = growBools(s.starred, n*m)
	s.primed = growBools(s.primed, n*m)
	s.coveredRows = growBools(s.coveredRows, n)
	s.coveredCols = growBools(s.coveredCols, m)

	s.reduce(n, m)
	s.starInitial(n, m)
	s.coverStarredColumns(n, m)

	minDim := n
	if m < n {
		minDim = m
	}
	for s.coveredColumnCount(m) < minDim {
		row, col, found := s.findUncoveredZero(n, m)
		if !found {
			s.adjustBySmallestUncovered(n, m)
			continue
		}
		s.primed[row*m+col] = true
		starCol := s.starInRow(row, m)
		if starCol < 0 {
			s.augment(row, col, n, m)
			s.coverStarredColumns(n, m)
			continue
		}
		s.coveredRows[row] = true
		s.coveredCols[starCol] = false
	}

	total := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if s.starred[i*m+j] {
				assignment[i] = j
				total += cost[i][j]
				break
			}
		}
	}
	return assignment, total, nil
}

// reduce subtracts the per-row minimum when rows are the scarce dimension,
// the per-column minimum otherwise.
func (s *assignmentSolver) reduce(n, m int) {
	if n <= m {
		for i := 0; i < n; i++ {
			row := s.dist[i*m : (i+1)*m]
			minValue := row[0]
			for _, v := range row[1:] {
				if v < minValue {
					minValue = v
				}
			}
			for j := range row {
				row[j] -= minValue
			}
		}
		return
	}
	for j := 0; j < m; j++ {
		minValue := s.dist[j]
		for i := 1; i < n; i++ {
			if v := s.dist[i*m+j]; v < minValue {
				minValue = v
			}
		}
		for i := 0; i < n; i++ {
			s.dist[i*m+j] -= minValue
		}
	}
}

// starInitial greedily stars zeros with no starred zero in their row or
// column.
func (s *assignmentSolver) starInitial(n, m int) {
	for i := 0; i < n; i++ {
		if s.starInRow(i, m) >= 0 {
			continue
		}
		for j := 0; j < m; j++ {
			if math.Abs(s.dist[i*m+j]) < zeroEpsilon && !s.coveredCols[j] {
				s.starred[i*m+j] = true
				s.coveredCols[j] = true
				break
			}
		}
	}
	for j := range s.coveredCols[:m] {
		s.coveredCols[j] = false
	}
}

func (s *assignmentSolver) coverStarredColumns(n, m int) {
	for j := 0; j < m; j++ {
		s.coveredCols[j] = false
	}
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if s.starred[i*m+j] {
				s.coveredCols[j] = true
			}
		}
	}
}

func (s *assignmentSolver) coveredColumnCount(m int) int {
	count := 0
	for j := 0; j < m; j++ {
		if s.coveredCols[j] {
			count++
		}
	}
	return count
}

func (s *assignmentSolver) findUncoveredZero(n, m int) (int, int, bool) {
	for i := 0; i < n; i++ {
		if s.coveredRows[i] {
			continue
		}
		for j := 0; j < m; j++ {
			if !s.coveredCols[j] && math.Abs(s.dist[i*m+j]) < zeroEpsilon {
				return i, j, true
			}
		}
	}
	return -1, -1, false
}

func (s *assignmentSolver) starInRow(row, m int) int {
	for j := 0; j < m; j++ {
		if s.starred[row*m+j] {
			return j
		}
	}
	return -1
}

func (s *assignmentSolver) primeInRow(row, m int) int {
	for j := 0; j < m; j++ {
		if s.primed[row*m+j] {
			return j
		}
	}
	return -1
}

func (s *assignmentSolver) starInColumn(col, n, m int) int {
	for i := 0; i < n; i++ {
		if s.starred[i*m+col] {
			return i
		}
	}
	return -1
}

// augment flips the alternating star/prime path starting at an
// uncovered primed zero with no star in its row, then resets primes and
// row covers.
func (s *assignmentSolver) augment(row, col, n, m int) {
	for {
		starRow := s.starInColumn(col, n, m)
		s.starred[row*m+col] = true
		if starRow < 0 {
			break
		}
		s.starred[starRow*m+col] = false
		row = starRow
		col = s.primeInRow(starRow, m)
	}
	for i := range s.primed[:n*m] {
		s.primed[i] = false
	}
	for i := range s.coveredRows[:n] {
		s.coveredRows[i] = false
	}
}

// adjustBySmallestUncovered adds the smallest uncovered value to covered
// rows and subtracts it from uncovered columns, exposing at least one new
// zero.
func (s *assignmentSolver) adjustBySmallestUncovered(n, m int) {
	h := math.MaxFloat64
	for i := 0; i < n; i++ {
		if s.coveredRows[i] {
			continue
		}
		for j := 0; j < m; j++ {
			if !s.coveredCols[j] && s.dist[i*m+j] < h {
				h = s.dist[i*m+j]
			}
		}
	}
	for i := 0; i < n; i++ {
		if s.coveredRows[i] {
			for j := 0; j < m; j++ {
				s.dist[i*m+j] += h
			}
		}
	}
	for j := 0; j < m; j++ {
		if s.coveredCols[j] {
			continue
		}
		for i := 0; i < n; i++ {
			s.dist[i*m+j] -= h
		}
	}
}
