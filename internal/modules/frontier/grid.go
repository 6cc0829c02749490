// Package frontier implements the brute-force efficient frontier search:
// lazy enumeration of a discretized weight simplex, ensemble simulation of
// every feasible weight vector, and ranking by risk-adjusted return.
package frontier

import (
	"fmt"

	"github.com/aristath/mcfolio/internal/domain"
)

// WeightGrid describes the discretized weight simplex, in integer percent
// units: every instrument weight is a multiple of Increment within
// [MinWeight, MaxWeight], and the weights sum to TotalWeight.
//
// TotalWeight must be 100: candidates are full allocations of the portfolio
// value, and Validate rejects any other budget. Partial allocation is modeled
// by adding an explicit cash instrument to the portfolio, not by lowering the
// total.
//
// The number of feasible vectors grows combinatorially with the instrument
// count and with 1/Increment. For n instruments and increment step the count
// is bounded by C(total/step + n - 1, n - 1); past a handful of instruments
// the increment must be coarsened or the search becomes infeasible.
type WeightGrid struct {
	TotalWeight int `json:"total_weight"`
	MinWeight   int `json:"min_weight"`
	MaxWeight   int `json:"max_weight"`
	Increment   int `json:"weight_increment"`
}

// DefaultGrid is a full-allocation grid over 0-100% in 5% steps.
func DefaultGrid() WeightGrid {
	return WeightGrid{TotalWeight: 100, MinWeight: 0, MaxWeight: 100, Increment: 5}
}

// Validate checks the grid parameters. The total must be 100 so that
// candidate weight vectors are full allocations.
func (g WeightGrid) Validate() error {
	if g.TotalWeight != 100 {
		return domain.ErrConfiguration{Reason: fmt.Sprintf("total weight must be 100, got %d", g.TotalWeight)}
	}
	if g.Increment <= 0 {
		return domain.ErrConfiguration{Reason: fmt.Sprintf("weight increment must be > 0, got %d", g.Increment)}
	}
	if g.MinWeight < 0 || g.MaxWeight > 100 || g.MinWeight > g.MaxWeight {
		return domain.ErrConfiguration{Reason: fmt.Sprintf("weight bounds [%d, %d] out of order or outside [0, 100]", g.MinWeight, g.MaxWeight)}
	}
	if (g.MaxWeight-g.MinWeight)%g.Increment != 0 {
		return domain.ErrConfiguration{Reason: fmt.Sprintf("weight range %d-%d is not a multiple of increment %d", g.MinWeight, g.MaxWeight, g.Increment)}
	}
	return nil
}

// Enumerator lazily produces every feasible weight vector of the grid, one at
// a time, so that large grids never have to be materialized. Vectors are
// produced in lexicographic order, which makes candidate indices (and the
// per-candidate seeds derived from them) stable across runs.
type Enumerator struct {
	grid WeightGrid
	n    int

	// free holds the current values of the first n-1 weights; the last weight
	// is always the remainder.
	free    []int
	started bool
	done    bool
}

// NewEnumerator creates an enumerator over weight vectors of n instruments.
func NewEnumerator(grid WeightGrid, n int) (*Enumerator, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, domain.ErrConfiguration{Reason: fmt.Sprintf("instrument count must be >= 1, got %d", n)}
	}

	e := &Enumerator{grid: grid, n: n, free: make([]int, n-1)}
	for i := range e.free {
		e.free[i] = grid.MinWeight
	}
	return e, nil
}

// Next returns the next feasible weight vector, or false when the grid is
// exhausted. The returned slice is freshly allocated and owned by the caller.
func (e *Enumerator) Next() ([]int, bool) {
	for !e.done {
		if e.started {
			e.advance()
			if e.done {
				return nil, false
			}
		}
		e.started = true

		if w, ok := e.current(); ok {
			return w, true
		}
	}
	return nil, false
}

// current materializes the vector at the current odometer position when the
// implied last weight is feasible.
func (e *Enumerator) current() ([]int, bool) {
	sum := 0
	for _, w := range e.free {
		sum += w
	}

	last := e.grid.TotalWeight - sum
	if last < e.grid.MinWeight || last > e.grid.MaxWeight || (last-e.grid.MinWeight)%e.grid.Increment != 0 {
		return nil, false
	}

	w := make([]int, e.n)
	copy(w, e.free)
	w[e.n-1] = last
	return w, true
}

// advance steps the odometer of free weights; sets done on wrap-around.
func (e *Enumerator) advance() {
	if e.n == 1 {
		// Single instrument: only one position exists.
		e.done = true
		return
	}

	for i := len(e.free) - 1; i >= 0; i-- {
		e.free[i] += e.grid.Increment
		if e.free[i] <= e.grid.MaxWeight {
			return
		}
		e.free[i] = e.grid.MinWeight
	}
	e.done = true
}

// Fractions converts an integer percent weight vector to decimal fractions
// summing to 1.
func (g WeightGrid) Fractions(weights []int) []float64 {
	fractions := make([]float64, len(weights))
	for i, w := range weights {
		fractions[i] = float64(w) / float64(g.TotalWeight)
	}
	return fractions
}
