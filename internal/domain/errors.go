package domain

import "fmt"

// ErrConfiguration indicates an invalid portfolio or run configuration
// (mismatched instrument/weight counts, weights outside [0,1], bad horizon).
// Detected before any simulation starts, so a run is never partially executed.
type ErrConfiguration struct {
	Reason string
}

func (e ErrConfiguration) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// ErrDataAlignment indicates unequal-length or misaligned historical return
// series across instruments. Raised by the covariance engine.
type ErrDataAlignment struct {
	Symbol   string
	Expected int
	Actual   int
}

func (e ErrDataAlignment) Error() string {
	return fmt.Sprintf("misaligned return series for %s: %d observations, expected %d", e.Symbol, e.Actual, e.Expected)
}

// ErrSingularCovariance indicates a covariance matrix that is not positive
// definite (e.g., duplicate instruments) and therefore cannot be factored for
// correlated sampling. Retrying with the same input cannot succeed.
type ErrSingularCovariance struct {
	Dim int
}

func (e ErrSingularCovariance) Error() string {
	return fmt.Sprintf("covariance matrix (%dx%d) is not positive definite", e.Dim, e.Dim)
}
