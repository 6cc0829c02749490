package domain

import (
	"fmt"
	"math"
)

// WeightSumTolerance is the tolerance used when validating that target
// weights sum to 1.
const WeightSumTolerance = 1e-4

// Portfolio is an ordered set of instruments with target weights.
//
// The covariance matrix is cached state: its indices correspond 1:1 and
// in-order with the instrument list, and it must be recomputed before any
// simulation run that follows a change to the instrument set.
type Portfolio struct {
	Name          string
	Instruments   []Instrument
	TargetWeights []float64
	InitialValue  float64
	RiskFree      float64

	covariance [][]float64 // annualized, index-aligned with Instruments
}

// NewPortfolio creates a validated portfolio. When weights is nil the
// portfolio is equal-weighted. All validation failures are ErrConfiguration.
func NewPortfolio(name string, instruments []Instrument, weights []float64, initialValue, riskFree float64) (*Portfolio, error) {
	if len(instruments) == 0 {
		return nil, ErrConfiguration{Reason: "portfolio has no instruments"}
	}
	if initialValue <= 0 || math.IsNaN(initialValue) || math.IsInf(initialValue, 0) {
		return nil, ErrConfiguration{Reason: fmt.Sprintf("initial value must be > 0, got %v", initialValue)}
	}
	if math.IsNaN(riskFree) || math.IsInf(riskFree, 0) {
		return nil, ErrConfiguration{Reason: "risk-free rate must be finite"}
	}

	// Equal weights by default
	if weights == nil {
		weights = make([]float64, len(instruments))
		for i := range weights {
			weights[i] = 1.0 / float64(len(instruments))
		}
	}

	if err := ValidateWeights(weights, len(instruments)); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(instruments))
	for _, inst := range instruments {
		if seen[inst.Symbol()] {
			return nil, ErrConfiguration{Reason: fmt.Sprintf("duplicate instrument %s", inst.Symbol())}
		}
		seen[inst.Symbol()] = true
	}

	return &Portfolio{
		Name:          name,
		Instruments:   instruments,
		TargetWeights: weights,
		InitialValue:  initialValue,
		RiskFree:      riskFree,
	}, nil
}

// ValidateWeights checks that a weight vector matches the instrument count,
// every weight lies in [0,1], and the weights sum to 1 within tolerance.
func ValidateWeights(weights []float64, instrumentCount int) error {
	if len(weights) != instrumentCount {
		return ErrConfiguration{Reason: fmt.Sprintf("%d weights for %d instruments", len(weights), instrumentCount)}
	}

	sum := 0.0
	for i, w := range weights {
		if math.IsNaN(w) || w < 0 || w > 1 {
			return ErrConfiguration{Reason: fmt.Sprintf("weight %d out of range [0,1]: %v", i, w)}
		}
		sum += w
	}
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return ErrConfiguration{Reason: fmt.Sprintf("weights sum to %v, expected 1", sum)}
	}

	return nil
}

// SetCovariance caches the annualized covariance matrix for this portfolio.
// The matrix must be square with dimension equal to the instrument count.
func (p *Portfolio) SetCovariance(cov [][]float64) error {
	n := len(p.Instruments)
	if len(cov) != n {
		return ErrConfiguration{Reason: fmt.Sprintf("covariance dimension %d does not match %d instruments", len(cov), n)}
	}
	for i := range cov {
		if len(cov[i]) != n {
			return ErrConfiguration{Reason: fmt.Sprintf("covariance row %d has %d columns, expected %d", i, len(cov[i]), n)}
		}
	}

	p.covariance = cov
	return nil
}

// Covariance returns the cached annualized covariance matrix, or nil when it
// has not been computed (or was invalidated).
func (p *Portfolio) Covariance() [][]float64 { return p.covariance }

// InvalidateCovariance discards the cached covariance matrix. Must be called
// whenever the instrument set changes.
func (p *Portfolio) InvalidateCovariance() { p.covariance = nil }

// Symbols returns the instrument symbols in portfolio order.
func (p *Portfolio) Symbols() []string {
	symbols := make([]string, len(p.Instruments))
	for i, inst := range p.Instruments {
		symbols[i] = inst.Symbol()
	}
	return symbols
}
