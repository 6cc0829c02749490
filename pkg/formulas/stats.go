package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Variance(data, nil)
}

// CalculateReturns converts prices to periodic percentage returns
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedVolatility calculates annualized volatility from periodic returns.
// Formula: Std Dev of periodic returns × sqrt(periods per year)
func AnnualizedVolatility(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0
	}

	return StdDev(returns) * math.Sqrt(periodsPerYear)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// Covariance calculates the sample covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// CAGR calculates the compound annual growth rate between a starting and a
// terminal value over a horizon in years.
//
// Formula: (terminal/initial)^(1/years) - 1
//
// A non-positive terminal value (possible only when every holding was wiped
// out) is reported as a total loss of -100%.
func CAGR(initial, terminal, years float64) float64 {
	if initial <= 0 || years <= 0 {
		return 0
	}
	if terminal <= 0 {
		return -1
	}

	return math.Pow(terminal/initial, 1.0/years) - 1
}

// CalculateAnnualReturn calculates annualized return from periodic returns.
//
// Formula: ((1+r1)*(1+r2)*...*(1+rN))^(periodsPerYear/N) - 1
//
// This computes the compound annual growth rate from a series of periodic
// returns by first calculating the cumulative return and then annualizing it
// based on the number of periods.
func CalculateAnnualReturn(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0.0
	}

	// Calculate cumulative return: (1+r1)*(1+r2)*...*(1+rN)
	cumulative := 1.0
	for _, r := range returns {
		cumulative *= (1 + r)
	}

	if cumulative <= 0 {
		return -1
	}

	numPeriods := float64(len(returns))

	// For very short series, return the simple cumulative return to avoid
	// extreme annualization
	if numPeriods < 3 {
		return cumulative - 1
	}

	years := numPeriods / periodsPerYear
	return math.Pow(cumulative, 1.0/years) - 1
}

// DownsideDeviation calculates the standard deviation of returns falling
// below the target. Returns at or above the target contribute zero. Used for
// the Sortino ratio denominator.
func DownsideDeviation(returns []float64, target float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	var sumSq float64
	for _, r := range returns {
		if r < target {
			d := r - target
			sumSq += d * d
		}
	}

	return math.Sqrt(sumSq / float64(len(returns)))
}
