package simulation

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/mcfolio/internal/domain"
)

// CovarianceEngine computes the sample covariance matrix of a portfolio's
// instruments from historical periodic price series.
//
// Convention: sample covariance (N-1 denominator), matching gonum's
// stat.Covariance. The matrix returned by Annualized* methods is scaled to
// annual terms by multiplying by the number of source periods per year; the
// return generator rescales it back down to the simulation step frequency.
type CovarianceEngine struct {
	log zerolog.Logger
}

// NewCovarianceEngine creates a covariance engine.
func NewCovarianceEngine(log zerolog.Logger) *CovarianceEngine {
	return &CovarianceEngine{
		log: log.With().Str("component", "covariance").Logger(),
	}
}

// ReturnSeries builds the per-instrument periodic return series for a
// portfolio, in instrument order, from a map of symbol -> periodic prices.
//
// For a leveraged instrument the series is synthesized from the underlying's
// returns multiplied by the leverage factor; no price series for the
// leveraged symbol itself is required.
//
// All series must be time-aligned and of equal length; a mismatch fails with
// domain.ErrDataAlignment.
func (e *CovarianceEngine) ReturnSeries(p *domain.Portfolio, prices map[string][]float64) ([][]float64, error) {
	series := make([][]float64, len(p.Instruments))
	expected := -1

	for i, inst := range p.Instruments {
		var returns []float64

		// Walk leverage chains down to the base instrument, accumulating the
		// combined factor; only the base needs a price series.
		base := inst
		factor := 1.0
		for {
			lev, ok := base.(*domain.LeveragedSecurity)
			if !ok {
				break
			}
			factor *= lev.Leverage()
			base = lev.Underlying()
		}

		basePrices, ok := prices[base.Symbol()]
		if !ok {
			if base == inst {
				return nil, fmt.Errorf("no price history for %s", inst.Symbol())
			}
			return nil, fmt.Errorf("no price history for %s (underlying of %s)", base.Symbol(), inst.Symbol())
		}

		if factor == 1.0 {
			returns = periodicReturns(basePrices)
		} else {
			returns = scaleReturns(periodicReturns(basePrices), factor)
		}

		if expected == -1 {
			expected = len(returns)
		} else if len(returns) != expected {
			return nil, domain.ErrDataAlignment{
				Symbol:   inst.Symbol(),
				Expected: expected,
				Actual:   len(returns),
			}
		}

		series[i] = returns
	}

	return series, nil
}

// SampleCovariance computes the sample covariance matrix of the given return
// series (one series per instrument, equal lengths, at least two
// observations). The result is symmetric positive semi-definite by
// construction and expressed at the frequency of the input series.
func (e *CovarianceEngine) SampleCovariance(series [][]float64) ([][]float64, error) {
	n := len(series)
	if n == 0 {
		return nil, fmt.Errorf("no return series provided")
	}

	obs := len(series[0])
	if obs < 2 {
		return nil, fmt.Errorf("insufficient data: need at least 2 observations, got %d", obs)
	}
	for i := 1; i < n; i++ {
		if len(series[i]) != obs {
			return nil, domain.ErrDataAlignment{Expected: obs, Actual: len(series[i])}
		}
	}

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := stat.Covariance(series[i], series[j], nil)
			cov[i][j] = c
			if i != j {
				cov[j][i] = c
			}
		}
	}

	return cov, nil
}

// AnnualizedCovariance computes the sample covariance of the series and
// scales it to annual terms given how many source periods make up a year
// (e.g. 12 for monthly price history).
func (e *CovarianceEngine) AnnualizedCovariance(series [][]float64, sourcePeriodsPerYear int) ([][]float64, error) {
	if sourcePeriodsPerYear <= 0 {
		return nil, domain.ErrConfiguration{Reason: fmt.Sprintf("source periods per year must be > 0, got %d", sourcePeriodsPerYear)}
	}

	cov, err := e.SampleCovariance(series)
	if err != nil {
		return nil, err
	}

	scale := float64(sourcePeriodsPerYear)
	for i := range cov {
		for j := range cov[i] {
			cov[i][j] *= scale
		}
	}

	e.log.Debug().
		Int("dimension", len(cov)).
		Int("observations", len(series[0])).
		Int("source_periods_per_year", sourcePeriodsPerYear).
		Msg("Computed annualized covariance matrix")

	return cov, nil
}

// ComputeForPortfolio builds return series from prices, computes the
// annualized covariance matrix, and caches it on the portfolio.
func (e *CovarianceEngine) ComputeForPortfolio(p *domain.Portfolio, prices map[string][]float64, sourcePeriodsPerYear int) error {
	series, err := e.ReturnSeries(p, prices)
	if err != nil {
		return err
	}

	cov, err := e.AnnualizedCovariance(series, sourcePeriodsPerYear)
	if err != nil {
		return err
	}

	return p.SetCovariance(cov)
}

// periodicReturns converts a price series to periodic percentage returns:
// r_t = p_t/p_{t-1} - 1.
func periodicReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = prices[i]/prices[i-1] - 1
		}
	}
	return returns
}

func scaleReturns(returns []float64, factor float64) []float64 {
	scaled := make([]float64, len(returns))
	for i, r := range returns {
		scaled[i] = r * factor
	}
	return scaled
}
