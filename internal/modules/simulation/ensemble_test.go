package simulation

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mcfolio/internal/domain"
)

func seedPtr(s uint64) *uint64 { return &s }

func TestRunConfigValidate(t *testing.T) {
	valid := RunConfig{Simulations: 100, Years: 10, Frequency: FrequencyMonthly}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		cfg  RunConfig
	}{
		{"zero simulations", RunConfig{Simulations: 0, Years: 10, Frequency: FrequencyMonthly}},
		{"negative years", RunConfig{Simulations: 100, Years: -1, Frequency: FrequencyMonthly}},
		{"unknown frequency", RunConfig{Simulations: 100, Years: 10, Frequency: "weekly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			var cfgErr domain.ErrConfiguration
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestAggregatorRun(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())

	p := testPortfolio(t, []domain.Instrument{
		plainSecurity(t, "AAA", 0.08, 0.20),
		plainSecurity(t, "BBB", 0.04, 0.10),
	})
	require.NoError(t, p.SetCovariance([][]float64{
		{0.04, 0.005},
		{0.005, 0.01},
	}))

	cfg := RunConfig{
		Simulations: 500,
		Years:       10,
		Frequency:   FrequencyMonthly,
		Rebalancing: true,
		Seed:        seedPtr(42),
	}

	res, err := agg.Run(p, cfg)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, res.RunID)
	assert.Equal(t, 500, res.Simulations)
	assert.Equal(t, 120, res.Steps)
	require.Len(t, res.TerminalValues, 500)
	require.Len(t, res.AnnualizedReturns, 500)
	assert.Nil(t, res.Paths)

	for _, v := range res.TerminalValues {
		assert.GreaterOrEqual(t, v, 0.0)
	}

	// Ensemble mean should land in the neighborhood of the weighted expected
	// return (6%), loose tolerance for sampling noise.
	assert.InDelta(t, 0.06, res.MeanReturn, 0.02)
	assert.Greater(t, res.MeanVolatility, 0.0)
	assert.True(t, res.SharpeValid)
	assert.False(t, math.IsNaN(res.SharpeRatio))
	assert.Less(t, res.CVaR95, res.MeanReturn)
}

func TestAggregatorRunDeterministic(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())

	makePortfolio := func() *domain.Portfolio {
		p := testPortfolio(t, []domain.Instrument{
			plainSecurity(t, "AAA", 0.08, 0.20),
			plainSecurity(t, "BBB", 0.04, 0.10),
		})
		require.NoError(t, p.SetCovariance([][]float64{
			{0.04, 0.005},
			{0.005, 0.01},
		}))
		return p
	}

	base := RunConfig{
		Simulations: 200,
		Years:       5,
		Frequency:   FrequencyMonthly,
		Seed:        seedPtr(1234),
	}

	// Same seed must reproduce terminal values bit for bit, regardless of the
	// worker count used to schedule the paths.
	one := base
	one.Workers = 1
	many := base
	many.Workers = 8

	r1, err := agg.Run(makePortfolio(), one)
	require.NoError(t, err)
	r2, err := agg.Run(makePortfolio(), many)
	require.NoError(t, err)

	assert.Equal(t, r1.TerminalValues, r2.TerminalValues)
	assert.Equal(t, r1.MeanReturn, r2.MeanReturn)
	assert.Equal(t, r1.SharpeRatio, r2.SharpeRatio)
	assert.NotEqual(t, r1.RunID, r2.RunID)
}

func TestAggregatorRunZeroVolatilitySharpe(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())

	// One path over one annual step of a near-riskless instrument: the sample
	// standard deviation of a single annualized return is undefined, so every
	// risk-adjusted ratio must come back flagged invalid instead of panicking
	// or dividing by zero.
	p := testPortfolio(t, []domain.Instrument{plainSecurity(t, "CASH", 0.07, 0.0)})
	require.NoError(t, p.SetCovariance([][]float64{{1e-30}}))

	cfg := RunConfig{
		Simulations: 1,
		Years:       1,
		Frequency:   FrequencyAnnual,
		Seed:        seedPtr(7),
	}

	res, err := agg.Run(p, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 0.07, res.MeanReturn, 1e-6)
	assert.False(t, res.SharpeValid)
	assert.True(t, math.IsNaN(res.SharpeRatio))
	assert.True(t, math.IsNaN(res.SortinoRatio))
	assert.True(t, math.IsNaN(res.CVaRRatio))
}

func TestAggregatorRunKeepPaths(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())

	p := testPortfolio(t, []domain.Instrument{plainSecurity(t, "AAA", 0.07, 0.15)})
	require.NoError(t, p.SetCovariance([][]float64{{0.0225}}))

	cfg := RunConfig{
		Simulations: 20,
		Years:       2,
		Frequency:   FrequencyQuarterly,
		Seed:        seedPtr(9),
		KeepPaths:   true,
	}

	res, err := agg.Run(p, cfg)
	require.NoError(t, err)
	require.Len(t, res.Paths, 20)
	for _, path := range res.Paths {
		require.Len(t, path, res.Steps+1)
		assert.Equal(t, p.InitialValue, path[0])
	}
}

func TestAggregatorRunErrors(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())

	t.Run("missing covariance", func(t *testing.T) {
		p := testPortfolio(t, []domain.Instrument{plainSecurity(t, "AAA", 0.07, 0.15)})
		_, err := agg.Run(p, RunConfig{Simulations: 10, Years: 1, Frequency: FrequencyMonthly})
		var cfgErr domain.ErrConfiguration
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("singular covariance", func(t *testing.T) {
		p := testPortfolio(t, []domain.Instrument{
			plainSecurity(t, "AAA", 0.08, 0.20),
			plainSecurity(t, "BBB", 0.08, 0.20),
		})
		// Perfect correlation: rank deficient, must refuse to simulate.
		require.NoError(t, p.SetCovariance([][]float64{
			{0.04, 0.04},
			{0.04, 0.04},
		}))

		_, err := agg.Run(p, RunConfig{Simulations: 10, Years: 1, Frequency: FrequencyMonthly})
		var singErr domain.ErrSingularCovariance
		assert.True(t, errors.As(err, &singErr))
	})

	t.Run("invalid config", func(t *testing.T) {
		p := testPortfolio(t, []domain.Instrument{plainSecurity(t, "AAA", 0.07, 0.15)})
		require.NoError(t, p.SetCovariance([][]float64{{0.0225}}))

		_, err := agg.Run(p, RunConfig{Simulations: -1, Years: 1, Frequency: FrequencyMonthly})
		assert.Error(t, err)
	})
}

func TestFrequencySteps(t *testing.T) {
	assert.Equal(t, 252, FrequencyDaily.StepsPerYear())
	assert.Equal(t, 12, FrequencyMonthly.StepsPerYear())
	assert.Equal(t, 4, FrequencyQuarterly.StepsPerYear())
	assert.Equal(t, 1, FrequencyAnnual.StepsPerYear())

	_, err := ParseFrequency("hourly")
	assert.Error(t, err)

	f, err := ParseFrequency("daily")
	require.NoError(t, err)
	assert.Equal(t, FrequencyDaily, f)
}
