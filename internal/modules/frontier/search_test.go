package frontier

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mcfolio/internal/domain"
	"github.com/aristath/mcfolio/internal/modules/simulation"
)

func seedPtr(s uint64) *uint64 { return &s }

func basePortfolio(t *testing.T) *domain.Portfolio {
	t.Helper()

	a, err := domain.NewSecurity("Equity", "EQ", 0.08, 0.20)
	require.NoError(t, err)
	b, err := domain.NewSecurity("Bond", "BD", 0.03, 0.05)
	require.NoError(t, err)

	p, err := domain.NewPortfolio("base", []domain.Instrument{a, b}, nil, 100000, 0.02)
	require.NoError(t, err)
	require.NoError(t, p.SetCovariance([][]float64{
		{0.04, 0.002},
		{0.002, 0.0025},
	}))
	return p
}

func newSearcher() *Searcher {
	agg := simulation.NewAggregator(zerolog.Nop())
	return NewSearcher(agg, zerolog.Nop())
}

func searchConfig(grid WeightGrid) Config {
	return Config{
		Grid:        grid,
		Simulations: 50,
		Years:       5,
		Frequency:   simulation.FrequencyMonthly,
		Rebalancing: true,
		Seed:        seedPtr(42),
		TopN:        5,
		Workers:     4,
	}
}

func TestSearch(t *testing.T) {
	grid := WeightGrid{TotalWeight: 100, MinWeight: 0, MaxWeight: 100, Increment: 10}
	res, err := newSearcher().Search(basePortfolio(t), searchConfig(grid))
	require.NoError(t, err)

	assert.Equal(t, 11, res.Evaluated)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.Candidates, 11)

	// Primary order: descending Sharpe ratio.
	for i := 1; i < len(res.Candidates); i++ {
		prev, cur := res.Candidates[i-1].Result, res.Candidates[i].Result
		if prev.SharpeValid && cur.SharpeValid {
			assert.GreaterOrEqual(t, prev.SharpeRatio, cur.SharpeRatio)
		}
	}

	for _, c := range res.Candidates {
		require.Len(t, c.Weights, 2)
		assert.Equal(t, 100, c.Weights[0]+c.Weights[1])
		require.NotNil(t, c.Result)
		assert.Equal(t, 50, c.Result.Simulations)
	}
}

func TestSearchDeterministic(t *testing.T) {
	grid := WeightGrid{TotalWeight: 100, MinWeight: 0, MaxWeight: 100, Increment: 25}
	cfg := searchConfig(grid)

	r1, err := newSearcher().Search(basePortfolio(t), cfg)
	require.NoError(t, err)

	cfg.Workers = 1
	r2, err := newSearcher().Search(basePortfolio(t), cfg)
	require.NoError(t, err)

	require.Equal(t, len(r1.Candidates), len(r2.Candidates))
	for i := range r1.Candidates {
		assert.Equal(t, r1.Candidates[i].Weights, r2.Candidates[i].Weights)
		assert.Equal(t, r1.Candidates[i].Result.SharpeRatio, r2.Candidates[i].Result.SharpeRatio)
		assert.Equal(t, r1.Candidates[i].Result.TerminalValues, r2.Candidates[i].Result.TerminalValues)
	}
}

func TestSearchTopAccessors(t *testing.T) {
	grid := WeightGrid{TotalWeight: 100, MinWeight: 0, MaxWeight: 100, Increment: 20}
	res, err := newSearcher().Search(basePortfolio(t), searchConfig(grid))
	require.NoError(t, err)
	require.Len(t, res.Candidates, 6)

	top := res.TopBySharpe(3)
	require.Len(t, top, 3)
	assert.Equal(t, res.Candidates[0].Weights, top[0].Weights)

	// Asking for more than exists returns everything.
	assert.Len(t, res.TopBySharpe(100), 6)

	sortino := res.TopBySortino(3)
	require.Len(t, sortino, 3)
	assert.GreaterOrEqual(t, sortino[0].Result.SortinoRatio, sortino[1].Result.SortinoRatio)

	cvar := res.TopByCVaR(3)
	require.Len(t, cvar, 3)
}

func TestSearchErrors(t *testing.T) {
	t.Run("missing covariance", func(t *testing.T) {
		a, err := domain.NewSecurity("Equity", "EQ", 0.08, 0.20)
		require.NoError(t, err)
		p, err := domain.NewPortfolio("base", []domain.Instrument{a}, nil, 100000, 0.02)
		require.NoError(t, err)

		_, err = newSearcher().Search(p, searchConfig(DefaultGrid()))
		assert.Error(t, err)
	})

	t.Run("invalid grid", func(t *testing.T) {
		cfg := searchConfig(WeightGrid{TotalWeight: 100, MinWeight: 0, MaxWeight: 100, Increment: 0})
		_, err := newSearcher().Search(basePortfolio(t), cfg)
		assert.Error(t, err)
	})

	t.Run("infeasible grid", func(t *testing.T) {
		cfg := searchConfig(WeightGrid{TotalWeight: 100, MinWeight: 0, MaxWeight: 40, Increment: 20})
		_, err := newSearcher().Search(basePortfolio(t), cfg)
		assert.Error(t, err)
	})

	t.Run("invalid top_n", func(t *testing.T) {
		cfg := searchConfig(DefaultGrid())
		cfg.TopN = 0
		_, err := newSearcher().Search(basePortfolio(t), cfg)
		assert.Error(t, err)
	})
}
