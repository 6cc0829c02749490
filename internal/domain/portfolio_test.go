package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstruments(t *testing.T) []Instrument {
	t.Helper()

	spy, err := NewSecurity("S&P 500", "SPY", 0.08, 0.20)
	require.NoError(t, err)
	tlt, err := NewSecurity("20y Treasuries", "TLT", 0.03, 0.12)
	require.NoError(t, err)

	return []Instrument{spy, tlt}
}

func TestNewPortfolio(t *testing.T) {
	instruments := testInstruments(t)

	t.Run("valid portfolio", func(t *testing.T) {
		p, err := NewPortfolio("60/40", instruments, []float64{0.6, 0.4}, 100000, 0.02)
		require.NoError(t, err)
		assert.Equal(t, []string{"SPY", "TLT"}, p.Symbols())
	})

	t.Run("nil weights means equal weighting", func(t *testing.T) {
		p, err := NewPortfolio("equal", instruments, nil, 100000, 0.02)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, p.TargetWeights[0], 1e-12)
		assert.InDelta(t, 0.5, p.TargetWeights[1], 1e-12)
	})

	t.Run("weights must sum to one", func(t *testing.T) {
		_, err := NewPortfolio("bad", instruments, []float64{0.6, 0.6}, 100000, 0.02)
		require.Error(t, err)
		assert.IsType(t, ErrConfiguration{}, err)
	})

	t.Run("weight count must match instrument count", func(t *testing.T) {
		_, err := NewPortfolio("bad", instruments, []float64{1.0}, 100000, 0.02)
		assert.Error(t, err)
	})

	t.Run("weights outside [0,1] are rejected", func(t *testing.T) {
		_, err := NewPortfolio("bad", instruments, []float64{1.5, -0.5}, 100000, 0.02)
		assert.Error(t, err)
	})

	t.Run("initial value must be positive", func(t *testing.T) {
		_, err := NewPortfolio("bad", instruments, nil, 0, 0.02)
		assert.Error(t, err)
	})

	t.Run("duplicate instruments are rejected", func(t *testing.T) {
		dup := []Instrument{instruments[0], instruments[0]}
		_, err := NewPortfolio("bad", dup, nil, 100000, 0.02)
		assert.Error(t, err)
	})
}

func TestPortfolioCovarianceCache(t *testing.T) {
	instruments := testInstruments(t)
	p, err := NewPortfolio("60/40", instruments, []float64{0.6, 0.4}, 100000, 0.02)
	require.NoError(t, err)

	assert.Nil(t, p.Covariance())

	cov := [][]float64{
		{0.04, 0.002},
		{0.002, 0.0144},
	}
	require.NoError(t, p.SetCovariance(cov))
	assert.Equal(t, cov, p.Covariance())

	p.InvalidateCovariance()
	assert.Nil(t, p.Covariance())

	// Wrong dimensions are rejected.
	err = p.SetCovariance([][]float64{{0.04}})
	assert.Error(t, err)

	err = p.SetCovariance([][]float64{{0.04, 0.1}, {0.1}})
	assert.Error(t, err)
}
