package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecurity(t *testing.T) {
	t.Run("valid security", func(t *testing.T) {
		s, err := NewSecurity("S&P 500", "SPY", 0.08, 0.20)
		require.NoError(t, err)
		assert.Equal(t, "SPY", s.Symbol())
		assert.Equal(t, 0.08, s.EffectiveMu())
		assert.Equal(t, 0.20, s.EffectiveSigma())
	})

	t.Run("rejects negative sigma", func(t *testing.T) {
		_, err := NewSecurity("Bad", "BAD", 0.08, -0.1)
		require.Error(t, err)
		assert.IsType(t, ErrConfiguration{}, err)
	})

	t.Run("rejects non-finite mu", func(t *testing.T) {
		_, err := NewSecurity("Bad", "BAD", math.NaN(), 0.1)
		assert.Error(t, err)

		_, err = NewSecurity("Bad", "BAD", math.Inf(1), 0.1)
		assert.Error(t, err)
	})

	t.Run("rejects empty symbol", func(t *testing.T) {
		_, err := NewSecurity("Bad", "", 0.08, 0.2)
		assert.Error(t, err)
	})
}

func TestLeveragedSecurity(t *testing.T) {
	underlying, err := NewSecurity("S&P 500", "SPY", 0.08, 0.20)
	require.NoError(t, err)

	t.Run("mu and sigma scale with leverage", func(t *testing.T) {
		lev, err := NewLeveragedSecurity("2x S&P 500", "SSO", underlying, 2.0)
		require.NoError(t, err)

		assert.InDelta(t, 0.16, lev.EffectiveMu(), 1e-12)
		assert.InDelta(t, 0.40, lev.EffectiveSigma(), 1e-12)
	})

	t.Run("inverse leverage keeps sigma positive", func(t *testing.T) {
		inv, err := NewLeveragedSecurity("Inverse S&P 500", "SH", underlying, -1.0)
		require.NoError(t, err)

		assert.InDelta(t, -0.08, inv.EffectiveMu(), 1e-12)
		assert.InDelta(t, 0.20, inv.EffectiveSigma(), 1e-12)
	})

	t.Run("derived values track the underlying, not a stored copy", func(t *testing.T) {
		lev, err := NewLeveragedSecurity("3x S&P 500", "UPRO", underlying, 3.0)
		require.NoError(t, err)
		assert.Equal(t, Instrument(underlying), lev.Underlying())
		assert.Equal(t, 3.0, lev.Leverage())
	})

	t.Run("rejects nil underlying", func(t *testing.T) {
		_, err := NewLeveragedSecurity("Bad", "BAD", nil, 2.0)
		assert.Error(t, err)
	})

	t.Run("rejects zero leverage", func(t *testing.T) {
		_, err := NewLeveragedSecurity("Bad", "BAD", underlying, 0)
		assert.Error(t, err)
	})
}
