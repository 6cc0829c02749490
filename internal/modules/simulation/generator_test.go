package simulation

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mcfolio/internal/domain"
	"github.com/aristath/mcfolio/pkg/formulas"
)

func TestNewReturnModel(t *testing.T) {
	t.Run("valid positive definite", func(t *testing.T) {
		model, err := NewReturnModel(
			[][]float64{{0.04, 0.01}, {0.01, 0.02}},
			[]float64{0.08, 0.05},
		)
		require.NoError(t, err)
		assert.Equal(t, 2, model.Dim())
	})

	t.Run("singular matrix fails fast", func(t *testing.T) {
		// Perfectly correlated duplicate rows: rank 1, not positive definite.
		_, err := NewReturnModel(
			[][]float64{{0.04, 0.04}, {0.04, 0.04}},
			[]float64{0.08, 0.08},
		)
		var singErr domain.ErrSingularCovariance
		require.True(t, errors.As(err, &singErr))
		assert.Equal(t, 2, singErr.Dim)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := NewReturnModel([][]float64{{0.04}}, []float64{0.08, 0.05})
		assert.Error(t, err)
	})

	t.Run("empty matrix", func(t *testing.T) {
		_, err := NewReturnModel(nil, nil)
		assert.Error(t, err)
	})
}

func TestGeneratorMoments(t *testing.T) {
	// Draw many vectors and check the empirical mean and covariance converge
	// to the model inputs.
	covStep := [][]float64{
		{0.0016, 0.0006},
		{0.0006, 0.0009},
	}
	muStep := []float64{0.006, 0.004}

	model, err := NewReturnModel(covStep, muStep)
	require.NoError(t, err)

	gen := model.Generator(rand.NewPCG(42, 0))

	const draws = 200000
	a := make([]float64, draws)
	b := make([]float64, draws)
	vec := make([]float64, 2)
	for i := 0; i < draws; i++ {
		gen.Next(vec)
		a[i] = vec[0]
		b[i] = vec[1]
	}

	assert.InDelta(t, muStep[0], formulas.Mean(a), 5e-4)
	assert.InDelta(t, muStep[1], formulas.Mean(b), 5e-4)
	assert.InDelta(t, covStep[0][0], formulas.Variance(a), 1e-4)
	assert.InDelta(t, covStep[1][1], formulas.Variance(b), 1e-4)
	assert.InDelta(t, covStep[0][1], formulas.Covariance(a, b), 1e-4)
}

func TestGeneratorZeroVolatility(t *testing.T) {
	// A single instrument with tiny variance: every draw stays near mu.
	model, err := NewReturnModel([][]float64{{1e-18}}, []float64{0.01})
	require.NoError(t, err)

	gen := model.Generator(rand.NewPCG(1, 0))
	vec := make([]float64, 1)
	for i := 0; i < 100; i++ {
		gen.Next(vec)
		assert.InDelta(t, 0.01, vec[0], 1e-6)
	}
}

func TestGeneratorDeterminism(t *testing.T) {
	covStep := [][]float64{{0.0016, 0.0006}, {0.0006, 0.0009}}
	muStep := []float64{0.006, 0.004}

	model, err := NewReturnModel(covStep, muStep)
	require.NoError(t, err)

	g1 := model.Generator(rand.NewPCG(7, 3))
	g2 := model.Generator(rand.NewPCG(7, 3))

	v1 := make([]float64, 2)
	v2 := make([]float64, 2)
	for i := 0; i < 1000; i++ {
		g1.Next(v1)
		g2.Next(v2)
		require.Equal(t, v1, v2)
	}
}

func TestGeneratorNextAllocates(t *testing.T) {
	model, err := NewReturnModel([][]float64{{0.01}}, []float64{0.0})
	require.NoError(t, err)

	gen := model.Generator(rand.NewPCG(1, 0))
	out := gen.Next(nil)
	require.Len(t, out, 1)
}
