package simulation

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nearDeterministicGenerator builds a generator whose draws are pinned to the
// given per-step means by using negligible variance, so path arithmetic can be
// checked against closed-form compounding.
func nearDeterministicGenerator(t *testing.T, muStep []float64) *CorrelatedReturnGenerator {
	t.Helper()

	n := len(muStep)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
		cov[i][i] = 1e-20
	}

	model, err := NewReturnModel(cov, muStep)
	require.NoError(t, err)
	return model.Generator(rand.NewPCG(1, 0))
}

func TestSimulatePathSingleInstrumentCompounding(t *testing.T) {
	gen := nearDeterministicGenerator(t, []float64{0.01})

	path := SimulatePath(gen, []float64{1.0}, 1000, 12, false, false)

	expected := 1000 * math.Pow(1.01, 12)
	assert.InDelta(t, expected, path.Terminal, 1e-4)
	assert.Nil(t, path.Values)
}

func TestSimulatePathKeepsValues(t *testing.T) {
	gen := nearDeterministicGenerator(t, []float64{0.02})

	path := SimulatePath(gen, []float64{1.0}, 500, 4, false, true)

	require.Len(t, path.Values, 5)
	assert.Equal(t, 500.0, path.Values[0])
	assert.Equal(t, path.Terminal, path.Values[len(path.Values)-1])
	for i := 1; i < len(path.Values); i++ {
		assert.Greater(t, path.Values[i], path.Values[i-1])
	}
}

func TestSimulatePathRebalancing(t *testing.T) {
	// Two instruments with divergent deterministic returns. Without
	// rebalancing each sleeve compounds independently; with rebalancing the
	// portfolio compounds at the weighted per-step return.
	mu := []float64{0.02, -0.01}
	weights := []float64{0.5, 0.5}
	const initial = 10000.0
	const steps = 24

	drift := SimulatePath(nearDeterministicGenerator(t, mu), weights, initial, steps, false, false)
	rebal := SimulatePath(nearDeterministicGenerator(t, mu), weights, initial, steps, true, false)

	wantDrift := initial * (0.5*math.Pow(1.02, steps) + 0.5*math.Pow(0.99, steps))
	wantRebal := initial * math.Pow(1+0.5*0.02+0.5*(-0.01), steps)

	assert.InDelta(t, wantDrift, drift.Terminal, 1e-3)
	assert.InDelta(t, wantRebal, rebal.Terminal, 1e-3)
	assert.NotEqual(t, drift.Terminal, rebal.Terminal)
}

func TestSimulatePathRebalancingNoOpForSingleInstrument(t *testing.T) {
	drift := SimulatePath(nearDeterministicGenerator(t, []float64{0.015}), []float64{1.0}, 1000, 12, false, false)
	rebal := SimulatePath(nearDeterministicGenerator(t, []float64{0.015}), []float64{1.0}, 1000, 12, true, false)

	assert.InDelta(t, drift.Terminal, rebal.Terminal, 1e-9)
}

func TestSimulatePathClampsReturnsAtTotalLoss(t *testing.T) {
	// A per-step mean below -100% must floor at -100%, never flip the value
	// negative.
	gen := nearDeterministicGenerator(t, []float64{-2.0})

	path := SimulatePath(gen, []float64{1.0}, 1000, 3, false, true)

	assert.Equal(t, 0.0, path.Terminal)
	for _, v := range path.Values[1:] {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}
