package charts

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mcfolio/internal/domain"
	"github.com/aristath/mcfolio/internal/modules/frontier"
	"github.com/aristath/mcfolio/internal/modules/simulation"
)

func sampleResult(t *testing.T, keepPaths bool) *simulation.Result {
	t.Helper()

	sec, err := domain.NewSecurity("Equity", "EQ", 0.08, 0.20)
	require.NoError(t, err)
	p, err := domain.NewPortfolio("test", []domain.Instrument{sec}, nil, 100000, 0.02)
	require.NoError(t, err)
	require.NoError(t, p.SetCovariance([][]float64{{0.04}}))

	seed := uint64(42)
	res, err := simulation.NewAggregator(zerolog.Nop()).Run(p, simulation.RunConfig{
		Simulations: 60,
		Years:       3,
		Frequency:   simulation.FrequencyMonthly,
		Seed:        &seed,
		KeepPaths:   keepPaths,
	})
	require.NoError(t, err)
	return res
}

func TestRenderPaths(t *testing.T) {
	svc := NewService(zerolog.Nop())

	img, err := svc.RenderPaths(sampleResult(t, true), "Simulated paths")
	require.NoError(t, err)
	assert.NotEmpty(t, img)
	// PNG magic bytes
	assert.Equal(t, byte(0x89), img[0])
	assert.Equal(t, byte('P'), img[1])
}

func TestRenderPathsWithoutRetainedPaths(t *testing.T) {
	svc := NewService(zerolog.Nop())

	_, err := svc.RenderPaths(sampleResult(t, false), "Simulated paths")
	assert.Error(t, err)
}

func TestRenderTerminalHistogram(t *testing.T) {
	svc := NewService(zerolog.Nop())

	img, err := svc.RenderTerminalHistogram(sampleResult(t, false), "Terminal values")
	require.NoError(t, err)
	assert.NotEmpty(t, img)
}

func TestRenderFrontier(t *testing.T) {
	svc := NewService(zerolog.Nop())

	sec1, err := domain.NewSecurity("Equity", "EQ", 0.08, 0.20)
	require.NoError(t, err)
	sec2, err := domain.NewSecurity("Bond", "BD", 0.03, 0.05)
	require.NoError(t, err)
	p, err := domain.NewPortfolio("test", []domain.Instrument{sec1, sec2}, nil, 100000, 0.02)
	require.NoError(t, err)
	require.NoError(t, p.SetCovariance([][]float64{{0.04, 0.002}, {0.002, 0.0025}}))

	seed := uint64(7)
	searcher := frontier.NewSearcher(simulation.NewAggregator(zerolog.Nop()), zerolog.Nop())
	res, err := searcher.Search(p, frontier.Config{
		Grid:        frontier.WeightGrid{TotalWeight: 100, MinWeight: 0, MaxWeight: 100, Increment: 25},
		Simulations: 30,
		Years:       3,
		Frequency:   simulation.FrequencyMonthly,
		Seed:        &seed,
		TopN:        3,
	})
	require.NoError(t, err)

	img, err := svc.RenderFrontier(res, "Efficient frontier")
	require.NoError(t, err)
	assert.NotEmpty(t, img)
}

func TestRenderFrontierEmpty(t *testing.T) {
	svc := NewService(zerolog.Nop())
	_, err := svc.RenderFrontier(&frontier.Result{}, "empty")
	assert.Error(t, err)
}
