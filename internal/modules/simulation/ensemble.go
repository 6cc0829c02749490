package simulation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/mcfolio/internal/domain"
	"github.com/aristath/mcfolio/pkg/formulas"
)

// RunConfig holds the recognized simulation run options.
type RunConfig struct {
	Simulations int       `json:"simulations"`
	Years       float64   `json:"years"`
	Frequency   Frequency `json:"frequency"`
	Rebalancing bool      `json:"rebalancing"`

	// Seed makes a run bit-wise reproducible. Without it, runs are only
	// statistically reproducible.
	Seed *uint64 `json:"seed,omitempty"`

	// KeepPaths retains the full per-step value sequence of every path.
	KeepPaths bool `json:"keep_paths,omitempty"`

	// Workers bounds the parallel fan-out; 0 means GOMAXPROCS.
	Workers int `json:"-"`
}

// Validate checks the run options before any simulation starts.
func (c RunConfig) Validate() error {
	if c.Simulations <= 0 {
		return domain.ErrConfiguration{Reason: fmt.Sprintf("simulations must be > 0, got %d", c.Simulations)}
	}
	if c.Years <= 0 || math.IsNaN(c.Years) || math.IsInf(c.Years, 0) {
		return domain.ErrConfiguration{Reason: fmt.Sprintf("years must be > 0, got %v", c.Years)}
	}
	if _, err := ParseFrequency(string(c.Frequency)); err != nil {
		return err
	}
	return nil
}

// Result is the outcome of one ensemble run, owned by the portfolio that
// produced it.
type Result struct {
	RunID       uuid.UUID `json:"run_id"`
	Simulations int       `json:"simulations"`
	Years       float64   `json:"years"`
	Frequency   Frequency `json:"frequency"`
	Rebalancing bool      `json:"rebalancing"`
	Steps       int       `json:"steps"`

	TerminalValues    []float64 `json:"-"`
	AnnualizedReturns []float64 `json:"-"`

	// MeanReturn and MeanVolatility are the mean and sample standard
	// deviation of the per-path annualized (CAGR) returns.
	MeanReturn     float64 `json:"mean_return"`
	MeanVolatility float64 `json:"mean_volatility"`

	// SharpeRatio is (MeanReturn - rf) / MeanVolatility. When volatility is
	// zero the ratio is undefined: SharpeValid is false and the value is NaN.
	SharpeRatio float64 `json:"sharpe_ratio"`
	SharpeValid bool    `json:"sharpe_valid"`

	SortinoRatio float64 `json:"sortino_ratio"`
	CVaR95       float64 `json:"cvar_95"`
	CVaRRatio    float64 `json:"cvar_ratio"`

	// Paths holds the per-step value sequence of every run when requested.
	Paths [][]float64 `json:"-"`
}

// Aggregator executes the path simulator many independent times and derives
// ensemble statistics. Paths are mutually independent: each gets its own
// random stream derived from (seed, path index), so a seeded run produces
// bit-identical sequences regardless of worker count.
type Aggregator struct {
	log zerolog.Logger
}

// NewAggregator creates an ensemble aggregator.
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		log: log.With().Str("component", "ensemble").Logger(),
	}
}

// Run simulates the portfolio cfg.Simulations times and aggregates the
// outcomes. The portfolio must have a cached covariance matrix.
func (a *Aggregator) Run(p *domain.Portfolio, cfg RunConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cov := p.Covariance()
	if cov == nil {
		return nil, domain.ErrConfiguration{Reason: "portfolio covariance has not been computed"}
	}

	stepsPerYear := cfg.Frequency.StepsPerYear()
	steps := int(math.Round(cfg.Years * float64(stepsPerYear)))
	if steps < 1 {
		return nil, domain.ErrConfiguration{Reason: "horizon too short for the chosen frequency"}
	}

	// Scale annual statistics down to per-step terms. The mean uses simple
	// division, consistent with the normal (not log-normal) return model.
	n := len(p.Instruments)
	covStep := make([][]float64, n)
	muStep := make([]float64, n)
	for i := 0; i < n; i++ {
		covStep[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			covStep[i][j] = cov[i][j] / float64(stepsPerYear)
		}
		muStep[i] = p.Instruments[i].EffectiveMu() / float64(stepsPerYear)
	}

	// Factor once; fails fast on a non-positive-definite matrix before any
	// path is simulated.
	model, err := NewReturnModel(covStep, muStep)
	if err != nil {
		return nil, err
	}

	seed := uint64(time.Now().UnixNano())
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	terminals := make([]float64, cfg.Simulations)
	var paths [][]float64
	if cfg.KeepPaths {
		paths = make([][]float64, cfg.Simulations)
	}

	start := time.Now()

	// Every unit of work reads shared immutable inputs and writes only to
	// its own output slot, so no locking is needed.
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < cfg.Simulations; i++ {
		g.Go(func() error {
			gen := model.Generator(rand.NewPCG(seed, uint64(i)))
			path := SimulatePath(gen, p.TargetWeights, p.InitialValue, steps, cfg.Rebalancing, cfg.KeepPaths)
			terminals[i] = path.Terminal
			if cfg.KeepPaths {
				paths[i] = path.Values
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:          uuid.New(),
		Simulations:    cfg.Simulations,
		Years:          cfg.Years,
		Frequency:      cfg.Frequency,
		Rebalancing:    cfg.Rebalancing,
		Steps:          steps,
		TerminalValues: terminals,
		Paths:          paths,
	}

	annualized := make([]float64, cfg.Simulations)
	for i, terminal := range terminals {
		annualized[i] = formulas.CAGR(p.InitialValue, terminal, cfg.Years)
	}
	result.AnnualizedReturns = annualized

	result.MeanReturn = formulas.Mean(annualized)
	result.MeanVolatility = formulas.StdDev(annualized)

	if result.MeanVolatility > 0 {
		result.SharpeRatio = (result.MeanReturn - p.RiskFree) / result.MeanVolatility
		result.SharpeValid = true
	} else {
		// Zero-volatility ensembles have an undefined risk-adjusted ratio.
		// Report it as invalid rather than dividing by zero.
		result.SharpeRatio = math.NaN()
		result.SharpeValid = false
		a.log.Warn().
			Str("portfolio", p.Name).
			Msg("Zero ensemble volatility, Sharpe ratio undefined")
	}

	downside := formulas.DownsideDeviation(annualized, p.RiskFree)
	if downside > 0 {
		result.SortinoRatio = (result.MeanReturn - p.RiskFree) / downside
	} else {
		result.SortinoRatio = math.NaN()
	}

	result.CVaR95 = formulas.CalculateCVaR(annualized, 0.95)
	if result.CVaR95 < 0 {
		result.CVaRRatio = (result.MeanReturn - p.RiskFree) / math.Abs(result.CVaR95)
	} else {
		result.CVaRRatio = math.NaN()
	}

	a.log.Info().
		Str("portfolio", p.Name).
		Int("simulations", cfg.Simulations).
		Int("steps", steps).
		Float64("mean_return", result.MeanReturn).
		Float64("mean_volatility", result.MeanVolatility).
		Dur("elapsed", time.Since(start)).
		Msg("Ensemble run complete")

	return result, nil
}
