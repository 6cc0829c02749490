package frontier

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/mcfolio/internal/domain"
	"github.com/aristath/mcfolio/internal/modules/simulation"
)

// goldenGamma spaces per-candidate seeds far apart in the seed space so the
// random streams of neighboring candidates do not overlap.
const goldenGamma = 0x9E3779B97F4A7C15

// Config holds the recognized frontier search options. Simulations is the
// per-candidate path count, typically much smaller than a full single
// portfolio run since it multiplies with the candidate count.
type Config struct {
	Grid        WeightGrid           `json:"grid"`
	Simulations int                  `json:"num_sims"`
	Years       float64              `json:"years"`
	Frequency   simulation.Frequency `json:"frequency"`
	Rebalancing bool                 `json:"rebalancing"`
	Seed        *uint64              `json:"seed,omitempty"`
	TopN        int                  `json:"top_n"`
	Workers     int                  `json:"-"`
}

// Validate checks the search options before any candidate is simulated.
func (c Config) Validate() error {
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if c.TopN < 1 {
		return domain.ErrConfiguration{Reason: fmt.Sprintf("top_n must be >= 1, got %d", c.TopN)}
	}
	run := simulation.RunConfig{
		Simulations: c.Simulations,
		Years:       c.Years,
		Frequency:   c.Frequency,
	}
	return run.Validate()
}

// Candidate is one evaluated weight vector of the frontier search.
type Candidate struct {
	// Index is the candidate's position in enumeration order; it determines
	// the candidate's random seed and is stable across runs.
	Index int `json:"index"`

	// Weights are integer percent units; Fractions the same vector as
	// decimals summing to 1, index-aligned with the portfolio instruments.
	Weights   []int     `json:"weights"`
	Fractions []float64 `json:"fractions"`

	Result *simulation.Result `json:"result"`
}

// Result is the outcome of one frontier search. Candidates are sorted by
// descending Sharpe ratio; ties break on higher mean return, then lower
// volatility; candidates with an invalid Sharpe ratio sort last.
type Result struct {
	Candidates []Candidate   `json:"candidates"`
	Evaluated  int           `json:"evaluated"`
	Skipped    int           `json:"skipped"`
	Elapsed    time.Duration `json:"elapsed"`
}

// TopBySharpe returns the n best candidates by Sharpe ratio (the result's
// primary order).
func (r *Result) TopBySharpe(n int) []Candidate {
	if n > len(r.Candidates) {
		n = len(r.Candidates)
	}
	return r.Candidates[:n]
}

// TopBySortino returns the n best candidates by Sortino ratio.
func (r *Result) TopBySortino(n int) []Candidate {
	return topBy(r.Candidates, n, func(c Candidate) float64 { return c.Result.SortinoRatio })
}

// TopByCVaR returns the n best candidates by CVaR ratio (mean excess return
// over expected tail loss).
func (r *Result) TopByCVaR(n int) []Candidate {
	return topBy(r.Candidates, n, func(c Candidate) float64 { return c.Result.CVaRRatio })
}

func topBy(candidates []Candidate, n int, metric func(Candidate) float64) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := metric(ranked[i]), metric(ranked[j])
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		if math.IsNaN(a) {
			return false
		}
		return a > b
	})
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// Searcher runs the brute-force frontier search over a base portfolio's
// instrument set.
type Searcher struct {
	aggregator *simulation.Aggregator
	log        zerolog.Logger
}

// NewSearcher creates a frontier searcher on top of an ensemble aggregator.
func NewSearcher(aggregator *simulation.Aggregator, log zerolog.Logger) *Searcher {
	return &Searcher{
		aggregator: aggregator,
		log:        log.With().Str("component", "frontier").Logger(),
	}
}

// Search enumerates every feasible weight vector of the grid, simulates each
// as a candidate portfolio sharing the base portfolio's instruments and
// covariance matrix, and returns the candidates ranked by Sharpe ratio.
//
// Candidates that fail to simulate are skipped and counted, not fatal: one
// infeasible corner of the grid should not abort an hours-long search.
func (s *Searcher) Search(base *domain.Portfolio, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if base.Covariance() == nil {
		return nil, domain.ErrConfiguration{Reason: "portfolio covariance has not been computed"}
	}

	enum, err := NewEnumerator(cfg.Grid, len(base.Instruments))
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

	type job struct {
		index   int
		weights []int
	}

	start := time.Now()

	jobs := make(chan job)
	var mu sync.Mutex
	var candidates []Candidate
	skipped := 0

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for j := range jobs {
				cand, err := s.evaluate(base, cfg, seed, j.index, j.weights)
				if err != nil {
					s.log.Warn().
						Err(err).
						Ints("weights", j.weights).
						Msg("Skipping frontier candidate")
					mu.Lock()
					skipped++
					mu.Unlock()
					continue
				}
				mu.Lock()
				candidates = append(candidates, cand)
				mu.Unlock()
			}
			return nil
		})
	}

	count := 0
	for weights, ok := enum.Next(); ok; weights, ok = enum.Next() {
		jobs <- job{index: count, weights: weights}
		count++
	}
	close(jobs)

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if count == 0 {
		return nil, domain.ErrConfiguration{Reason: "weight grid produced no feasible combinations"}
	}

	sortBySharpe(candidates)

	result := &Result{
		Candidates: candidates,
		Evaluated:  count,
		Skipped:    skipped,
		Elapsed:    time.Since(start),
	}

	s.log.Info().
		Int("candidates", count).
		Int("skipped", skipped).
		Int("simulations_per_candidate", cfg.Simulations).
		Dur("elapsed", result.Elapsed).
		Msg("Frontier search complete")

	return result, nil
}

// evaluate simulates a single weight vector as its own portfolio. The
// candidate reuses the base portfolio's instruments and covariance matrix;
// its seed is derived from the candidate index so that results do not depend
// on worker scheduling.
func (s *Searcher) evaluate(base *domain.Portfolio, cfg Config, seed uint64, index int, weights []int) (Candidate, error) {
	fractions := cfg.Grid.Fractions(weights)

	name := fmt.Sprintf("%s candidate %d", base.Name, index)
	p, err := domain.NewPortfolio(name, base.Instruments, fractions, base.InitialValue, base.RiskFree)
	if err != nil {
		return Candidate{}, err
	}
	if err := p.SetCovariance(base.Covariance()); err != nil {
		return Candidate{}, err
	}

	candidateSeed := seed + uint64(index)*goldenGamma
	run := simulation.RunConfig{
		Simulations: cfg.Simulations,
		Years:       cfg.Years,
		Frequency:   cfg.Frequency,
		Rebalancing: cfg.Rebalancing,
		Seed:        &candidateSeed,
		Workers:     1, // parallelism lives at the candidate level here
	}

	res, err := s.aggregator.Run(p, run)
	if err != nil {
		return Candidate{}, err
	}

	return Candidate{Index: index, Weights: weights, Fractions: fractions, Result: res}, nil
}

// sortBySharpe orders candidates by descending Sharpe ratio; ties break on
// higher mean return, then lower volatility. Invalid Sharpe ratios sort last.
func sortBySharpe(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Result, candidates[j].Result

		if a.SharpeValid != b.SharpeValid {
			return a.SharpeValid
		}
		if a.SharpeValid && a.SharpeRatio != b.SharpeRatio {
			return a.SharpeRatio > b.SharpeRatio
		}
		if a.MeanReturn != b.MeanReturn {
			return a.MeanReturn > b.MeanReturn
		}
		return a.MeanVolatility < b.MeanVolatility
	})
}
