package portfolio

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/mcfolio/internal/clients/alphavantage"
	"github.com/aristath/mcfolio/internal/domain"
	"github.com/aristath/mcfolio/internal/modules/frontier"
	"github.com/aristath/mcfolio/internal/modules/history"
	"github.com/aristath/mcfolio/internal/modules/simulation"
	"github.com/aristath/mcfolio/pkg/formulas"
)

// monthsPerYear is the frequency of the cached price history.
const monthsPerYear = 12

// Service wires price history, covariance estimation, the ensemble
// aggregator, and the frontier search behind one API.
type Service struct {
	store      *history.Store
	client     alphavantage.ClientInterface
	covEngine  *simulation.CovarianceEngine
	aggregator *simulation.Aggregator
	searcher   *frontier.Searcher

	riskFree float64
	fromYear int
	log      zerolog.Logger
}

// Config holds service construction parameters.
type Config struct {
	Store        *history.Store
	Client       alphavantage.ClientInterface
	RiskFreeRate float64
	FromYear     int // earliest year of history used for estimation
	Log          zerolog.Logger
}

// NewService creates the portfolio service.
func NewService(cfg Config) *Service {
	log := cfg.Log.With().Str("component", "portfolio").Logger()
	return &Service{
		store:      cfg.Store,
		client:     cfg.Client,
		covEngine:  simulation.NewCovarianceEngine(cfg.Log),
		aggregator: simulation.NewAggregator(cfg.Log),
		searcher:   frontier.NewSearcher(simulation.NewAggregator(cfg.Log), cfg.Log),
		riskFree:   cfg.RiskFreeRate,
		fromYear:   cfg.FromYear,
		log:        log,
	}
}

// Build resolves a definition into a validated portfolio. Instruments
// without explicit mu/sigma are estimated from cached monthly history.
func (s *Service) Build(def Definition) (*domain.Portfolio, error) {
	instruments, err := resolveInstruments(def.Instruments, s.estimateFromHistory)
	if err != nil {
		return nil, err
	}

	riskFree := s.riskFree
	if def.RiskFree != nil {
		riskFree = *def.RiskFree
	}

	initialValue := def.InitialValue
	if initialValue == 0 {
		initialValue = 100000
	}

	return domain.NewPortfolio(def.Name, instruments, def.Weights, initialValue, riskFree)
}

// EnsureHistory fetches and caches monthly price history for every symbol
// the portfolio's covariance needs. Symbols already cached are not
// re-fetched, preserving the API request budget.
func (s *Service) EnsureHistory(ctx context.Context, p *domain.Portfolio) error {
	for _, symbol := range coverageSymbols(p) {
		has, err := s.store.HasMonthlyData(symbol)
		if err != nil {
			return err
		}
		if has {
			continue
		}

		prices, err := s.client.GetMonthlyAdjustedPrices(ctx, symbol)
		if err != nil {
			return fmt.Errorf("failed to fetch history for %s: %w", symbol, err)
		}
		if err := s.store.SyncMonthlyPrices(symbol, prices); err != nil {
			return err
		}
	}
	return nil
}

// CalcCovariance computes the annualized covariance matrix from cached
// monthly history and caches it on the portfolio.
func (s *Service) CalcCovariance(p *domain.Portfolio) error {
	prices, err := s.store.AlignedSeries(coverageSymbols(p), s.fromYear)
	if err != nil {
		return err
	}
	return s.covEngine.ComputeForPortfolio(p, prices, monthsPerYear)
}

// RunSimulation runs a Monte Carlo ensemble for the portfolio, computing the
// covariance first when it is not cached yet.
func (s *Service) RunSimulation(ctx context.Context, p *domain.Portfolio, cfg simulation.RunConfig) (*simulation.Result, error) {
	if p.Covariance() == nil {
		if err := s.EnsureHistory(ctx, p); err != nil {
			return nil, err
		}
		if err := s.CalcCovariance(p); err != nil {
			return nil, err
		}
	}
	return s.aggregator.Run(p, cfg)
}

// BuildEfficientFrontier runs the brute-force frontier search over the
// portfolio's instrument set.
func (s *Service) BuildEfficientFrontier(ctx context.Context, p *domain.Portfolio, cfg frontier.Config) (*frontier.Result, error) {
	if p.Covariance() == nil {
		if err := s.EnsureHistory(ctx, p); err != nil {
			return nil, err
		}
		if err := s.CalcCovariance(p); err != nil {
			return nil, err
		}
	}
	return s.searcher.Search(p, cfg)
}

// estimateFromHistory derives annual mu/sigma for a symbol from its cached
// monthly return series.
func (s *Service) estimateFromHistory(symbol string) (float64, float64, error) {
	prices, err := s.store.GetMonthlyPrices(symbol, s.fromYear)
	if err != nil {
		return 0, 0, err
	}
	if len(prices) < 13 {
		return 0, 0, fmt.Errorf("insufficient history for %s: %d months cached", symbol, len(prices))
	}

	closes := make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.AdjClose
	}

	returns := formulas.CalculateReturns(closes)
	mu := formulas.CalculateAnnualReturn(returns, monthsPerYear)
	sigma := formulas.AnnualizedVolatility(returns, monthsPerYear)

	s.log.Debug().
		Str("symbol", symbol).
		Float64("mu", mu).
		Float64("sigma", sigma).
		Int("months", len(prices)).
		Msg("Estimated instrument statistics from history")

	return mu, sigma, nil
}

// coverageSymbols returns the symbols whose price history the covariance
// computation needs: plain instruments directly, leveraged ones through
// their (transitive) underlying.
func coverageSymbols(p *domain.Portfolio) []string {
	seen := make(map[string]bool)
	var symbols []string

	for _, inst := range p.Instruments {
		for {
			lev, ok := inst.(*domain.LeveragedSecurity)
			if !ok {
				break
			}
			inst = lev.Underlying()
		}
		if !seen[inst.Symbol()] {
			seen[inst.Symbol()] = true
			symbols = append(symbols, inst.Symbol())
		}
	}
	return symbols
}
