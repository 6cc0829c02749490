// Package reports writes simulation and frontier run artifacts (a plain
// text report plus rendered charts) to timestamped run directories.
package reports

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/mcfolio/internal/domain"
	"github.com/aristath/mcfolio/internal/modules/charts"
	"github.com/aristath/mcfolio/internal/modules/frontier"
	"github.com/aristath/mcfolio/internal/modules/simulation"
)

// Writer persists run reports under a base directory, one subdirectory per
// run: runs/simulate_<timestamp>/ and runs/frontier_<timestamp>/.
type Writer struct {
	baseDir string
	charts  *charts.Service
	log     zerolog.Logger
}

// NewWriter creates a report writer rooted at baseDir.
func NewWriter(baseDir string, chartService *charts.Service, log zerolog.Logger) *Writer {
	return &Writer{
		baseDir: baseDir,
		charts:  chartService,
		log:     log.With().Str("component", "reports").Logger(),
	}
}

// WriteSimulation writes the text report and charts for an ensemble run.
// Returns the run directory.
func (w *Writer) WriteSimulation(p *domain.Portfolio, res *simulation.Result) (string, error) {
	dir := filepath.Join(w.baseDir, fmt.Sprintf("simulate_%s", time.Now().Format("20060102_150405")))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	report := w.simulationReport(p, res)
	if err := os.WriteFile(filepath.Join(dir, "report.txt"), []byte(report), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	if img, err := w.charts.RenderTerminalHistogram(res, p.Name+" terminal values"); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "terminal_values.png"), img, 0644)
	} else {
		w.log.Warn().Err(err).Msg("Skipping terminal value chart")
	}

	if len(res.Paths) > 0 {
		if img, err := w.charts.RenderPaths(res, p.Name+" simulated paths"); err == nil {
			_ = os.WriteFile(filepath.Join(dir, "paths.png"), img, 0644)
		} else {
			w.log.Warn().Err(err).Msg("Skipping paths chart")
		}
	}

	w.log.Info().Str("dir", dir).Msg("Wrote simulation report")
	return dir, nil
}

// WriteFrontier writes the text report and chart for a frontier search.
// Returns the run directory.
func (w *Writer) WriteFrontier(p *domain.Portfolio, res *frontier.Result, topN int) (string, error) {
	dir := filepath.Join(w.baseDir, fmt.Sprintf("frontier_%s", time.Now().Format("20060102_150405")))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	report := w.frontierReport(p, res, topN)
	if err := os.WriteFile(filepath.Join(dir, "report.txt"), []byte(report), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	if img, err := w.charts.RenderFrontier(res, p.Name+" efficient frontier"); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "frontier.png"), img, 0644)
	} else {
		w.log.Warn().Err(err).Msg("Skipping frontier chart")
	}

	w.log.Info().Str("dir", dir).Msg("Wrote frontier report")
	return dir, nil
}

func (w *Writer) simulationReport(p *domain.Portfolio, res *simulation.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Monte Carlo simulation: %s\n", p.Name)
	fmt.Fprintf(&b, "Run ID:        %s\n", res.RunID)
	fmt.Fprintf(&b, "Simulations:   %d\n", res.Simulations)
	fmt.Fprintf(&b, "Horizon:       %.1f years (%d %s steps)\n", res.Years, res.Steps, res.Frequency)
	fmt.Fprintf(&b, "Rebalancing:   %t\n", res.Rebalancing)
	fmt.Fprintf(&b, "Initial value: %.2f\n\n", p.InitialValue)

	b.WriteString("Instruments:\n")
	for i, inst := range p.Instruments {
		fmt.Fprintf(&b, "  %-8s weight %5.1f%%  mu %6.2f%%  sigma %6.2f%%\n",
			inst.Symbol(), p.TargetWeights[i]*100, inst.EffectiveMu()*100, inst.EffectiveSigma()*100)
	}
	b.WriteString("\nResults:\n")
	fmt.Fprintf(&b, "  Mean annualized return: %7.2f%%\n", res.MeanReturn*100)
	fmt.Fprintf(&b, "  Return volatility:      %7.2f%%\n", res.MeanVolatility*100)
	if res.SharpeValid {
		fmt.Fprintf(&b, "  Sharpe ratio:           %7.3f\n", res.SharpeRatio)
	} else {
		b.WriteString("  Sharpe ratio:           undefined (zero volatility)\n")
	}
	fmt.Fprintf(&b, "  Sortino ratio:          %7.3f\n", res.SortinoRatio)
	fmt.Fprintf(&b, "  CVaR (95%%):             %7.2f%%\n", res.CVaR95*100)

	return b.String()
}

func (w *Writer) frontierReport(p *domain.Portfolio, res *frontier.Result, topN int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Efficient frontier search: %s\n", p.Name)
	fmt.Fprintf(&b, "Candidates evaluated: %d (skipped %d)\n", res.Evaluated, res.Skipped)
	fmt.Fprintf(&b, "Elapsed:              %s\n\n", res.Elapsed.Round(time.Millisecond))

	symbols := p.Symbols()

	writeRanking := func(title string, candidates []frontier.Candidate, metric func(frontier.Candidate) float64) {
		fmt.Fprintf(&b, "%s\n", title)
		for rank, c := range candidates {
			parts := make([]string, len(c.Weights))
			for i, wgt := range c.Weights {
				parts[i] = fmt.Sprintf("%s %d%%", symbols[i], wgt)
			}
			fmt.Fprintf(&b, "  %2d. %-40s metric %7.3f  return %6.2f%%  vol %6.2f%%\n",
				rank+1, strings.Join(parts, ", "), metric(c),
				c.Result.MeanReturn*100, c.Result.MeanVolatility*100)
		}
		b.WriteString("\n")
	}

	writeRanking("Top by Sharpe ratio:", res.TopBySharpe(topN),
		func(c frontier.Candidate) float64 { return c.Result.SharpeRatio })
	writeRanking("Top by Sortino ratio:", res.TopBySortino(topN),
		func(c frontier.Candidate) float64 { return c.Result.SortinoRatio })
	writeRanking("Top by CVaR ratio:", res.TopByCVaR(topN),
		func(c frontier.Candidate) float64 { return c.Result.CVaRRatio })

	return b.String()
}
