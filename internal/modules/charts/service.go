// Package charts renders PNG charts for simulation and frontier results.
package charts

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/vicanso/go-charts/v2"

	"github.com/aristath/mcfolio/internal/modules/frontier"
	"github.com/aristath/mcfolio/internal/modules/simulation"
)

// maxPlottedPaths caps how many value paths go into one chart; more than
// this renders as an unreadable smear.
const maxPlottedPaths = 50

// histogramBuckets is the bar count of the terminal value histogram.
const histogramBuckets = 30

// Service renders charts from simulation results.
type Service struct {
	log zerolog.Logger
}

// NewService creates a chart service.
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("component", "charts").Logger(),
	}
}

// RenderPaths renders a sample of portfolio value paths over time. The
// result must have been produced with KeepPaths enabled.
func (s *Service) RenderPaths(res *simulation.Result, title string) ([]byte, error) {
	if len(res.Paths) == 0 {
		return nil, fmt.Errorf("result has no retained paths to plot")
	}

	n := len(res.Paths)
	if n > maxPlottedPaths {
		n = maxPlottedPaths
	}
	values := make([][]float64, n)
	// Spread the sample across the ensemble instead of taking the first n.
	stride := len(res.Paths) / n
	for i := 0; i < n; i++ {
		values[i] = res.Paths[i*stride]
	}

	steps := res.Steps
	stepsPerYear := res.Frequency.StepsPerYear()
	labels := make([]string, steps+1)
	for i := 0; i <= steps; i++ {
		labels[i] = fmt.Sprintf("%.1fy", float64(i)/float64(stepsPerYear))
	}

	painter, err := charts.LineRender(values,
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			BoundaryGap: charts.FalseFlag(),
			SplitNumber: 10,
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{DivideCount: 5}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render path chart: %w", err)
	}
	return painter.Bytes()
}

// RenderTerminalHistogram renders the distribution of terminal values.
func (s *Service) RenderTerminalHistogram(res *simulation.Result, title string) ([]byte, error) {
	if len(res.TerminalValues) == 0 {
		return nil, fmt.Errorf("result has no terminal values")
	}

	lo, hi := res.TerminalValues[0], res.TerminalValues[0]
	for _, v := range res.TerminalValues {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	buckets := histogramBuckets
	if hi == lo {
		buckets = 1
	}
	counts := make([]float64, buckets)
	labels := make([]string, buckets)
	width := (hi - lo) / float64(buckets)

	for _, v := range res.TerminalValues {
		idx := 0
		if width > 0 {
			idx = int((v - lo) / width)
			if idx >= buckets {
				idx = buckets - 1
			}
		}
		counts[idx]++
	}
	for i := range labels {
		labels[i] = formatCompact(lo + (float64(i)+0.5)*width)
	}

	painter, err := charts.BarRender([][]float64{counts},
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, SplitNumber: 10}),
		charts.YAxisOptionFunc(charts.YAxisOption{DivideCount: 5}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render histogram: %w", err)
	}
	return painter.Bytes()
}

// RenderFrontier renders mean return against volatility for every evaluated
// frontier candidate, sorted by volatility.
func (s *Service) RenderFrontier(res *frontier.Result, title string) ([]byte, error) {
	if len(res.Candidates) == 0 {
		return nil, fmt.Errorf("frontier result has no candidates")
	}

	ranked := make([]frontier.Candidate, len(res.Candidates))
	copy(ranked, res.Candidates)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Result.MeanVolatility < ranked[j].Result.MeanVolatility
	})

	returns := make([]float64, len(ranked))
	labels := make([]string, len(ranked))
	for i, c := range ranked {
		returns[i] = c.Result.MeanReturn * 100
		labels[i] = fmt.Sprintf("%.1f%%", c.Result.MeanVolatility*100)
	}

	painter, err := charts.LineRender([][]float64{returns},
		charts.TitleTextOptionFunc(title, "mean return % by volatility %"),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			BoundaryGap: charts.FalseFlag(),
			SplitNumber: 8,
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{DivideCount: 5}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render frontier chart: %w", err)
	}
	return painter.Bytes()
}

// formatCompact shortens large axis labels (125000 -> 125k).
func formatCompact(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.0fk", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
