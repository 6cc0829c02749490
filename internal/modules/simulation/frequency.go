// Package simulation implements the Monte Carlo engine: covariance
// estimation from historical returns, correlated random return generation,
// time-stepped path simulation, and ensemble aggregation.
package simulation

import (
	"fmt"

	"github.com/aristath/mcfolio/internal/domain"
)

// Frequency determines the number of simulated steps per year and the
// per-step conversion of annual return statistics.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnual    Frequency = "annual"
)

// ParseFrequency validates a frequency string from configuration.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case FrequencyDaily, FrequencyMonthly, FrequencyQuarterly, FrequencyAnnual:
		return Frequency(s), nil
	default:
		return "", domain.ErrConfiguration{Reason: fmt.Sprintf("unknown frequency %q (must be daily, monthly, quarterly or annual)", s)}
	}
}

// StepsPerYear returns the number of simulation steps per year.
// Daily uses 252 trading days.
func (f Frequency) StepsPerYear() int {
	switch f {
	case FrequencyDaily:
		return 252
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	case FrequencyAnnual:
		return 1
	default:
		return 0
	}
}
