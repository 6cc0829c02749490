// Package portfolio loads portfolio definitions and orchestrates the
// simulation pipeline: price history, covariance, ensemble runs, and the
// efficient frontier search.
package portfolio

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aristath/mcfolio/internal/domain"
)

// InstrumentDef is one instrument in a portfolio definition file. Either
// mu/sigma are given directly, or they are estimated from cached price
// history, or (for leveraged instruments) derived from another instrument.
type InstrumentDef struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`

	// Direct parameters (optional; estimated from history when absent).
	Mu    *float64 `json:"mu,omitempty"`
	Sigma *float64 `json:"sigma,omitempty"`

	// Leveraged variant: references another instrument in the same
	// definition by symbol.
	Underlying string  `json:"underlying,omitempty"`
	Leverage   float64 `json:"leverage,omitempty"`
}

// IsLeveraged reports whether this definition derives from an underlying.
func (d InstrumentDef) IsLeveraged() bool {
	return d.Underlying != ""
}

// Definition is one portfolio in the definitions file.
type Definition struct {
	Name         string          `json:"name"`
	InitialValue float64         `json:"initial_value"`
	RiskFree     *float64        `json:"risk_free,omitempty"`
	Instruments  []InstrumentDef `json:"instruments"`
	Weights      []float64       `json:"weights,omitempty"`
}

// LoadDefinitions reads a portfolio definitions file.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio definitions: %w", err)
	}

	var file struct {
		Portfolios []Definition `json:"portfolios"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse portfolio definitions: %w", err)
	}
	if len(file.Portfolios) == 0 {
		return nil, domain.ErrConfiguration{Reason: "definitions file contains no portfolios"}
	}

	return file.Portfolios, nil
}

// resolveInstruments turns instrument definitions into domain instruments,
// resolving leveraged references in dependency order. Reference cycles and
// dangling underlyings are configuration errors.
//
// estimate supplies mu/sigma for plain instruments that do not state them.
func resolveInstruments(defs []InstrumentDef, estimate func(symbol string) (mu, sigma float64, err error)) ([]domain.Instrument, error) {
	bySymbol := make(map[string]InstrumentDef, len(defs))
	for _, d := range defs {
		if d.Symbol == "" {
			return nil, domain.ErrConfiguration{Reason: "instrument without a symbol"}
		}
		if _, dup := bySymbol[d.Symbol]; dup {
			return nil, domain.ErrConfiguration{Reason: fmt.Sprintf("duplicate instrument %s", d.Symbol)}
		}
		bySymbol[d.Symbol] = d
	}

	resolved := make(map[string]domain.Instrument, len(defs))
	resolving := make(map[string]bool, len(defs))

	var resolve func(symbol string) (domain.Instrument, error)
	resolve = func(symbol string) (domain.Instrument, error) {
		if inst, ok := resolved[symbol]; ok {
			return inst, nil
		}
		if resolving[symbol] {
			return nil, domain.ErrConfiguration{Reason: fmt.Sprintf("leverage reference cycle through %s", symbol)}
		}

		def, ok := bySymbol[symbol]
		if !ok {
			return nil, domain.ErrConfiguration{Reason: fmt.Sprintf("unknown underlying %s", symbol)}
		}

		var inst domain.Instrument
		var err error

		if def.IsLeveraged() {
			resolving[symbol] = true
			underlying, uerr := resolve(def.Underlying)
			delete(resolving, symbol)
			if uerr != nil {
				return nil, uerr
			}
			inst, err = domain.NewLeveragedSecurity(def.Name, def.Symbol, underlying, def.Leverage)
		} else {
			mu, sigma := 0.0, 0.0
			switch {
			case def.Mu != nil && def.Sigma != nil:
				mu, sigma = *def.Mu, *def.Sigma
			case def.Mu == nil && def.Sigma == nil:
				mu, sigma, err = estimate(def.Symbol)
				if err != nil {
					return nil, fmt.Errorf("failed to estimate statistics for %s: %w", def.Symbol, err)
				}
			default:
				return nil, domain.ErrConfiguration{Reason: fmt.Sprintf("instrument %s: mu and sigma must both be set or both omitted", def.Symbol)}
			}
			if err == nil {
				inst, err = domain.NewSecurity(def.Name, def.Symbol, mu, sigma)
			}
		}
		if err != nil {
			return nil, err
		}

		resolved[symbol] = inst
		return inst, nil
	}

	instruments := make([]domain.Instrument, len(defs))
	for i, d := range defs {
		inst, err := resolve(d.Symbol)
		if err != nil {
			return nil, err
		}
		instruments[i] = inst
	}

	return instruments, nil
}
