// Package domain provides the core instrument and portfolio models.
//
// Instruments are constructed once (from configuration or fetched statistics)
// and are immutable afterward. A leveraged instrument never stores its own
// mu/sigma; it derives them from the referenced underlying at call time.
package domain

import (
	"fmt"
	"math"
)

// Instrument is any tradable entity with annual return statistics.
// A "plain" security returns its stored values; a leveraged security computes
// them from its underlying and a leverage multiplier.
type Instrument interface {
	Name() string
	Symbol() string

	// EffectiveMu returns the expected annual return as a decimal (0.08 = 8%).
	EffectiveMu() float64

	// EffectiveSigma returns the annual volatility as a decimal (always >= 0).
	EffectiveSigma() float64
}

// Security is a plain instrument with directly stored return statistics.
type Security struct {
	name   string
	symbol string
	mu     float64
	sigma  float64
}

// NewSecurity creates a plain security. Mu and sigma must be finite and sigma
// must be non-negative.
func NewSecurity(name, symbol string, mu, sigma float64) (*Security, error) {
	if symbol == "" {
		return nil, ErrConfiguration{Reason: "security symbol cannot be empty"}
	}
	if math.IsNaN(mu) || math.IsInf(mu, 0) {
		return nil, ErrConfiguration{Reason: fmt.Sprintf("security %s: mu must be finite", symbol)}
	}
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) || sigma < 0 {
		return nil, ErrConfiguration{Reason: fmt.Sprintf("security %s: sigma must be finite and >= 0", symbol)}
	}

	return &Security{name: name, symbol: symbol, mu: mu, sigma: sigma}, nil
}

func (s *Security) Name() string            { return s.name }
func (s *Security) Symbol() string          { return s.symbol }
func (s *Security) EffectiveMu() float64    { return s.mu }
func (s *Security) EffectiveSigma() float64 { return s.sigma }

// LeveragedSecurity is an instrument whose return statistics are derived from
// an underlying instrument and a leverage multiplier. The underlying reference
// is read-only and may be shared across portfolios.
//
// Leverage model: mu scales linearly with leverage, sigma scales with |L|.
// Financing costs and volatility decay of real leveraged products are out of
// scope here.
type LeveragedSecurity struct {
	name       string
	symbol     string
	underlying Instrument
	leverage   float64
}

// NewLeveragedSecurity creates a leveraged security on top of an existing
// underlying. The underlying must already be resolved; constructing through
// this function makes direct self-reference impossible, and transitive cycles
// are rejected by the configuration resolver.
func NewLeveragedSecurity(name, symbol string, underlying Instrument, leverage float64) (*LeveragedSecurity, error) {
	if symbol == "" {
		return nil, ErrConfiguration{Reason: "leveraged security symbol cannot be empty"}
	}
	if underlying == nil {
		return nil, ErrConfiguration{Reason: fmt.Sprintf("leveraged security %s: underlying is required", symbol)}
	}
	if math.IsNaN(leverage) || math.IsInf(leverage, 0) || leverage == 0 {
		return nil, ErrConfiguration{Reason: fmt.Sprintf("leveraged security %s: leverage must be finite and non-zero", symbol)}
	}

	return &LeveragedSecurity{
		name:       name,
		symbol:     symbol,
		underlying: underlying,
		leverage:   leverage,
	}, nil
}

func (l *LeveragedSecurity) Name() string   { return l.name }
func (l *LeveragedSecurity) Symbol() string { return l.symbol }

// EffectiveMu computes the expected annual return as leverage * underlying mu.
func (l *LeveragedSecurity) EffectiveMu() float64 {
	return l.leverage * l.underlying.EffectiveMu()
}

// EffectiveSigma computes the annual volatility as |leverage| * underlying sigma.
func (l *LeveragedSecurity) EffectiveSigma() float64 {
	return math.Abs(l.leverage) * l.underlying.EffectiveSigma()
}

// Underlying returns the referenced underlying instrument.
func (l *LeveragedSecurity) Underlying() Instrument { return l.underlying }

// Leverage returns the leverage multiplier.
func (l *LeveragedSecurity) Leverage() float64 { return l.leverage }
