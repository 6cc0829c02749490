package formulas

import (
	"math"
	"testing"
)

func TestCalculateCVaR(t *testing.T) {
	tests := []struct {
		name       string
		returns    []float64
		confidence float64
		expected   float64
		tolerance  float64
	}{
		{
			name:       "empty returns",
			returns:    []float64{},
			confidence: 0.95,
			expected:   0.0,
			tolerance:  0.0,
		},
		{
			name:       "single return",
			returns:    []float64{-0.05},
			confidence: 0.95,
			expected:   -0.05,
			tolerance:  0.0,
		},
		{
			name:       "worst 5% of 100 uniform returns",
			returns:    rampReturns(100), // -0.50, -0.49, ..., 0.49
			confidence: 0.95,
			expected:   -0.48, // mean of the 5 worst: -0.50..-0.46
			tolerance:  1e-9,
		},
		{
			name:       "50% confidence averages the worst half",
			returns:    []float64{-0.2, -0.1, 0.1, 0.2},
			confidence: 0.50,
			expected:   -0.15,
			tolerance:  1e-9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateCVaR(tt.returns, tt.confidence)
			if math.Abs(result-tt.expected) > tt.tolerance {
				t.Errorf("CalculateCVaR() = %v, want %v (±%v)", result, tt.expected, tt.tolerance)
			}
		})
	}
}

func rampReturns(n int) []float64 {
	returns := make([]float64, n)
	for i := range returns {
		returns[i] = float64(i-n/2) / 100.0
	}
	return returns
}
