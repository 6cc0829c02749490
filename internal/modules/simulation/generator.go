package simulation

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/mcfolio/internal/domain"
)

// ReturnModel holds the factored per-step covariance and mean vector shared
// by all paths of a run. The Cholesky factor is computed once; generators
// derived from the model carry only their own random source, so paths can run
// in parallel over the same read-only model.
type ReturnModel struct {
	dim    int
	lower  *mat.TriDense
	muStep []float64
}

// NewReturnModel factors the per-step covariance matrix. The factorization
// fails fast with domain.ErrSingularCovariance when the matrix is not
// positive definite: substituting an approximate or unfactored matrix would
// silently mask correlation, which is worse than refusing to simulate.
func NewReturnModel(covStep [][]float64, muStep []float64) (*ReturnModel, error) {
	n := len(covStep)
	if n == 0 {
		return nil, domain.ErrConfiguration{Reason: "empty covariance matrix"}
	}
	if len(muStep) != n {
		return nil, domain.ErrConfiguration{Reason: "mean vector dimension does not match covariance"}
	}

	data := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		if len(covStep[i]) != n {
			return nil, domain.ErrConfiguration{Reason: "covariance matrix is not square"}
		}
		data = append(data, covStep[i]...)
	}
	sym := mat.NewSymDense(n, data)

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, domain.ErrSingularCovariance{Dim: n}
	}

	lower := mat.NewTriDense(n, mat.Lower, nil)
	chol.LTo(lower)

	mu := make([]float64, n)
	copy(mu, muStep)

	return &ReturnModel{dim: n, lower: lower, muStep: mu}, nil
}

// Dim returns the number of instruments the model generates returns for.
func (m *ReturnModel) Dim() int { return m.dim }

// Generator creates a correlated return generator over this model using the
// given random source. Each simulated path gets its own generator so that a
// seeded run is reproducible regardless of how paths are scheduled.
func (m *ReturnModel) Generator(src rand.Source) *CorrelatedReturnGenerator {
	return &CorrelatedReturnGenerator{
		model:  m,
		normal: distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		z:      make([]float64, m.dim),
	}
}

// CorrelatedReturnGenerator produces one vector of per-instrument returns per
// time step. Across many draws the empirical covariance of the produced
// vectors converges to the model's covariance and each instrument's mean to
// its per-step mu: draws are built as mu + L*z with z a vector of independent
// standard normals and L the lower Cholesky factor (L·Lᵗ = Σ).
type CorrelatedReturnGenerator struct {
	model  *ReturnModel
	normal distuv.Normal
	z      []float64
}

// Next fills dst with one correlated return vector and returns it. When dst
// is nil or too small, a new slice is allocated.
func (g *CorrelatedReturnGenerator) Next(dst []float64) []float64 {
	n := g.model.dim
	if len(dst) < n {
		dst = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		g.z[i] = g.normal.Rand()
	}

	for i := 0; i < n; i++ {
		sum := g.model.muStep[i]
		for j := 0; j <= i; j++ {
			sum += g.model.lower.At(i, j) * g.z[j]
		}
		dst[i] = sum
	}

	return dst
}
