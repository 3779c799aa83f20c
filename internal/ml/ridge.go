package ml

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Ridge is an L2-regularized linear regressor, available as the "ridge"
// learner for quick baselines against the boosted trees.
type Ridge struct {
	Lambda    float64   `json:"lambda"`
	Intercept float64   `json:"intercept"`
	Weights   []float64 `json:"weights"`
}

// DefaultRidgeLambda is the baseline L2 penalty applied when callers do not
// configure one.
const DefaultRidgeLambda = 1.0

// FitRidge solves (X'X + lambda*I) w = X'y with an intercept column appended
// to X. The intercept itself is not penalized.
func FitRidge(x [][]float64, y []float64, lambda float64) (*Ridge, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("invalid training shape: %d rows, %d targets", len(x), len(y))
	}
	if lambda < 0 {
		return nil, fmt.Errorf("lambda must be >= 0, got %v", lambda)
	}

	n := len(x)
	p := len(x[0]) + 1 // intercept column
	flat := make([]float64, n*p)
	for i, row := range x {
		copy(flat[i*p:], row)
		flat[i*p+p-1] = 1.0
	}
	design := mat.NewDense(n, p, flat)
	target := mat.NewDense(n, 1, append([]float64(nil), y...))

	var xtx mat.Dense
	xtx.Mul(design.T(), design)
	for j := 0; j < p-1; j++ {
		xtx.Set(j, j, xtx.At(j, j)+lambda)
	}
	var xty mat.Dense
	xty.Mul(design.T(), target)

	var solution mat.Dense
	if err := solution.Solve(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("ridge system is singular: %w", err)
	}

	model := &Ridge{Lambda: lambda, Weights: make([]float64, p-1)}
	for j := 0; j < p-1; j++ {
		model.Weights[j] = solution.At(j, 0)
	}
	model.Intercept = solution.At(p-1, 0)
	return model, nil
}

// Predict scores a dense design matrix row by row.
func (m *Ridge) Predict(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		p := m.Intercept
		for j, w := range m.Weights {
			if j < len(row) {
				p += w * row[j]
			}
		}
		out[i] = p
	}
	return out
}
