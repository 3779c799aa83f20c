package ml

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ConformalQuantile returns the (1 - alpha) empirical quantile of the
// absolute residuals. The result is the symmetric interval half-width: actual
// values are expected inside [pred - q, pred + q] roughly (1 - alpha) of the
// time.
func ConformalQuantile(residuals []float64, alpha float64) float64 {
	if len(residuals) == 0 {
		return 0
	}
	abs := make([]float64, len(residuals))
	for i, r := range residuals {
		abs[i] = math.Abs(r)
	}
	sort.Float64s(abs)
	return stat.Quantile(1.0-alpha, stat.Empirical, abs, nil)
}

// MAE returns the mean absolute error between actuals and predictions.
func MAE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

// PinballLoss returns the quantile loss of predicted values at level q.
func PinballLoss(actual, predicted []float64, q float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var sum float64
	for i := range actual {
		e := actual[i] - predicted[i]
		sum += math.Max(q*e, (q-1)*e)
	}
	return sum / float64(len(actual))
}

// Coverage returns the fraction of actuals falling inside [lower, upper].
func Coverage(actual, lower, upper []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	hits := 0
	for i := range actual {
		if actual[i] >= lower[i] && actual[i] <= upper[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(actual))
}
