package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noisyData builds a deterministic piecewise target over two features.
func noisyData(n int) ([][]float64, []float64) {
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a := float64(i % 10)
		b := float64((i * 7) % 5)
		x[i] = []float64{a, b}
		y[i] = 3*a - 2*b
		if a > 5 {
			y[i] += 10
		}
	}
	return x, y
}

func TestFitGBMReducesErrorBelowMeanBaseline(t *testing.T) {
	x, y := noisyData(200)
	cfg := DefaultGBMConfig()
	cfg.NumTrees = 50

	model, err := FitGBM(x, y, cfg)
	require.NoError(t, err)

	preds := model.Predict(x)
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	baseline := make([]float64, len(y))
	for i := range baseline {
		baseline[i] = mean
	}

	assert.Less(t, MAE(y, preds), MAE(y, baseline))
}

func TestFitGBMDeterministicForSeed(t *testing.T) {
	x, y := noisyData(100)
	cfg := DefaultGBMConfig()
	cfg.NumTrees = 20

	a, err := FitGBM(x, y, cfg)
	require.NoError(t, err)
	b, err := FitGBM(x, y, cfg)
	require.NoError(t, err)

	assert.Equal(t, a.Predict(x), b.Predict(x))
}

func TestFitGBMRejectsBadInput(t *testing.T) {
	cfg := DefaultGBMConfig()

	_, err := FitGBM(nil, nil, cfg)
	assert.Error(t, err)

	_, err = FitGBM([][]float64{{1}}, []float64{1, 2}, cfg)
	assert.Error(t, err)

	bad := cfg
	bad.SubsampleRatio = 1.5
	_, err = FitGBM([][]float64{{1}}, []float64{1}, bad)
	assert.Error(t, err)
}

func TestFitRidgeRecoversLinearRelation(t *testing.T) {
	n := 100
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a := float64(i)
		b := float64(i % 7)
		x[i] = []float64{a, b}
		y[i] = 2*a - 3*b + 5
	}

	model, err := FitRidge(x, y, 0.001)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, model.Weights[0], 0.05)
	assert.InDelta(t, -3.0, model.Weights[1], 0.05)
	assert.InDelta(t, 5.0, model.Intercept, 0.5)

	preds := model.Predict(x)
	assert.Less(t, MAE(y, preds), 0.5)
}

func TestConformalQuantileProperties(t *testing.T) {
	residuals := []float64{-1, 2, -3, 4, -5, 6, -7, 8, -9, 10}

	q15 := ConformalQuantile(residuals, 0.15)
	q50 := ConformalQuantile(residuals, 0.50)

	assert.GreaterOrEqual(t, q15, 0.0)
	assert.GreaterOrEqual(t, q15, q50, "half-width must grow as alpha shrinks")
	assert.LessOrEqual(t, q15, 10.0, "half-width cannot exceed the largest absolute residual")
	assert.Equal(t, 0.0, ConformalQuantile(nil, 0.15))
}

func TestCoverageCountsInclusiveBounds(t *testing.T) {
	actual := []float64{1, 5, 10, 20}
	lower := []float64{0, 5, 12, 15}
	upper := []float64{2, 6, 14, 25}
	// 1 in [0,2], 5 in [5,6] (boundary), 10 below [12,14], 20 in [15,25]
	assert.InDelta(t, 0.75, Coverage(actual, lower, upper), 1e-9)
	assert.Equal(t, 0.0, Coverage(nil, nil, nil))
}

func TestPinballLoss(t *testing.T) {
	actual := []float64{10}
	predicted := []float64{8}
	// e = 2: q*e for under-prediction
	assert.InDelta(t, 1.0, PinballLoss(actual, predicted, 0.5), 1e-9)
	assert.InDelta(t, 1.8, PinballLoss(actual, predicted, 0.9), 1e-9)

	over := []float64{8}
	// e = -2: (q-1)*e for over-prediction
	assert.InDelta(t, 1.0, PinballLoss(over, []float64{10}, 0.5), 1e-9)
}

func TestBundleRoundTripPreservesPredictions(t *testing.T) {
	x, y := noisyData(80)
	cfg := DefaultGBMConfig()
	cfg.NumTrees = 10
	model, err := FitGBM(x, y, cfg)
	require.NoError(t, err)

	bundle := &Bundle{
		ModelID:  "gbm-test",
		Learner:  LearnerGBM,
		QAlpha:   3.25,
		Alpha:    0.15,
		Features: []string{"a", "b"},
		Model:    model,
	}
	data, err := EncodeBundle(bundle)
	require.NoError(t, err)

	decoded, err := DecodeBundle(data)
	require.NoError(t, err)
	assert.Equal(t, bundle.ModelID, decoded.ModelID)
	assert.Equal(t, bundle.QAlpha, decoded.QAlpha)
	assert.Equal(t, bundle.Features, decoded.Features)

	want := model.Predict(x)
	got := decoded.Model.Predict(x)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9)
	}
}

func TestBundleRoundTripRidge(t *testing.T) {
	model := &Ridge{Lambda: 1, Intercept: 2, Weights: []float64{0.5, -0.25}}
	bundle := &Bundle{ModelID: "ridge-test", Learner: LearnerRidge, QAlpha: 1, Alpha: 0.15, Features: []string{"a", "b"}, Model: model}

	data, err := EncodeBundle(bundle)
	require.NoError(t, err)
	decoded, err := DecodeBundle(data)
	require.NoError(t, err)

	preds := decoded.Model.Predict([][]float64{{2, 4}})
	assert.InDelta(t, 2+1-1, preds[0], 1e-9)
}

func TestEncodeBundleRejectsUnknownLearner(t *testing.T) {
	_, err := EncodeBundle(&Bundle{Learner: "forest", Model: &Ridge{}})
	assert.Error(t, err)
}

func TestMAE(t *testing.T) {
	assert.InDelta(t, 1.5, MAE([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.True(t, math.Abs(MAE(nil, nil)) < 1e-12)
}
