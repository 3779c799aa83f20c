// Package ml implements the learners behind the training stage: a
// least-squares gradient-boosted tree regressor, a ridge baseline, and the
// conformal quantile used to turn point predictions into intervals.
package ml

import (
	"fmt"
	"math/rand"
)

// GBMConfig mirrors the hyperparameters of the baseline gradient-boosted
// regressor: shrinkage, depth-limited trees, row subsampling.
type GBMConfig struct {
	NumTrees       int     `json:"num_trees"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	SubsampleRatio float64 `json:"subsample_ratio"`
	MinLeafSize    int     `json:"min_leaf_size"`
	Seed           int64   `json:"seed"`
}

// DefaultGBMConfig returns the baseline hyperparameters used by the trainer.
func DefaultGBMConfig() GBMConfig {
	return GBMConfig{
		NumTrees:       450,
		MaxDepth:       6,
		LearningRate:   0.07,
		SubsampleRatio: 0.9,
		MinLeafSize:    5,
		Seed:           42,
	}
}

// GBM is a fitted gradient-boosted tree ensemble.
type GBM struct {
	Config GBMConfig   `json:"config"`
	Base   float64     `json:"base"`
	Trees  []*treeNode `json:"trees"`
}

// FitGBM trains the ensemble on a dense design matrix. Each round fits a tree
// to the current residuals on a subsample of rows, then shrinks its
// contribution by the learning rate.
func FitGBM(x [][]float64, y []float64, cfg GBMConfig) (*GBM, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("invalid training shape: %d rows, %d targets", len(x), len(y))
	}
	if cfg.NumTrees <= 0 || cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("invalid gbm config: %+v", cfg)
	}
	if cfg.SubsampleRatio <= 0 || cfg.SubsampleRatio > 1 {
		return nil, fmt.Errorf("subsample ratio must be in (0, 1], got %v", cfg.SubsampleRatio)
	}
	if cfg.MinLeafSize < 1 {
		cfg.MinLeafSize = 1
	}

	n := len(y)
	model := &GBM{Config: cfg}
	var sum float64
	for _, v := range y {
		sum += v
	}
	model.Base = sum / float64(n)

	preds := make([]float64, n)
	for i := range preds {
		preds[i] = model.Base
	}
	residuals := make([]float64, n)
	rng := rand.New(rand.NewSource(cfg.Seed))
	sampleSize := int(float64(n) * cfg.SubsampleRatio)
	if sampleSize < 1 {
		sampleSize = 1
	}

	for t := 0; t < cfg.NumTrees; t++ {
		for i := range residuals {
			residuals[i] = y[i] - preds[i]
		}
		idx := sampleIndices(rng, n, sampleSize)
		tree := buildTree(x, residuals, idx, 0, cfg.MaxDepth, cfg.MinLeafSize)
		model.Trees = append(model.Trees, tree)
		for i := range preds {
			preds[i] += cfg.LearningRate * tree.predict(x[i])
		}
	}
	return model, nil
}

func sampleIndices(rng *rand.Rand, n, size int) []int {
	if size >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	perm := rng.Perm(n)
	return perm[:size]
}

// Predict scores a dense design matrix row by row.
func (m *GBM) Predict(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		p := m.Base
		for _, tree := range m.Trees {
			p += m.Config.LearningRate * tree.predict(row)
		}
		out[i] = p
	}
	return out
}
