package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gridironlabs/ffpipeline/internal/dataset"
	"github.com/gridironlabs/ffpipeline/internal/ml"
	"github.com/gridironlabs/ffpipeline/internal/models"
	"github.com/gridironlabs/ffpipeline/internal/storage"
	"github.com/gridironlabs/ffpipeline/pkg/logger"
)

const weeksPerSeason = 18

// seasonWeek is one chronological key of the training horizon.
type seasonWeek struct {
	Season int
	Week   int
}

// FoldMetric is the per-fold validation summary reported by training.
type FoldMetric struct {
	Fold   int     `json:"fold"`
	MAE    float64 `json:"mae"`
	NumVal int     `json:"n_val"`
}

// TrainingReport is the metrics document persisted next to each bundle.
type TrainingReport struct {
	Folds  []FoldMetric `json:"folds"`
	QAlpha float64      `json:"q_alpha"`
	Alpha  float64      `json:"alpha"`
	Target string       `json:"target"`
}

// TrainerService fits a regressor under time-ordered cross-validation,
// computes the conformal quantile from pooled fold residuals, and registers
// the resulting bundle.
type TrainerService struct {
	blob     storage.BlobStore
	registry RegistryStore
	logger   *logrus.Logger

	Alpha         float64
	Folds         int
	GBMConfig     ml.GBMConfig
	FinalNumTrees int
	RidgeLambda   float64
}

func NewTrainerService(blob storage.BlobStore, registry RegistryStore, log *logrus.Logger, alpha float64, folds int) *TrainerService {
	return &TrainerService{
		blob:          blob,
		registry:      registry,
		logger:        log,
		Alpha:         alpha,
		Folds:         folds,
		GBMConfig:     ml.DefaultGBMConfig(),
		FinalNumTrees: 600,
		RidgeLambda:   ml.DefaultRidgeLambda,
	}
}

// Train consumes every feature table in the season range and produces one
// registered (non-production) model bundle.
func (s *TrainerService) Train(startSeason, endSeason int, learner string) (*StageResult, error) {
	if learner == "" {
		learner = ml.LearnerGBM
	}
	if learner != ml.LearnerGBM && learner != ml.LearnerRidge {
		return nil, fmt.Errorf("unknown learner %q", learner)
	}

	frames := s.loadTrainingFrames(startSeason, endSeason)
	if len(frames) == 0 {
		logger.WithStage("train_cvplus").Warn("No training data found")
		return failure(ReasonNoData, 0, 0), nil
	}

	data, err := dataset.Concat(frames)
	if err != nil {
		return nil, fmt.Errorf("failed to concatenate training frames: %w", err)
	}

	featureCols := trainingFeatureColumns(data)
	if len(featureCols) == 0 {
		return nil, fmt.Errorf("%w: no usable feature columns", ErrInsufficientTrainingData)
	}

	keys := distinctWeeks(data)
	folds := timeFolds(keys, s.Folds)

	var residuals []float64
	var foldMetrics []FoldMetric
	for i, heldOut := range folds {
		held := make(map[seasonWeek]bool, len(heldOut))
		for _, k := range heldOut {
			held[k] = true
		}
		trainX, trainY := designMatrix(data, featureCols, func(k seasonWeek) bool { return !held[k] })
		valX, valY := designMatrix(data, featureCols, func(k seasonWeek) bool { return held[k] })
		if len(trainY) == 0 || len(valY) == 0 {
			continue
		}

		model, err := s.fit(learner, trainX, trainY, false)
		if err != nil {
			return nil, fmt.Errorf("fold %d fit failed: %w", i, err)
		}
		preds := model.Predict(valX)
		for j := range valY {
			residuals = append(residuals, valY[j]-preds[j])
		}
		foldMetrics = append(foldMetrics, FoldMetric{Fold: i, MAE: ml.MAE(valY, preds), NumVal: len(valY)})
	}

	// With a single distinct week the rotation cannot hold anything out, so
	// there are no residuals. The model is still fit and registered; the
	// interval half-width degenerates to zero
	qAlpha := 0.0
	if len(residuals) > 0 {
		qAlpha = ml.ConformalQuantile(residuals, s.Alpha)
	} else {
		logger.WithStage("train_cvplus").Warn("No held-out residuals, interval half-width falls back to zero")
	}

	allX, allY := designMatrix(data, featureCols, func(seasonWeek) bool { return true })
	finalModel, err := s.fit(learner, allX, allY, true)
	if err != nil {
		return nil, fmt.Errorf("final fit failed: %w", err)
	}

	modelID := fmt.Sprintf("%s-%d-%s", learner, time.Now().Unix(), uuid.New().String()[:8])
	bundle := &ml.Bundle{
		ModelID:  modelID,
		Learner:  learner,
		QAlpha:   qAlpha,
		Alpha:    s.Alpha,
		Features: featureCols,
		Model:    finalModel,
	}
	encoded, err := ml.EncodeBundle(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle: %w", err)
	}
	if err := s.blob.Put(storage.ModelsBucket, storage.ModelBundlePath(modelID), encoded); err != nil {
		return nil, fmt.Errorf("failed to store bundle: %w", err)
	}

	report := TrainingReport{Folds: foldMetrics, QAlpha: qAlpha, Alpha: s.Alpha, Target: TargetColumn}
	reportJSON, err := json.Marshal(&report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal training report: %w", err)
	}
	if err := s.blob.Put(storage.ModelsBucket, storage.ModelMetricsPath(modelID), reportJSON); err != nil {
		return nil, fmt.Errorf("failed to store training report: %w", err)
	}

	record := &models.ModelRecord{
		ModelID:   modelID,
		Label:     fmt.Sprintf("%s baseline %d-%d", learner, startSeason, endSeason),
		Learner:   learner,
		QAlpha:    qAlpha,
		Metrics:   string(reportJSON),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.registry.Register(record); err != nil {
		return nil, err
	}

	logger.WithStage("train_cvplus").WithFields(logrus.Fields{
		"model_id": modelID,
		"q_alpha":  qAlpha,
		"folds":    len(foldMetrics),
		"rows":     len(allY),
	}).Info("Model trained and registered")

	return &StageResult{
		OK:      true,
		ModelID: modelID,
		Counts:  map[string]int{"rows": len(allY), "folds": len(foldMetrics), "features": len(featureCols)},
		Extra:   map[string]any{"q_alpha": qAlpha, "fold_metrics": foldMetrics},
	}, nil
}

func (s *TrainerService) fit(learner string, x [][]float64, y []float64, final bool) (ml.Model, error) {
	switch learner {
	case ml.LearnerRidge:
		return ml.FitRidge(x, y, s.RidgeLambda)
	default:
		cfg := s.GBMConfig
		if final && s.FinalNumTrees > 0 {
			cfg.NumTrees = s.FinalNumTrees
		}
		return ml.FitGBM(x, y, cfg)
	}
}

// loadTrainingFrames returns each existing feature table in range that has at
// least one non-null target. Missing tables are skipped silently.
func (s *TrainerService) loadTrainingFrames(startSeason, endSeason int) []*dataset.Frame {
	var frames []*dataset.Frame
	for season := startSeason; season <= endSeason; season++ {
		for week := 1; week <= weeksPerSeason; week++ {
			raw, err := s.blob.Get(storage.FeaturesBucket, storage.FeaturesPath(season, week))
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					logger.WithStageWeek("train_cvplus", season, week).WithError(err).Warn("Failed to read feature table, skipping")
				}
				continue
			}
			frame, err := dataset.Decode(raw)
			if err != nil {
				logger.WithStageWeek("train_cvplus", season, week).WithError(err).Warn("Failed to decode feature table, skipping")
				continue
			}
			if frame.NonNullCount(TargetColumn) == 0 {
				continue
			}
			frames = append(frames, frame)
		}
	}
	return frames
}

// trainingFeatureColumns is the ordered feature list actually used: the
// engineered columns, the home flag and the raw numeric candidates, filtered
// to what the concatenated frame carries. Persisted with the bundle so
// inference reindexes to exactly this list.
func trainingFeatureColumns(data *dataset.Frame) []string {
	declared := make([]string, 0, len(EngineeredColumns)+1+len(BaseNumericCandidates))
	declared = append(declared, EngineeredColumns...)
	declared = append(declared, "home")
	declared = append(declared, BaseNumericCandidates...)

	cols := make([]string, 0, len(declared))
	for _, c := range declared {
		if data.HasColumn(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func distinctWeeks(data *dataset.Frame) []seasonWeek {
	seen := make(map[seasonWeek]bool)
	for i := 0; i < data.NumRows(); i++ {
		sv, ok1 := data.FloatAt("season", i)
		wv, ok2 := data.FloatAt("week", i)
		if !ok1 || !ok2 {
			continue
		}
		seen[seasonWeek{Season: int(sv), Week: int(wv)}] = true
	}
	keys := make([]seasonWeek, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].Season != keys[b].Season {
			return keys[a].Season < keys[b].Season
		}
		return keys[a].Week < keys[b].Week
	})
	return keys
}

// timeFolds slices the chronologically sorted keys into k contiguous folds.
// With fewer keys than k, k shrinks (minimum 2). Held-out weeks are excluded
// from their fold's training set; other weeks, including later ones, remain —
// a deliberate simplification of walk-forward validation.
func timeFolds(keys []seasonWeek, k int) [][]seasonWeek {
	n := len(keys)
	if n == 0 {
		return nil
	}
	if n < k {
		k = n
		if k < 2 {
			k = 2
		}
	}
	size := n / k
	if size < 1 {
		size = 1
	}
	folds := make([][]seasonWeek, 0, k)
	for i := 0; i < k-1; i++ {
		start := i * size
		end := start + size
		if start >= n {
			break
		}
		if end > n {
			end = n
		}
		folds = append(folds, keys[start:end])
	}
	if start := (k - 1) * size; start < n {
		folds = append(folds, keys[start:])
	}
	return folds
}

// designMatrix extracts rows whose (season, week) key passes keep and whose
// target is non-null. Feature nulls are imputed as 0.0 here, immediately
// before fitting or prediction.
func designMatrix(data *dataset.Frame, cols []string, keep func(seasonWeek) bool) ([][]float64, []float64) {
	selected := data.FilterRows(func(i int) bool {
		if _, ok := data.FloatAt(TargetColumn, i); !ok {
			return false
		}
		sv, ok1 := data.FloatAt("season", i)
		wv, ok2 := data.FloatAt("week", i)
		if !ok1 || !ok2 {
			return false
		}
		return keep(seasonWeek{Season: int(sv), Week: int(wv)})
	})
	return selected.Matrix(cols), selected.FloatVector(TargetColumn)
}
