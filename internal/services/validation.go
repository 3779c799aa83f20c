package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gridironlabs/ffpipeline/internal/dataset"
	"github.com/gridironlabs/ffpipeline/internal/ml"
	"github.com/gridironlabs/ffpipeline/internal/models"
	"github.com/gridironlabs/ffpipeline/internal/storage"
	"github.com/gridironlabs/ffpipeline/pkg/logger"
)

// ValidationMetrics is the per-week scoring summary appended to the run log.
type ValidationMetrics struct {
	Season   int                `json:"season"`
	Week     int                `json:"week"`
	N        int                `json:"n"`
	MAE      float64            `json:"mae"`
	Pinball  map[string]float64 `json:"pinball"`
	Coverage float64            `json:"coverage"`
}

// ValidationService compares cached predictions against realized outcomes and
// applies the promotion policy.
type ValidationService struct {
	blob        storage.BlobStore
	predictions PredictionStore
	runs        RunStore
	registry    RegistryStore
	logger      *logrus.Logger

	TargetCoverage    float64
	CoverageTolerance float64
}

func NewValidationService(blob storage.BlobStore, predictions PredictionStore, runs RunStore, registry RegistryStore, log *logrus.Logger, targetCoverage, tolerance float64) *ValidationService {
	return &ValidationService{
		blob:              blob,
		predictions:       predictions,
		runs:              runs,
		registry:          registry,
		logger:            log,
		TargetCoverage:    targetCoverage,
		CoverageTolerance: tolerance,
	}
}

// ValidatePromote scores a completed week and promotes the latest model when
// empirical coverage lands inside the tolerance band.
func (s *ValidationService) ValidatePromote(season, week int) (*StageResult, error) {
	actuals, err := s.loadActuals(season, week)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.WithStageWeek("validate_promote", season, week).Warn("Missing actuals")
			return failure(ReasonMissingData, season, week), nil
		}
		return nil, err
	}

	preds, err := s.predictions.PredictionsFor(season, week)
	if err != nil {
		return nil, err
	}
	if len(preds) == 0 || len(actuals) == 0 {
		logger.WithStageWeek("validate_promote", season, week).Warn("Missing predictions or actuals")
		return failure(ReasonMissingData, season, week), nil
	}

	// Inner join on player_id
	var actual, point, lower, upper []float64
	for _, p := range preds {
		if a, ok := actuals[p.PlayerID]; ok {
			actual = append(actual, a)
			point = append(point, p.Point)
			lower = append(lower, p.Lower)
			upper = append(upper, p.Upper)
		}
	}
	if len(actual) == 0 {
		logger.WithStageWeek("validate_promote", season, week).Warn("No overlap between predictions and actuals")
		return failure(ReasonNoOverlap, season, week), nil
	}

	// Pinball at all three levels uses the point estimate as the predicted
	// quantile value; a known approximation, kept as observed behavior
	metrics := ValidationMetrics{
		Season: season,
		Week:   week,
		N:      len(actual),
		MAE:    ml.MAE(actual, point),
		Pinball: map[string]float64{
			"p10": ml.PinballLoss(actual, point, 0.10),
			"p50": ml.PinballLoss(actual, point, 0.50),
			"p90": ml.PinballLoss(actual, point, 0.90),
		},
		Coverage: ml.Coverage(actual, lower, upper),
	}

	metricsJSON, err := json.Marshal(&metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation metrics: %w", err)
	}
	run := &models.ModelRun{
		Season:  season,
		Week:    week,
		Stage:   "validate",
		Metrics: string(metricsJSON),
		Status:  "finished",
	}
	if err := s.runs.AppendRun(run); err != nil {
		return nil, err
	}

	promoted := false
	if s.withinBand(metrics.Coverage) {
		latest, err := s.registry.Latest()
		if err != nil {
			return nil, err
		}
		if latest != nil {
			if err := s.registry.Promote(latest.ModelID, season, week); err != nil {
				return nil, err
			}
			promoted = true
			logger.WithStageWeek("validate_promote", season, week).WithField("model_id", latest.ModelID).Info("Model promoted to production")
		}
	}

	logger.WithStageWeek("validate_promote", season, week).WithFields(logrus.Fields{
		"n":        metrics.N,
		"mae":      metrics.MAE,
		"coverage": metrics.Coverage,
		"promote":  promoted,
	}).Info("Validation complete")

	return &StageResult{
		OK:     true,
		Season: season,
		Week:   week,
		Counts: map[string]int{"rows": metrics.N},
		Extra:  map[string]any{"metrics": metrics, "promote": promoted},
	}, nil
}

func (s *ValidationService) withinBand(coverage float64) bool {
	return coverage >= s.TargetCoverage-s.CoverageTolerance &&
		coverage <= s.TargetCoverage+s.CoverageTolerance
}

// loadActuals reads the season's raw weekly snapshot and returns realized
// target values by player for the requested week.
func (s *ValidationService) loadActuals(season, week int) (map[string]float64, error) {
	raw, err := s.blob.Get(storage.RawBucket, storage.RawWeeklyPath(season))
	if err != nil {
		return nil, err
	}
	weekly, err := dataset.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raw weekly snapshot: %w", err)
	}

	actuals := make(map[string]float64)
	for i := 0; i < weekly.NumRows(); i++ {
		sv, ok := weekly.FloatAt("season", i)
		if !ok || int(sv) != season {
			continue
		}
		wv, ok := weekly.FloatAt("week", i)
		if !ok || int(wv) != week {
			continue
		}
		playerID, ok := weekly.StringAt("player_id", i)
		if !ok || playerID == "" {
			continue
		}
		target, ok := weekly.FloatAt(TargetColumn, i)
		if !ok {
			continue
		}
		actuals[playerID] = target
	}
	return actuals, nil
}
