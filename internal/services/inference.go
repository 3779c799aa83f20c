package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gridironlabs/ffpipeline/internal/dataset"
	"github.com/gridironlabs/ffpipeline/internal/ml"
	"github.com/gridironlabs/ffpipeline/internal/models"
	"github.com/gridironlabs/ffpipeline/internal/storage"
	"github.com/gridironlabs/ffpipeline/pkg/logger"
)

// InferenceService scores one week's feature table with the active model and
// upserts the resulting prediction records.
type InferenceService struct {
	blob        storage.BlobStore
	registry    RegistryStore
	predictions PredictionStore
	cache       *CacheService
	logger      *logrus.Logger

	PredictionTTL time.Duration
}

func NewInferenceService(blob storage.BlobStore, registry RegistryStore, predictions PredictionStore, cache *CacheService, log *logrus.Logger, ttl time.Duration) *InferenceService {
	return &InferenceService{
		blob:          blob,
		registry:      registry,
		predictions:   predictions,
		cache:         cache,
		logger:        log,
		PredictionTTL: ttl,
	}
}

// resolveBundle returns the production model's bundle, falling back to the
// most recently registered model when nothing is marked production.
func (s *InferenceService) resolveBundle() (*ml.Bundle, error) {
	rec, err := s.registry.Production()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec, err = s.registry.Latest()
		if err != nil {
			return nil, err
		}
	}
	if rec == nil {
		return nil, ErrNoModelAvailable
	}

	raw, err := s.blob.Get(storage.ModelsBucket, storage.ModelBundlePath(rec.ModelID))
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle %s: %w", rec.ModelID, err)
	}
	bundle, err := ml.DecodeBundle(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bundle %s: %w", rec.ModelID, err)
	}
	return bundle, nil
}

// InferBatch scores every feature row for (season, week). The model is
// resolved before features are loaded; with both missing the result reports
// the missing model. An empty registry and missing features are recoverable,
// reportable conditions.
func (s *InferenceService) InferBatch(ctx context.Context, season, week int) (*StageResult, error) {
	bundle, err := s.resolveBundle()
	if err != nil {
		if reason := reasonFor(err); reason != "" {
			logger.WithStageWeek("infer_batch", season, week).Warn("No model in registry")
			return failure(reason, season, week), nil
		}
		return nil, err
	}

	raw, err := s.blob.Get(storage.FeaturesBucket, storage.FeaturesPath(season, week))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.WithStageWeek("infer_batch", season, week).Warn("Features not found")
			return failure(ReasonNoFeatures, season, week), nil
		}
		return nil, fmt.Errorf("failed to load feature table: %w", err)
	}
	frame, err := dataset.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode feature table: %w", err)
	}

	// Reindex to exactly the bundle's column list; columns the table lacks
	// are synthesized as 0.0 by Matrix, so schema drift cannot break shape
	x := frame.Matrix(bundle.Features)
	points := bundle.Model.Predict(x)

	validUntil := time.Now().UTC().Add(s.PredictionTTL)
	preds := make([]models.Prediction, 0, len(points))
	for i := range points {
		playerID, ok := frame.StringAt("player_id", i)
		if !ok || playerID == "" {
			continue
		}
		preds = append(preds, models.Prediction{
			Season:     season,
			Week:       week,
			PlayerID:   playerID,
			Point:      points[i],
			Lower:      points[i] - bundle.QAlpha,
			Upper:      points[i] + bundle.QAlpha,
			ModelID:    bundle.ModelID,
			ValidUntil: validUntil,
		})
	}

	if err := s.predictions.UpsertPredictions(preds); err != nil {
		return nil, err
	}

	// Write-through cache so consumers can read hot predictions without
	// touching the store; failures are observability-only
	if s.cache != nil {
		for _, p := range preds {
			key := PredictionCacheKey(p.Season, p.Week, p.PlayerID)
			if err := s.cache.Set(ctx, key, p, s.PredictionTTL); err != nil {
				logger.WithStageWeek("infer_batch", season, week).WithError(err).Debug("Prediction cache write failed")
				break
			}
		}
	}

	logger.WithStageWeek("infer_batch", season, week).WithFields(logrus.Fields{
		"model_id": bundle.ModelID,
		"rows":     len(preds),
	}).Info("Predictions written")

	return &StageResult{
		OK:      true,
		Season:  season,
		Week:    week,
		ModelID: bundle.ModelID,
		Counts:  map[string]int{"rows": len(preds)},
	}, nil
}
