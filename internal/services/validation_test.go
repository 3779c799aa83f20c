package services

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridironlabs/ffpipeline/internal/models"
	"github.com/gridironlabs/ffpipeline/internal/storage"
)

// seedActuals writes a raw weekly snapshot with n players scoring their index.
func seedActuals(t *testing.T, blob storage.BlobStore, season, week, n int) {
	t.Helper()
	rows := make([]weeklyRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, weeklyRow{
			season: season, week: week, playerID: fmt.Sprintf("p%02d", i),
			team: "KC", position: "WR", targets: 5, fp: float64(i),
		})
	}
	encoded, err := weeklyFrame(rows).Encode()
	require.NoError(t, err)
	require.NoError(t, blob.Put(storage.RawBucket, storage.RawWeeklyPath(season), encoded))
}

// seedPredictions writes n predictions whose interval covers the actual for
// the first `covered` players and misses for the rest.
func seedPredictions(t *testing.T, store *fakePredictionStore, season, week, n, covered int) {
	t.Helper()
	preds := make([]models.Prediction, 0, n)
	for i := 0; i < n; i++ {
		actual := float64(i)
		p := models.Prediction{
			Season: season, Week: week, PlayerID: fmt.Sprintf("p%02d", i),
			Point: actual + 1, ModelID: "m-old", ValidUntil: time.Now().Add(time.Hour),
		}
		if i < covered {
			p.Lower, p.Upper = actual-2, actual+2
		} else {
			p.Lower, p.Upper = actual+10, actual+20
		}
		preds = append(preds, p)
	}
	require.NoError(t, store.UpsertPredictions(preds))
}

func newValidationFixture(t *testing.T) (*ValidationService, *storage.MemBlobStore, *fakePredictionStore, *fakeRunStore, *fakeRegistry) {
	t.Helper()
	blob := storage.NewMemBlobStore()
	preds := newFakePredictionStore()
	runs := &fakeRunStore{}
	registry := &fakeRegistry{}
	require.NoError(t, registry.Register(&models.ModelRecord{ModelID: "m-new", CreatedAt: time.Now().UTC()}))
	svc := NewValidationService(blob, preds, runs, registry, nil, 0.85, 0.03)
	return svc, blob, preds, runs, registry
}

func TestValidatePromoteWithinBand(t *testing.T) {
	svc, blob, preds, runs, registry := newValidationFixture(t)
	seedActuals(t, blob, 2023, 5, 20)
	seedPredictions(t, preds, 2023, 5, 20, 17) // coverage 0.85

	res, err := svc.ValidatePromote(2023, 5)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, true, res.Extra["promote"])
	assert.Equal(t, "m-new", registry.production)
	require.Len(t, registry.promotions, 1)

	require.Len(t, runs.runs, 1)
	run := runs.runs[0]
	assert.Equal(t, "validate", run.Stage)
	assert.Equal(t, "finished", run.Status)

	var metrics ValidationMetrics
	require.NoError(t, json.Unmarshal([]byte(run.Metrics), &metrics))
	assert.Equal(t, 20, metrics.N)
	assert.InDelta(t, 0.85, metrics.Coverage, 1e-9)
	assert.InDelta(t, 1.0, metrics.MAE, 1e-9)
	assert.Contains(t, metrics.Pinball, "p10")
	assert.Contains(t, metrics.Pinball, "p50")
	assert.Contains(t, metrics.Pinball, "p90")
}

func TestValidateLowCoverageDoesNotPromote(t *testing.T) {
	svc, blob, preds, runs, registry := newValidationFixture(t)
	seedActuals(t, blob, 2023, 5, 20)
	seedPredictions(t, preds, 2023, 5, 20, 14) // coverage 0.70

	res, err := svc.ValidatePromote(2023, 5)
	require.NoError(t, err)
	require.True(t, res.OK, "low coverage is a valid outcome, not a failure")
	assert.Equal(t, false, res.Extra["promote"])
	assert.Empty(t, registry.promotions)
	assert.Len(t, runs.runs, 1, "the run is still logged")
}

func TestValidateOvercoverageDoesNotPromote(t *testing.T) {
	svc, blob, preds, _, registry := newValidationFixture(t)
	seedActuals(t, blob, 2023, 5, 20)
	seedPredictions(t, preds, 2023, 5, 20, 20) // coverage 1.0: intervals too wide

	res, err := svc.ValidatePromote(2023, 5)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, false, res.Extra["promote"])
	assert.Empty(t, registry.promotions)
}

func TestValidateMissingActuals(t *testing.T) {
	svc, _, preds, runs, _ := newValidationFixture(t)
	seedPredictions(t, preds, 2023, 5, 20, 17)

	res, err := svc.ValidatePromote(2023, 5)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonMissingData, res.Reason)
	assert.Empty(t, runs.runs, "nothing to score, nothing to log")
}

func TestValidateMissingPredictions(t *testing.T) {
	svc, blob, _, _, _ := newValidationFixture(t)
	seedActuals(t, blob, 2023, 5, 20)

	res, err := svc.ValidatePromote(2023, 5)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonMissingData, res.Reason)
}

func TestValidateNoOverlap(t *testing.T) {
	svc, blob, preds, _, _ := newValidationFixture(t)
	seedActuals(t, blob, 2023, 5, 5)
	// Predictions for a disjoint player set
	require.NoError(t, preds.UpsertPredictions([]models.Prediction{
		{Season: 2023, Week: 5, PlayerID: "zz1", Point: 1, Lower: 0, Upper: 2},
	}))

	res, err := svc.ValidatePromote(2023, 5)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonNoOverlap, res.Reason)
}

func TestValidateScoresOnlyRequestedWeek(t *testing.T) {
	svc, blob, preds, _, registry := newValidationFixture(t)

	// Snapshot holds weeks 4 and 5; only week 5 actuals should be joined
	rows := make([]weeklyRow, 0, 40)
	for i := 0; i < 20; i++ {
		rows = append(rows, weeklyRow{season: 2023, week: 4, playerID: fmt.Sprintf("p%02d", i), team: "KC", position: "WR", targets: 5, fp: 100})
		rows = append(rows, weeklyRow{season: 2023, week: 5, playerID: fmt.Sprintf("p%02d", i), team: "KC", position: "WR", targets: 5, fp: float64(i)})
	}
	encoded, err := weeklyFrame(rows).Encode()
	require.NoError(t, err)
	require.NoError(t, blob.Put(storage.RawBucket, storage.RawWeeklyPath(2023), encoded))

	seedPredictions(t, preds, 2023, 5, 20, 17)

	res, err := svc.ValidatePromote(2023, 5)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, true, res.Extra["promote"], "week 4's rows must not dilute coverage")
	assert.Equal(t, "m-new", registry.production)
}
