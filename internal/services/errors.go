package services

import "errors"

// Missing-data conditions are recoverable at the pipeline level: stages map
// them onto StageResult{OK:false, Reason:...} instead of failing the caller,
// so the invocation layer can skip and retry later. Configuration errors are
// surfaced as plain errors and abort the invocation.
var (
	ErrMissingIdentityColumns   = errors.New("source is missing required identity columns")
	ErrInsufficientTrainingData = errors.New("no feature tables with targets in range")
	ErrNoModelAvailable         = errors.New("model registry is empty")
	ErrNoFeaturesAvailable      = errors.New("no feature table for requested week")
	ErrNoOverlap                = errors.New("no overlap between predictions and actuals")
)

// Reason codes carried on structured failure results.
const (
	ReasonNoData      = "no_data"
	ReasonNoFeatures  = "no_features"
	ReasonNoModel     = "no_model"
	ReasonMissingData = "missing_data"
	ReasonNoOverlap   = "no_overlap"
)

// StageResult is the structured record every stage invocation returns.
type StageResult struct {
	OK      bool           `json:"ok"`
	Reason  string         `json:"reason,omitempty"`
	Season  int            `json:"season,omitempty"`
	Week    int            `json:"week,omitempty"`
	ModelID string         `json:"model_id,omitempty"`
	Counts  map[string]int `json:"counts,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

func failure(reason string, season, week int) *StageResult {
	return &StageResult{OK: false, Reason: reason, Season: season, Week: week}
}

// reasonFor maps recoverable sentinel errors to their reason codes; any other
// error yields an empty string, meaning the error should propagate.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientTrainingData):
		return ReasonNoData
	case errors.Is(err, ErrNoFeaturesAvailable):
		return ReasonNoFeatures
	case errors.Is(err, ErrNoModelAvailable):
		return ReasonNoModel
	case errors.Is(err, ErrNoOverlap):
		return ReasonNoOverlap
	default:
		return ""
	}
}
