package ml

import (
	"encoding/json"
	"fmt"
)

const (
	LearnerGBM   = "gbm"
	LearnerRidge = "ridge"
)

// Model is a fitted point-estimate regressor.
type Model interface {
	Predict(x [][]float64) []float64
}

// Bundle is the persisted unit of a trained model: the regressor itself, the
// conformal half-width q_alpha, and the exact ordered feature-column list the
// model was fitted on. Inference must reindex to Features before scoring.
type Bundle struct {
	ModelID  string   `json:"model_id"`
	Learner  string   `json:"learner"`
	QAlpha   float64  `json:"q_alpha"`
	Alpha    float64  `json:"alpha"`
	Features []string `json:"features"`
	Model    Model    `json:"-"`
}

// bundleWire is the on-disk form; the model payload is tagged by learner.
type bundleWire struct {
	ModelID  string          `json:"model_id"`
	Learner  string          `json:"learner"`
	QAlpha   float64         `json:"q_alpha"`
	Alpha    float64         `json:"alpha"`
	Features []string        `json:"features"`
	GBM      json.RawMessage `json:"gbm,omitempty"`
	Ridge    json.RawMessage `json:"ridge,omitempty"`
}

// EncodeBundle serializes a bundle as JSON.
func EncodeBundle(b *Bundle) ([]byte, error) {
	wire := bundleWire{
		ModelID:  b.ModelID,
		Learner:  b.Learner,
		QAlpha:   b.QAlpha,
		Alpha:    b.Alpha,
		Features: b.Features,
	}
	payload, err := json.Marshal(b.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal model: %w", err)
	}
	switch b.Learner {
	case LearnerGBM:
		wire.GBM = payload
	case LearnerRidge:
		wire.Ridge = payload
	default:
		return nil, fmt.Errorf("unknown learner %q", b.Learner)
	}
	return json.Marshal(&wire)
}

// DecodeBundle reconstructs a bundle produced by EncodeBundle.
func DecodeBundle(data []byte) (*Bundle, error) {
	var wire bundleWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bundle: %w", err)
	}
	b := &Bundle{
		ModelID:  wire.ModelID,
		Learner:  wire.Learner,
		QAlpha:   wire.QAlpha,
		Alpha:    wire.Alpha,
		Features: wire.Features,
	}
	switch wire.Learner {
	case LearnerGBM:
		var model GBM
		if err := json.Unmarshal(wire.GBM, &model); err != nil {
			return nil, fmt.Errorf("failed to unmarshal gbm model: %w", err)
		}
		b.Model = &model
	case LearnerRidge:
		var model Ridge
		if err := json.Unmarshal(wire.Ridge, &model); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ridge model: %w", err)
		}
		b.Model = &model
	default:
		return nil, fmt.Errorf("unknown learner %q in bundle", wire.Learner)
	}
	return b, nil
}
